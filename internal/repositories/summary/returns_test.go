package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReturnOccurrence(t *testing.T) {
	t.Run("matches known phrases case-insensitively", func(t *testing.T) {
		assert.True(t, IsReturnOccurrence("Customer Absent at delivery point"))
		assert.True(t, IsReturnOccurrence("establishment closed, returning to base"))
		assert.True(t, IsReturnOccurrence("RECIPIENT ABSENT"))
	})

	t.Run("substring containment, not exact match", func(t *testing.T) {
		assert.True(t, IsReturnOccurrence("2nd attempt: location closed until monday"))
	})

	t.Run("unrelated occurrences are not returns", func(t *testing.T) {
		assert.False(t, IsReturnOccurrence("delivered to reception"))
		assert.False(t, IsReturnOccurrence(""))
		assert.False(t, IsReturnOccurrence("customer signed"))
	})
}

func TestReturnsPredicate(t *testing.T) {
	predicate, args := returnsPredicate(2)

	assert.Len(t, args, len(ReturnPhrases))
	assert.Contains(t, predicate, "$2")
	assert.Contains(t, predicate, "LOWER(occurrence) LIKE")
	// Placeholders are sequential from the given ordinal.
	assert.Contains(t, predicate, "$6")
	assert.NotContains(t, predicate, "$7")
	assert.Equal(t, "%customer absent%", args[0])
}

func TestDimensionSpecs(t *testing.T) {
	t.Run("every dimension has a spec", func(t *testing.T) {
		for _, dim := range Dimensions {
			_, ok := dimensionSpecs[dim]
			assert.True(t, ok, "missing spec for %s", dim)
		}
	})

	t.Run("professional summaries carry no order value or pickup metrics", func(t *testing.T) {
		spec := dimensionSpecs[DimensionProfessional]
		assert.False(t, spec.hasValue)
		assert.False(t, spec.hasPickup)
	})

	t.Run("daily summary has no grouping column", func(t *testing.T) {
		spec := dimensionSpecs[DimensionDaily]
		assert.Empty(t, spec.groupCol)
		assert.Equal(t, "daily_summaries", spec.table)
	})
}
