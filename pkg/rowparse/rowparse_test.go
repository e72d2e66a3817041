package rowparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_OrderID(t *testing.T) {
	t.Run("integer cell", func(t *testing.T) {
		id, ok := Row{"order_id": int64(12345)}.OrderID()
		require.True(t, ok)
		assert.Equal(t, int64(12345), id)
	})

	t.Run("spreadsheet float cell", func(t *testing.T) {
		id, ok := Row{"order": 12345.0}.OrderID()
		require.True(t, ok)
		assert.Equal(t, int64(12345), id)
	})

	t.Run("string cell with trailing .0", func(t *testing.T) {
		id, ok := Row{"Order Number": "98765.0"}.OrderID()
		require.True(t, ok)
		assert.Equal(t, int64(98765), id)
	})

	t.Run("fractional float is not an order id", func(t *testing.T) {
		_, ok := Row{"order_id": 123.5}.OrderID()
		assert.False(t, ok)
	})

	t.Run("zero and negative are rejected", func(t *testing.T) {
		_, ok := Row{"order_id": 0}.OrderID()
		assert.False(t, ok)
		_, ok = Row{"order_id": -5}.OrderID()
		assert.False(t, ok)
	})

	t.Run("missing column", func(t *testing.T) {
		_, ok := Row{"client": "acme"}.OrderID()
		assert.False(t, ok)
	})
}

func TestRow_LegNumber(t *testing.T) {
	t.Run("explicit field", func(t *testing.T) {
		assert.Equal(t, 3, Row{"leg_number": 3}.LegNumber())
	})

	t.Run("point marker in address", func(t *testing.T) {
		assert.Equal(t, 2, Row{"address": "Av. Central 100 - Point 2"}.LegNumber())
	})

	t.Run("point marker with hash", func(t *testing.T) {
		assert.Equal(t, 4, Row{"address": "warehouse dock, point #4"}.LegNumber())
	})

	t.Run("defaults to 1", func(t *testing.T) {
		assert.Equal(t, 1, Row{"address": "Rua A, 55"}.LegNumber())
	})
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  float64
	}{
		{"plain float", 12.5, 12.5},
		{"integer", 7, 7},
		{"plain string", "12.5", 12.5},
		{"comma decimal", "12,5", 12.5},
		{"currency prefix", "R$ 12,50", 12.5},
		{"thousands dot with comma decimal", "1.234,56", 1234.56},
		{"thousands comma with dot decimal", "1,234.56", 1234.56},
		{"negative", "-3,5", -3.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseNumber(tc.input)
			require.NotNil(t, got)
			assert.InDelta(t, tc.want, *got, 1e-9)
		})
	}

	t.Run("unparseable text", func(t *testing.T) {
		assert.Nil(t, ParseNumber("n/a"))
	})

	t.Run("unsupported type", func(t *testing.T) {
		assert.Nil(t, ParseNumber(true))
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Run("day serial date", func(t *testing.T) {
		got := ParseTimestamp(45292.0)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), *got)
	})

	t.Run("day serial with time fraction", func(t *testing.T) {
		got := ParseTimestamp(45292.5)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC), *got)
	})

	t.Run("numeric text is a day serial", func(t *testing.T) {
		got := ParseTimestamp("45292.25")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC), *got)
	})

	t.Run("iso text", func(t *testing.T) {
		got := ParseTimestamp("2024-03-02 14:30:00")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, time.March, 2, 14, 30, 0, 0, time.UTC), *got)
	})

	t.Run("day first slash text", func(t *testing.T) {
		got := ParseTimestamp("02/03/2024 14:30")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2024, time.March, 2, 14, 30, 0, 0, time.UTC), *got)
	})

	t.Run("zero and negative serials are absent", func(t *testing.T) {
		assert.Nil(t, ParseTimestamp(0.0))
		assert.Nil(t, ParseTimestamp(-1.0))
	})

	t.Run("garbage text", func(t *testing.T) {
		assert.Nil(t, ParseTimestamp("soon"))
	})
}

func TestRow_AliasLookup(t *testing.T) {
	t.Run("headers are normalized", func(t *testing.T) {
		row := Row{" Order Number ": "42", "Distance-KM": "10,5"}
		id, ok := row.OrderID()
		require.True(t, ok)
		assert.Equal(t, int64(42), id)

		distance := row.Number("distance_km")
		require.NotNil(t, distance)
		assert.InDelta(t, 10.5, *distance, 1e-9)
	})

	t.Run("empty strings are absent", func(t *testing.T) {
		assert.Nil(t, Row{"client_id": "  "}.String("client_id"))
	})
}

func TestParseDate(t *testing.T) {
	t.Run("iso", func(t *testing.T) {
		date, ok := ParseDate("2024-06-15")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), date)
	})

	t.Run("day first", func(t *testing.T) {
		date, ok := ParseDate("15/06/2024")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), date)
	})

	t.Run("invalid", func(t *testing.T) {
		_, ok := ParseDate("June 15")
		assert.False(t, ok)
	})
}
