package sla

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func kmMax(v float64) *float64 {
	return &v
}

func TestResolve_FallbackLadder(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		want     int
	}{
		{"zero distance", 0, 60},
		{"short hop", 4.2, 60},
		{"just under first band", 9.99, 60},
		{"first band boundary", 10, 75},
		{"inside first band", 12, 75},
		{"second band", 15, 90},
		{"mid ladder", 42, 165},
		{"last band", 95, 330},
		{"just under cutoff", 99.9, 330},
		{"at cutoff is automatic breach", 100, 0},
		{"beyond cutoff", 140, 0},
		{"negative distance clamps to zero", -3, 60},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve("client-1", "cc-1", tc.distance, nil))
		})
	}
}

func TestResolve_Precedence(t *testing.T) {
	tiers := []models.SLATier{
		{Audience: models.TierAudienceCustomer, ScopeKind: models.TierScopeDefault, KmMin: 0, KmMax: kmMax(50), AllowanceMinutes: 100},
		{Audience: models.TierAudienceCustomer, ScopeKind: models.TierScopeCostCenter, ScopeKey: "cc-1", KmMin: 0, KmMax: kmMax(50), AllowanceMinutes: 80},
		{Audience: models.TierAudienceCustomer, ScopeKind: models.TierScopeClient, ScopeKey: "client-1", KmMin: 0, KmMax: kmMax(50), AllowanceMinutes: 45},
	}

	t.Run("client tier wins over cost center and default", func(t *testing.T) {
		assert.Equal(t, 45, Resolve("client-1", "cc-1", 10, tiers))
	})

	t.Run("cost center wins when client has no tier", func(t *testing.T) {
		assert.Equal(t, 80, Resolve("client-2", "cc-1", 10, tiers))
	})

	t.Run("default wins when neither client nor cost center match", func(t *testing.T) {
		assert.Equal(t, 100, Resolve("client-2", "cc-2", 10, tiers))
	})

	t.Run("falls through to ladder when no interval contains the distance", func(t *testing.T) {
		assert.Equal(t, 60+15*9, Resolve("client-1", "cc-1", 51, tiers))
	})
}

func TestResolve_IntervalMatching(t *testing.T) {
	tiers := []models.SLATier{
		{ScopeKind: models.TierScopeClient, ScopeKey: "client-1", KmMin: 10, KmMax: kmMax(20), AllowanceMinutes: 90},
		{ScopeKind: models.TierScopeClient, ScopeKey: "client-1", KmMin: 0, KmMax: kmMax(10), AllowanceMinutes: 30},
	}

	t.Run("intervals are half open", func(t *testing.T) {
		assert.Equal(t, 30, Resolve("client-1", "", 9.999, tiers))
		assert.Equal(t, 90, Resolve("client-1", "", 10, tiers))
	})

	t.Run("overlap breaks ties by lowest km_min", func(t *testing.T) {
		overlapping := append(tiers, models.SLATier{
			ScopeKind: models.TierScopeClient, ScopeKey: "client-1", KmMin: 5, KmMax: kmMax(15), AllowanceMinutes: 50,
		})
		assert.Equal(t, 30, Resolve("client-1", "", 7, overlapping))
	})

	t.Run("unbounded upper interval matches any larger distance", func(t *testing.T) {
		unbounded := []models.SLATier{
			{ScopeKind: models.TierScopeClient, ScopeKey: "client-1", KmMin: 20, KmMax: nil, AllowanceMinutes: 240},
		}
		assert.Equal(t, 240, Resolve("client-1", "", 500, unbounded))
	})
}

func TestResolve_Pure(t *testing.T) {
	tiers := []models.SLATier{
		{ScopeKind: models.TierScopeClient, ScopeKey: "c", KmMin: 0, KmMax: kmMax(100), AllowanceMinutes: 42},
	}

	first := Resolve("c", "", 50, tiers)
	second := Resolve("c", "", 50, tiers)
	assert.Equal(t, first, second)
	// Input slice is not reordered or mutated.
	assert.Equal(t, 42, tiers[0].AllowanceMinutes)
}

func TestResolveProfessional_FlatFallback(t *testing.T) {
	t.Run("flat 60 at any distance", func(t *testing.T) {
		assert.Equal(t, 60, ResolveProfessional("client-1", "cc-1", 5, nil))
		assert.Equal(t, 60, ResolveProfessional("client-1", "cc-1", 250, nil))
	})

	t.Run("configured tier still wins", func(t *testing.T) {
		tiers := []models.SLATier{
			{ScopeKind: models.TierScopeClient, ScopeKey: "client-1", KmMin: 0, KmMax: nil, AllowanceMinutes: 25},
		}
		assert.Equal(t, 25, ResolveProfessional("client-1", "", 5, tiers))
	})
}

func TestEvaluate(t *testing.T) {
	t.Run("on time", func(t *testing.T) {
		assert.True(t, Evaluate(60, 59.5))
	})

	t.Run("exactly at deadline counts as on time", func(t *testing.T) {
		assert.True(t, Evaluate(60, 60))
	})

	t.Run("late", func(t *testing.T) {
		assert.False(t, Evaluate(60, 60.01))
	})

	t.Run("zero allowance breaches even an instant delivery", func(t *testing.T) {
		assert.False(t, Evaluate(0, 0))
	})
}
