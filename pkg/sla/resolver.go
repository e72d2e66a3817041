// Package sla resolves distance-based SLA allowances against tier configuration.
// Resolution is pure: tiers are passed in by the caller, never read from ambient
// state, so identical inputs always produce identical allowances.
package sla

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Built-in customer fallback ladder: [0,10) km -> 60 min, then +15 min for each
// additional 5 km band up to 100 km. At or beyond 100 km the allowance is 0,
// which marks the leg as an automatic SLA breach.
const (
	baseAllowanceMinutes = 60
	baseBandKM           = 10.0
	bandWidthKM          = 5.0
	bandStepMinutes      = 15
	maxLadderKM          = 100.0
)

// professionalFallbackMinutes is the flat professional allowance when no tier matches.
const professionalFallbackMinutes = 60

// Resolve returns the customer SLA allowance in minutes for a leg.
// Precedence, first match wins:
//  1. tiers scoped to the client whose interval contains the distance
//  2. tiers scoped to the cost center
//  3. the configured default ladder
//  4. the built-in fallback ladder
func Resolve(clientID, costCenter string, distanceKM float64, tiers []models.SLATier) int {
	if allowance, ok := resolveScoped(tiers, models.TierScopeClient, clientID, distanceKM); ok {
		return allowance
	}
	if allowance, ok := resolveScoped(tiers, models.TierScopeCostCenter, costCenter, distanceKM); ok {
		return allowance
	}
	if allowance, ok := resolveScoped(tiers, models.TierScopeDefault, "", distanceKM); ok {
		return allowance
	}
	return fallbackLadder(distanceKM)
}

// ResolveProfessional returns the professional SLA allowance in minutes for a leg.
// Same precedence as Resolve, except the built-in fallback is a flat 60 minutes.
func ResolveProfessional(professionalClientID, costCenter string, distanceKM float64, tiers []models.SLATier) int {
	if allowance, ok := resolveScoped(tiers, models.TierScopeClient, professionalClientID, distanceKM); ok {
		return allowance
	}
	if allowance, ok := resolveScoped(tiers, models.TierScopeCostCenter, costCenter, distanceKM); ok {
		return allowance
	}
	if allowance, ok := resolveScoped(tiers, models.TierScopeDefault, "", distanceKM); ok {
		return allowance
	}
	return professionalFallbackMinutes
}

// resolveScoped finds the matching tier within one scope. Ties are broken by the
// interval with the lowest km_min.
func resolveScoped(tiers []models.SLATier, scopeKind, scopeKey string, distanceKM float64) (int, bool) {
	var matches []models.SLATier
	for _, tier := range tiers {
		if tier.ScopeKind != scopeKind {
			continue
		}
		if scopeKind != models.TierScopeDefault && tier.ScopeKey != scopeKey {
			continue
		}
		if tier.Contains(distanceKM) {
			matches = append(matches, tier)
		}
	}
	if len(matches) == 0 {
		return 0, false
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].KmMin < matches[j].KmMin
	})
	return matches[0].AllowanceMinutes, true
}

func fallbackLadder(distanceKM float64) int {
	if distanceKM < 0 {
		distanceKM = 0
	}
	if distanceKM >= maxLadderKM {
		return 0
	}
	if distanceKM < baseBandKM {
		return baseAllowanceMinutes
	}
	band := int((distanceKM - baseBandKM) / bandWidthKM)
	return baseAllowanceMinutes + bandStepMinutes*(band+1)
}

// Evaluate applies an allowance to a known execution time. A zero allowance is an
// automatic breach regardless of how fast the leg completed.
func Evaluate(allowanceMinutes int, executionMinutes float64) bool {
	if allowanceMinutes <= 0 {
		return false
	}
	return executionMinutes <= float64(allowanceMinutes)
}
