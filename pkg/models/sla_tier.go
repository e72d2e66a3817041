package models

import "time"

// Tier audiences. Customer and professional tiers are independent sets.
const (
	TierAudienceCustomer     = "customer"
	TierAudienceProfessional = "professional"
)

// Tier scope kinds, in resolution precedence order.
const (
	TierScopeClient     = "client"
	TierScopeCostCenter = "cost_center"
	TierScopeDefault    = "default"
)

// SLATier maps a half-open distance interval [km_min, km_max) to an allowance in
// minutes for one scope. A nil KmMax means the interval is unbounded.
type SLATier struct {
	ID               string    `json:"id" db:"id"`
	Audience         string    `json:"audience" db:"audience" validate:"required,oneof=customer professional"`
	ScopeKind        string    `json:"scope_kind" db:"scope_kind" validate:"required,oneof=client cost_center default"`
	ScopeKey         string    `json:"scope_key" db:"scope_key"`
	KmMin            float64   `json:"km_min" db:"km_min"`
	KmMax            *float64  `json:"km_max,omitempty" db:"km_max"`
	AllowanceMinutes int       `json:"allowance_minutes" db:"allowance_minutes" validate:"gte=0"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Contains reports whether distance falls inside the tier's [km_min, km_max) interval.
func (t SLATier) Contains(distanceKM float64) bool {
	if distanceKM < t.KmMin {
		return false
	}
	if t.KmMax == nil {
		return true
	}
	return distanceKM < *t.KmMax
}
