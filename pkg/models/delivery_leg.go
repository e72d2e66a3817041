package models

import (
	"time"
)

// DeliveryLeg is one stop within a customer order. Leg 1 is the pickup/allocation
// stop; legs >= 2 are delivery stops.
// Field order matches schema: id, order_id, leg_number, client_id, cost_center, professional_id, ...
type DeliveryLeg struct {
	ID             string  `json:"id" db:"id"`
	OrderID        int64   `json:"order_id" db:"order_id"`
	LegNumber      int     `json:"leg_number" db:"leg_number"`
	ClientID       string  `json:"client_id" db:"client_id"`
	CostCenter     string  `json:"cost_center" db:"cost_center"`
	ProfessionalID string  `json:"professional_id" db:"professional_id"`
	DistanceKM     *float64 `json:"distance_km,omitempty" db:"distance_km"`

	RequestedAt *time.Time `json:"requested_at,omitempty" db:"requested_at"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty" db:"allocated_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty" db:"finalized_at"`

	Value              *float64 `json:"value,omitempty" db:"value"`
	ProfessionalPayout *float64 `json:"professional_payout,omitempty" db:"professional_payout"`

	// Customer SLA. WithinSLA is tri-state: nil means unknown.
	ExecutionMinutes *float64 `json:"execution_minutes,omitempty" db:"execution_minutes"`
	DeadlineMinutes  *int     `json:"deadline_minutes,omitempty" db:"deadline_minutes"`
	WithinSLA        *bool    `json:"within_sla,omitempty" db:"within_sla"`

	// Professional SLA, resolved against an independent tier set.
	ProfessionalDeadlineMinutes *int     `json:"professional_deadline_minutes,omitempty" db:"professional_deadline_minutes"`
	ProfessionalDeliveryMinutes *float64 `json:"professional_delivery_minutes,omitempty" db:"professional_delivery_minutes"`
	ProfessionalWithinSLA       *bool    `json:"professional_within_sla,omitempty" db:"professional_within_sla"`

	Occurrence *string  `json:"occurrence,omitempty" db:"occurrence"`
	Address    *string  `json:"address,omitempty" db:"address"`
	Latitude   *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64 `json:"longitude,omitempty" db:"longitude"`

	// UploadID links the leg to its ingestion batch. Legacy rows imported before
	// the upload ledger existed have no upload_id.
	UploadID *string `json:"upload_id,omitempty" db:"upload_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SLAUpdate carries the recalculated SLA fields for one leg. These are the only
// DeliveryLeg fields that may change after ingestion.
type SLAUpdate struct {
	ID                          string
	ExecutionMinutes            *float64
	DeadlineMinutes             *int
	WithinSLA                   *bool
	ProfessionalDeadlineMinutes *int
	ProfessionalDeliveryMinutes *float64
	ProfessionalWithinSLA       *bool
}
