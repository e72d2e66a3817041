package models

import "time"

// DailySummary is the date-keyed rollup of delivery legs. Summary rows carry no
// information that is not derivable from delivery_legs; the rollup engine
// overwrites them wholesale.
type DailySummary struct {
	Date               time.Time `json:"date" db:"date"`
	OrderCount         int       `json:"order_count" db:"order_count"`
	DeliveryCount      int       `json:"delivery_count" db:"delivery_count"`
	OnTimeCount        int       `json:"on_time_count" db:"on_time_count"`
	LateCount          int       `json:"late_count" db:"late_count"`
	OnTimeRate         float64   `json:"on_time_rate" db:"on_time_rate"`
	ReturnCount        int       `json:"return_count" db:"return_count"`
	TotalValue         float64   `json:"total_value" db:"total_value"`
	TotalPayout        float64   `json:"total_payout" db:"total_payout"`
	AvgDeliveryMinutes *float64  `json:"avg_delivery_minutes,omitempty" db:"avg_delivery_minutes"`
	AvgPickupMinutes   *float64  `json:"avg_pickup_minutes,omitempty" db:"avg_pickup_minutes"`
	ProfessionalCount  int       `json:"professional_count" db:"professional_count"`
	AvgProductivity    float64   `json:"avg_productivity" db:"avg_productivity"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// ClientDailySummary is the (date, client) rollup.
type ClientDailySummary struct {
	Date               time.Time `json:"date" db:"date"`
	ClientID           string    `json:"client_id" db:"client_id"`
	OrderCount         int       `json:"order_count" db:"order_count"`
	DeliveryCount      int       `json:"delivery_count" db:"delivery_count"`
	OnTimeCount        int       `json:"on_time_count" db:"on_time_count"`
	LateCount          int       `json:"late_count" db:"late_count"`
	OnTimeRate         float64   `json:"on_time_rate" db:"on_time_rate"`
	ReturnCount        int       `json:"return_count" db:"return_count"`
	TotalValue         float64   `json:"total_value" db:"total_value"`
	TotalPayout        float64   `json:"total_payout" db:"total_payout"`
	AvgDeliveryMinutes *float64  `json:"avg_delivery_minutes,omitempty" db:"avg_delivery_minutes"`
	AvgPickupMinutes   *float64  `json:"avg_pickup_minutes,omitempty" db:"avg_pickup_minutes"`
	ProfessionalCount  int       `json:"professional_count" db:"professional_count"`
	AvgProductivity    float64   `json:"avg_productivity" db:"avg_productivity"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// ProfessionalDailySummary is the (date, professional) rollup.
type ProfessionalDailySummary struct {
	Date               time.Time `json:"date" db:"date"`
	ProfessionalID     string    `json:"professional_id" db:"professional_id"`
	OrderCount         int       `json:"order_count" db:"order_count"`
	DeliveryCount      int       `json:"delivery_count" db:"delivery_count"`
	OnTimeCount        int       `json:"on_time_count" db:"on_time_count"`
	LateCount          int       `json:"late_count" db:"late_count"`
	OnTimeRate         float64   `json:"on_time_rate" db:"on_time_rate"`
	ReturnCount        int       `json:"return_count" db:"return_count"`
	TotalPayout        float64   `json:"total_payout" db:"total_payout"`
	AvgDeliveryMinutes *float64  `json:"avg_delivery_minutes,omitempty" db:"avg_delivery_minutes"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
