// Package recalc re-derives the SLA fields of every stored delivery leg against
// the current tier configuration.
package recalc

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/sla"
)

// defaultPageSize is how many legs are loaded per keyset page when no size is
// configured.
const defaultPageSize = 500

// LegStore is the delivery leg access the recalculation walks through.
type LegStore interface {
	ListPage(ctx context.Context, afterID string, limit int) ([]models.DeliveryLeg, error)
	UpdateSLA(ctx context.Context, update models.SLAUpdate) error
}

// TierStore reads SLA tier configuration.
type TierStore interface {
	ListByAudience(ctx context.Context, audience string) ([]models.SLATier, error)
}

// Service recalculates SLA verdicts across the whole leg table. Tiers are
// snapshotted once at the start so every leg in one run is judged against the
// same configuration.
type Service struct {
	legs     LegStore
	tiers    TierStore
	pageSize int
	logger   ectologger.Logger
}

// NewService creates a new recalculation service
func NewService(legs LegStore, tiers TierStore, logger ectologger.Logger) *Service {
	return &Service{
		legs:     legs,
		tiers:    tiers,
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

// SetPageSize overrides how many legs are loaded per page. Values below 1 keep
// the default.
func (s *Service) SetPageSize(size int) {
	if size > 0 {
		s.pageSize = size
	}
}

// Recalculate re-derives deadline, execution, and verdict fields for every leg.
// Legs whose derived fields are already correct are left untouched, so a second
// run under unchanged tiers writes nothing.
func (s *Service) Recalculate(ctx context.Context) (*models.RecalculateResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "recalc.Service.Recalculate")
	defer span.End()

	customerTiers, err := s.tiers.ListByAudience(ctx, models.TierAudienceCustomer)
	if err != nil {
		return nil, err
	}
	professionalTiers, err := s.tiers.ListByAudience(ctx, models.TierAudienceProfessional)
	if err != nil {
		return nil, err
	}

	resp := &models.RecalculateResponse{Success: true}
	afterID := ""

	for {
		legs, err := s.legs.ListPage(ctx, afterID, s.pageSize)
		if err != nil {
			return nil, err
		}
		if len(legs) == 0 {
			break
		}

		for _, leg := range legs {
			update := derive(leg, customerTiers, professionalTiers)

			switch {
			case update.WithinSLA == nil:
				resp.NoDataCount++
			case *update.WithinSLA:
				resp.WithinSLACount++
			default:
				resp.BreachedCount++
			}

			if !changed(leg, update) {
				continue
			}
			if err := s.legs.UpdateSLA(ctx, update); err != nil {
				return nil, err
			}
			resp.Updated++
		}

		afterID = legs[len(legs)-1].ID
		if len(legs) < s.pageSize {
			break
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"updated":    resp.Updated,
		"within_sla": resp.WithinSLACount,
		"breached":   resp.BreachedCount,
		"no_data":    resp.NoDataCount,
	}).Info("Completed SLA recalculation")
	return resp, nil
}

// derive computes the SLA fields a leg should carry under the given tiers.
// Stored execution times are kept; they are only derived from timestamps when
// the leg never had one.
func derive(leg models.DeliveryLeg, customerTiers, professionalTiers []models.SLATier) models.SLAUpdate {
	update := models.SLAUpdate{ID: leg.ID}

	update.ExecutionMinutes = leg.ExecutionMinutes
	if update.ExecutionMinutes == nil {
		update.ExecutionMinutes = minutesBetween(leg.RequestedAt, leg.FinalizedAt)
	}

	if leg.DistanceKM != nil {
		deadline := sla.Resolve(leg.ClientID, leg.CostCenter, *leg.DistanceKM, customerTiers)
		update.DeadlineMinutes = &deadline

		professionalDeadline := sla.ResolveProfessional(leg.ClientID, leg.CostCenter, *leg.DistanceKM, professionalTiers)
		update.ProfessionalDeadlineMinutes = &professionalDeadline
	}

	if update.DeadlineMinutes != nil && update.ExecutionMinutes != nil {
		within := sla.Evaluate(*update.DeadlineMinutes, *update.ExecutionMinutes)
		update.WithinSLA = &within
	}

	update.ProfessionalDeliveryMinutes = leg.ProfessionalDeliveryMinutes
	if update.ProfessionalDeliveryMinutes == nil {
		update.ProfessionalDeliveryMinutes = minutesBetween(leg.AllocatedAt, leg.FinalizedAt)
	}
	if update.ProfessionalDeadlineMinutes != nil && update.ProfessionalDeliveryMinutes != nil {
		within := sla.Evaluate(*update.ProfessionalDeadlineMinutes, *update.ProfessionalDeliveryMinutes)
		update.ProfessionalWithinSLA = &within
	}

	return update
}

// changed reports whether the derived fields differ from what the leg stores.
func changed(leg models.DeliveryLeg, update models.SLAUpdate) bool {
	return !equalFloat(leg.ExecutionMinutes, update.ExecutionMinutes) ||
		!equalInt(leg.DeadlineMinutes, update.DeadlineMinutes) ||
		!equalBool(leg.WithinSLA, update.WithinSLA) ||
		!equalInt(leg.ProfessionalDeadlineMinutes, update.ProfessionalDeadlineMinutes) ||
		!equalFloat(leg.ProfessionalDeliveryMinutes, update.ProfessionalDeliveryMinutes) ||
		!equalBool(leg.ProfessionalWithinSLA, update.ProfessionalWithinSLA)
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func minutesBetween(start, end *time.Time) *float64 {
	if start == nil || end == nil {
		return nil
	}
	minutes := end.Sub(*start).Minutes()
	if minutes < 0 {
		return nil
	}
	return &minutes
}
