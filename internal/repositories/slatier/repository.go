package slatier

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/models"
)

var tierColumns = []string{
	"id", "audience", "scope_kind", "scope_key",
	"km_min", "km_max", "allowance_minutes", "created_at", "updated_at",
}

// Repository reads SLA tier configuration. Tiers are written through a separate
// configuration surface; clover only consumes them.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new SLA tier repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByAudience returns every tier of one audience, ascending by km_min so
// callers see intervals in resolution tie-break order.
func (r *Repository) ListByAudience(ctx context.Context, audience string) ([]models.SLATier, error) {
	ctx, span := tracing.StartSpan(ctx, "slatier.Repository.ListByAudience")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(tierColumns...)
	sb.From("sla_tiers")
	sb.Where(sb.Equal("audience", audience))
	sb.OrderBy("scope_kind", "scope_key", "km_min")

	query, args := sb.Build()
	var tiers []models.SLATier
	if err := r.db.SelectContext(ctx, &tiers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"audience": audience}).Error("Failed to list SLA tiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list SLA tiers")
	}
	return tiers, nil
}
