package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/apierr"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

// alertSources lists, for each target status, the statuses it may be reached from.
var alertSources = map[string][]string{
	types.AlertStatusAcknowledged: {types.AlertStatusActive},
	types.AlertStatusResolved:     {types.AlertStatusActive, types.AlertStatusAcknowledged},
}

type AlertService interface {
	List(ctx context.Context, status string, limit int) ([]*types.PatternAlert, error)
	Transition(ctx context.Context, id uuid.UUID, to string, actor uuid.UUID) (*types.PatternAlert, error)
}

type alertService struct {
	log    *logger.Logger
	alerts repos.PatternAlertRepo
}

func NewAlertService(baseLog *logger.Logger, alerts repos.PatternAlertRepo) AlertService {
	return &alertService{log: baseLog.With("service", "AlertService"), alerts: alerts}
}

func (s *alertService) List(ctx context.Context, status string, limit int) ([]*types.PatternAlert, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", types.AlertStatusActive, types.AlertStatusAcknowledged, types.AlertStatusResolved:
	default:
		return nil, apierr.BadRequest("invalid_request", "unknown alert status %q", status)
	}
	return s.alerts.List(dbctx.Context{Ctx: ctx}, status, limit)
}

func (s *alertService) Transition(ctx context.Context, id uuid.UUID, to string, actor uuid.UUID) (*types.PatternAlert, error) {
	to = strings.ToLower(strings.TrimSpace(to))
	from, ok := alertSources[to]
	if !ok {
		return nil, apierr.BadRequest("invalid_request", "unknown target status %q", to)
	}
	dbc := dbctx.Context{Ctx: ctx}
	current, err := s.alerts.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apierr.New(http.StatusNotFound, "alert_not_found", ErrNotFound)
	}

	updated, err := s.alerts.UpdateStatus(dbc, id, from, to, actor)
	if err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	if !updated {
		return nil, apierr.Conflict("invalid_transition",
			fmt.Errorf("alert %s: %s -> %s: %w", id, current.Status, to, ErrInvalidTransition))
	}
	s.log.Info("Pattern alert transitioned", "alert_id", id, "from", current.Status, "to", to)
	return s.alerts.GetByID(dbc, id)
}
