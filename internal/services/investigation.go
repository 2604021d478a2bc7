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

// 8D workflow. Each step may advance or fall back one step; closed is final.
var investigationTransitions = map[string][]string{
	types.InvestigationOpen:             {types.InvestigationContainment},
	types.InvestigationContainment:      {types.InvestigationRootCause, types.InvestigationOpen},
	types.InvestigationRootCause:        {types.InvestigationCorrectiveAction, types.InvestigationContainment},
	types.InvestigationCorrectiveAction: {types.InvestigationVerification, types.InvestigationRootCause},
	types.InvestigationVerification:     {types.InvestigationClosed, types.InvestigationCorrectiveAction},
	types.InvestigationClosed:           {},
}

func CanTransition(from, to string) bool {
	for _, next := range investigationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type InvestigationInput struct {
	Title      string     `json:"title"`
	AnalysisID *uuid.UUID `json:"analysis_id"`
	Notes      string     `json:"notes"`
}

type InvestigationService interface {
	Create(ctx context.Context, userID uuid.UUID, in InvestigationInput) (*types.Investigation, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*types.Investigation, error)
	List(ctx context.Context, userID uuid.UUID) ([]*types.Investigation, error)
	Transition(ctx context.Context, userID, id uuid.UUID, to string, notes *string) (*types.Investigation, error)
}

type investigationService struct {
	log            *logger.Logger
	investigations repos.InvestigationRepo
	analyses       repos.AnalysisRepo
}

func NewInvestigationService(baseLog *logger.Logger, investigations repos.InvestigationRepo, analyses repos.AnalysisRepo) InvestigationService {
	return &investigationService{
		log:            baseLog.With("service", "InvestigationService"),
		investigations: investigations,
		analyses:       analyses,
	}
}

func (s *investigationService) Create(ctx context.Context, userID uuid.UUID, in InvestigationInput) (*types.Investigation, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apierr.BadRequest("invalid_request", "title is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	if in.AnalysisID != nil {
		a, err := s.analyses.GetForUser(dbc, userID, *in.AnalysisID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, apierr.New(http.StatusNotFound, "analysis_not_found", ErrNotFound)
		}
	}
	row := &types.Investigation{
		ID:         uuid.New(),
		UserID:     userID,
		AnalysisID: in.AnalysisID,
		Title:      title,
		Status:     types.InvestigationOpen,
		Notes:      strings.TrimSpace(in.Notes),
	}
	if err := s.investigations.Create(dbc, row); err != nil {
		return nil, fmt.Errorf("create investigation: %w", err)
	}
	return row, nil
}

func (s *investigationService) Get(ctx context.Context, userID, id uuid.UUID) (*types.Investigation, error) {
	row, err := s.investigations.GetForUser(dbctx.Context{Ctx: ctx}, userID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apierr.New(http.StatusNotFound, "investigation_not_found", ErrNotFound)
	}
	return row, nil
}

func (s *investigationService) List(ctx context.Context, userID uuid.UUID) ([]*types.Investigation, error) {
	return s.investigations.ListByUser(dbctx.Context{Ctx: ctx}, userID)
}

// Transition moves an investigation along the 8D graph. The status update is
// conditional on the status read, so a concurrent change surfaces as a
// conflict rather than being overwritten.
func (s *investigationService) Transition(ctx context.Context, userID, id uuid.UUID, to string, notes *string) (*types.Investigation, error) {
	to = strings.ToLower(strings.TrimSpace(to))
	if _, known := investigationTransitions[to]; !known {
		return nil, apierr.BadRequest("invalid_request", "unknown status %q", to)
	}
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		return nil, apierr.Conflict("invalid_transition",
			fmt.Errorf("%s -> %s: %w", current.Status, to, ErrInvalidTransition))
	}
	ok, err := s.investigations.CompareAndSetStatus(dbctx.Context{Ctx: ctx}, id, current.Status, to, notes)
	if err != nil {
		return nil, fmt.Errorf("update investigation: %w", err)
	}
	if !ok {
		return nil, apierr.Conflict("invalid_transition",
			fmt.Errorf("investigation changed concurrently: %w", ErrInvalidTransition))
	}
	return s.Get(ctx, userID, id)
}
