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

type FeedbackInput struct {
	AnalysisID      *uuid.UUID `json:"analysis_id"`
	SpecID          *uuid.UUID `json:"spec_id"`
	WasHelpful      *bool      `json:"was_helpful"`
	Outcome         string     `json:"outcome"`
	ActualRootCause string     `json:"actual_root_cause"`
	WhatWorked      string     `json:"what_worked"`
	Rating          *int       `json:"rating"`
}

type FeedbackService interface {
	// Submit creates or replaces the caller's feedback for one analysis or spec.
	Submit(ctx context.Context, userID uuid.UUID, in FeedbackInput) (*types.FeedbackRecord, error)
	GetForAnalysis(ctx context.Context, userID, analysisID uuid.UUID) (*types.FeedbackRecord, error)
}

type feedbackService struct {
	log      *logger.Logger
	feedback repos.FeedbackRepo
	analyses repos.AnalysisRepo
	specs    repos.SpecRequestRepo
}

func NewFeedbackService(baseLog *logger.Logger, feedback repos.FeedbackRepo, analyses repos.AnalysisRepo, specs repos.SpecRequestRepo) FeedbackService {
	return &feedbackService{
		log:      baseLog.With("service", "FeedbackService"),
		feedback: feedback,
		analyses: analyses,
		specs:    specs,
	}
}

func (s *feedbackService) Submit(ctx context.Context, userID uuid.UUID, in FeedbackInput) (*types.FeedbackRecord, error) {
	if err := validateFeedback(in); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}

	// A nil-UUID id counts as absent; validation left exactly one real id.
	onAnalysis := hasID(in.AnalysisID)
	if onAnalysis {
		in.SpecID = nil
		a, err := s.analyses.GetForUser(dbc, userID, *in.AnalysisID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, apierr.New(http.StatusNotFound, "analysis_not_found", ErrNotFound)
		}
	} else {
		in.AnalysisID = nil
		sr, err := s.specs.GetForUser(dbc, userID, *in.SpecID)
		if err != nil {
			return nil, err
		}
		if sr == nil {
			return nil, apierr.New(http.StatusNotFound, "spec_not_found", ErrNotFound)
		}
	}

	row := &types.FeedbackRecord{
		ID:              uuid.New(),
		UserID:          userID,
		AnalysisID:      in.AnalysisID,
		SpecID:          in.SpecID,
		WasHelpful:      *in.WasHelpful,
		Outcome:         in.Outcome,
		ActualRootCause: strings.TrimSpace(in.ActualRootCause),
		WhatWorked:      strings.TrimSpace(in.WhatWorked),
		Rating:          in.Rating,
	}
	if err := s.feedback.Upsert(dbc, row); err != nil {
		return nil, fmt.Errorf("upsert feedback: %w", err)
	}
	// the upsert may have hit an existing row; return that one
	var stored *types.FeedbackRecord
	var err error
	if onAnalysis {
		stored, err = s.feedback.GetForUserAnalysis(dbc, userID, *in.AnalysisID)
	} else {
		stored, err = s.feedback.GetForUserSpec(dbc, userID, *in.SpecID)
	}
	if err != nil {
		return nil, fmt.Errorf("reload feedback: %w", err)
	}
	if stored == nil {
		return row, nil
	}
	return stored, nil
}

func (s *feedbackService) GetForAnalysis(ctx context.Context, userID, analysisID uuid.UUID) (*types.FeedbackRecord, error) {
	row, err := s.feedback.GetForUserAnalysis(dbctx.Context{Ctx: ctx}, userID, analysisID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apierr.New(http.StatusNotFound, "feedback_not_found", ErrNotFound)
	}
	return row, nil
}

func validateFeedback(in FeedbackInput) error {
	if hasID(in.AnalysisID) == hasID(in.SpecID) {
		return apierr.BadRequest("invalid_request", "exactly one of analysis_id or spec_id is required")
	}
	if in.WasHelpful == nil {
		return apierr.BadRequest("invalid_request", "was_helpful is required")
	}
	if !types.IsValidOutcome(in.Outcome) {
		return apierr.BadRequest("invalid_outcome", "unknown outcome %q", in.Outcome)
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return apierr.BadRequest("invalid_request", "rating must be between 1 and 5")
	}
	return nil
}

func hasID(id *uuid.UUID) bool {
	return id != nil && *id != uuid.Nil
}
