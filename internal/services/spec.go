package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/anthropic"
	"github.com/substratelabs/failurelens-backend/internal/platform/apierr"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type SpecInput struct {
	SubstrateA       string          `json:"substrate_a"`
	SubstrateB       string          `json:"substrate_b"`
	BondRequirements json.RawMessage `json:"bond_requirements"`
	Environment      string          `json:"environment"`
	Industry         string          `json:"industry"`
}

type SpecService interface {
	Create(ctx context.Context, userID uuid.UUID, in SpecInput) (*types.SpecRequest, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*types.SpecRequest, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.SpecRequest, error)
}

type specService struct {
	log       *logger.Logger
	specs     repos.SpecRequestRepo
	usage     *billing.UsageService
	knowledge *knowledge.Service
	llm       anthropic.Client
	metrics   *observability.Metrics
}

func NewSpecService(
	baseLog *logger.Logger,
	specs repos.SpecRequestRepo,
	usage *billing.UsageService,
	ks *knowledge.Service,
	llm anthropic.Client,
	metrics *observability.Metrics,
) SpecService {
	return &specService{
		log:       baseLog.With("service", "SpecService"),
		specs:     specs,
		usage:     usage,
		knowledge: ks,
		llm:       llm,
		metrics:   metrics,
	}
}

func (s *specService) Create(ctx context.Context, userID uuid.UUID, in SpecInput) (*types.SpecRequest, error) {
	if strings.TrimSpace(in.SubstrateA) == "" && strings.TrimSpace(in.SubstrateB) == "" {
		return nil, apierr.BadRequest("invalid_request", "at least one substrate is required")
	}
	if len(in.BondRequirements) > 0 && !json.Valid(in.BondRequirements) {
		return nil, apierr.BadRequest("invalid_request", "bond_requirements must be JSON")
	}

	profile, err := s.usage.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.usage.Check(profile, billing.KindSpec); err != nil {
		return nil, quotaError(err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	row := &types.SpecRequest{
		ID:                   uuid.New(),
		UserID:               userID,
		SubstrateA:           strings.TrimSpace(in.SubstrateA),
		SubstrateB:           strings.TrimSpace(in.SubstrateB),
		SubstrateANormalized: knowledge.Normalize(in.SubstrateA),
		SubstrateBNormalized: knowledge.Normalize(in.SubstrateB),
		Environment:          strings.TrimSpace(in.Environment),
		Industry:             strings.TrimSpace(in.Industry),
		Status:               types.StatusAnalyzing,
	}
	if len(in.BondRequirements) > 0 {
		row.BondRequirements = datatypes.JSON(in.BondRequirements)
	}
	if err := s.specs.Create(dbc, row); err != nil {
		return nil, fmt.Errorf("create spec request: %w", err)
	}

	patterns := s.knowledge.FindPatterns(ctx, knowledge.PatternQuery{
		SubstrateA: in.SubstrateA,
		SubstrateB: in.SubstrateB,
	})

	var result SpecResult
	comp, err := s.llm.CompleteJSON(ctx, anthropic.CompletionRequest{
		Operation: "spec",
		System:    specSystemPrompt,
		Prompt:    buildSpecPrompt(in, knowledge.FormatForPrompt(patterns)),
	}, &result)
	if err != nil {
		s.markFailed(ctx, row.ID, err)
		if comp != nil {
			return nil, llmInvalid(err)
		}
		return nil, llmUnavailable(err)
	}
	if err := result.Validate(); err != nil {
		s.markFailed(ctx, row.ID, err)
		return nil, llmInvalid(err)
	}

	ai := result.AIConfidence()
	calibrated, evidence := knowledge.CalibrateConfidence(ai, patterns)
	s.metrics.ObserveCalibration(ai, calibrated)

	prep, _ := json.Marshal(result.SurfacePrep)
	alts, _ := json.Marshal(result.Alternatives)
	if err := s.specs.UpdateFields(dbc, row.ID, map[string]any{
		"recommended_family":       result.RecommendedFamily,
		"recommended_product":      result.RecommendedProduct,
		"surface_prep":             datatypes.JSON(prep),
		"alternatives":             datatypes.JSON(alts),
		"rationale":                result.Rationale,
		"confidence_score":         calibrated,
		"ai_confidence":            ai,
		"knowledge_evidence_count": evidence,
		"status":                   types.StatusCompleted,
	}); err != nil {
		return nil, fmt.Errorf("store spec result: %w", err)
	}
	if err := s.usage.Increment(ctx, userID, billing.KindSpec); err != nil {
		s.log.Error("Failed to increment spec usage", "user_id", userID, "error", err)
	}
	return s.Get(ctx, userID, row.ID)
}

func (s *specService) Get(ctx context.Context, userID, id uuid.UUID) (*types.SpecRequest, error) {
	row, err := s.specs.GetForUser(dbctx.Context{Ctx: ctx}, userID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apierr.New(http.StatusNotFound, "spec_not_found", ErrNotFound)
	}
	return row, nil
}

func (s *specService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.SpecRequest, error) {
	return s.specs.ListByUser(dbctx.Context{Ctx: ctx}, userID, limit, offset)
}

func (s *specService) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failedWriteTimeout)
	defer cancel()
	msg := "spec request failed"
	if cause != nil && !errors.Is(cause, context.Canceled) {
		msg = truncate(cause.Error(), 500)
	}
	if err := s.specs.UpdateFields(dbctx.Context{Ctx: wctx}, id, map[string]any{
		"status":        types.StatusFailed,
		"error_message": msg,
	}); err != nil {
		s.log.Error("Failed to mark spec request failed", "spec_id", id, "error", err)
	}
}
