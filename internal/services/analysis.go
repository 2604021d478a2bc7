package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

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

const failedWriteTimeout = 5 * time.Second

type AnalysisInput struct {
	MaterialCategory    string `json:"material_category"`
	MaterialSubcategory string `json:"material_subcategory"`
	SubstrateA          string `json:"substrate_a"`
	SubstrateB          string `json:"substrate_b"`
	FailureMode         string `json:"failure_mode"`
	FailureDescription  string `json:"failure_description"`
	Industry            string `json:"industry"`
	Environment         string `json:"environment"`
	ProductName         string `json:"product_name"`
}

type AnalysisService interface {
	Create(ctx context.Context, userID uuid.UUID, in AnalysisInput) (*types.Analysis, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*types.Analysis, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Analysis, error)
}

type analysisService struct {
	log       *logger.Logger
	analyses  repos.AnalysisRepo
	usage     *billing.UsageService
	knowledge *knowledge.Service
	llm       anthropic.Client
	metrics   *observability.Metrics
}

func NewAnalysisService(
	baseLog *logger.Logger,
	analyses repos.AnalysisRepo,
	usage *billing.UsageService,
	ks *knowledge.Service,
	llm anthropic.Client,
	metrics *observability.Metrics,
) AnalysisService {
	return &analysisService{
		log:       baseLog.With("service", "AnalysisService"),
		analyses:  analyses,
		usage:     usage,
		knowledge: ks,
		llm:       llm,
		metrics:   metrics,
	}
}

func (s *analysisService) Create(ctx context.Context, userID uuid.UUID, in AnalysisInput) (*types.Analysis, error) {
	if strings.TrimSpace(in.FailureMode) == "" {
		return nil, apierr.BadRequest("invalid_request", "failure_mode is required")
	}
	if strings.TrimSpace(in.FailureDescription) == "" {
		return nil, apierr.BadRequest("invalid_request", "failure_description is required")
	}

	profile, err := s.usage.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.usage.Check(profile, billing.KindAnalysis); err != nil {
		return nil, quotaError(err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	row := &types.Analysis{
		ID:                   uuid.New(),
		UserID:               userID,
		MaterialCategory:     strings.TrimSpace(in.MaterialCategory),
		MaterialSubcategory:  strings.TrimSpace(in.MaterialSubcategory),
		SubstrateA:           strings.TrimSpace(in.SubstrateA),
		SubstrateB:           strings.TrimSpace(in.SubstrateB),
		SubstrateANormalized: knowledge.Normalize(in.SubstrateA),
		SubstrateBNormalized: knowledge.Normalize(in.SubstrateB),
		FailureMode:          strings.TrimSpace(in.FailureMode),
		FailureDescription:   strings.TrimSpace(in.FailureDescription),
		Industry:             strings.TrimSpace(in.Industry),
		Environment:          strings.TrimSpace(in.Environment),
		ProductName:          strings.TrimSpace(in.ProductName),
		Status:               types.StatusAnalyzing,
	}
	if err := s.analyses.Create(dbc, row); err != nil {
		return nil, fmt.Errorf("create analysis: %w", err)
	}

	patterns := s.knowledge.FindPatterns(ctx, knowledge.PatternQuery{
		SubstrateA:     in.SubstrateA,
		SubstrateB:     in.SubstrateB,
		AdhesiveFamily: in.MaterialSubcategory,
	})

	var result AnalysisResult
	comp, err := s.llm.CompleteJSON(ctx, anthropic.CompletionRequest{
		Operation: "analysis",
		System:    analysisSystemPrompt,
		Prompt:    buildAnalysisPrompt(in, knowledge.FormatForPrompt(patterns)),
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

	rootCauses, _ := json.Marshal(result.RootCauses)
	recs, _ := json.Marshal(result.Recommendations)
	updates := map[string]any{
		"root_causes":              datatypes.JSON(rootCauses),
		"recommendations":          datatypes.JSON(recs),
		"prevention_plan":          result.PreventionPlan,
		"root_cause_category":      knowledge.ClassifyRootCause(result.RootCauses),
		"confidence_score":         calibrated,
		"ai_confidence":            ai,
		"knowledge_evidence_count": evidence,
		"knowledge_patterns_used":  len(patterns),
		"status":                   types.StatusCompleted,
	}
	if err := s.analyses.UpdateFields(dbc, row.ID, updates); err != nil {
		return nil, fmt.Errorf("store analysis result: %w", err)
	}
	if err := s.usage.Increment(ctx, userID, billing.KindAnalysis); err != nil {
		s.log.Error("Failed to increment analysis usage", "user_id", userID, "error", err)
	}

	return s.Get(ctx, userID, row.ID)
}

func (s *analysisService) Get(ctx context.Context, userID, id uuid.UUID) (*types.Analysis, error) {
	row, err := s.analyses.GetForUser(dbctx.Context{Ctx: ctx}, userID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apierr.New(http.StatusNotFound, "analysis_not_found", ErrNotFound)
	}
	return row, nil
}

func (s *analysisService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Analysis, error) {
	return s.analyses.ListByUser(dbctx.Context{Ctx: ctx}, userID, limit, offset)
}

// markFailed records the failure even when the request context is gone.
func (s *analysisService) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failedWriteTimeout)
	defer cancel()
	msg := "analysis failed"
	if cause != nil && !errors.Is(cause, context.Canceled) {
		msg = truncate(cause.Error(), 500)
	}
	if err := s.analyses.UpdateFields(dbctx.Context{Ctx: wctx}, id, map[string]any{
		"status":        types.StatusFailed,
		"error_message": msg,
	}); err != nil {
		s.log.Error("Failed to mark analysis failed", "analysis_id", id, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
