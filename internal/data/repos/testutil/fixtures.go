package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
)

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.UserProfile {
	tb.Helper()
	p := &types.UserProfile{
		ID:             uuid.New(),
		Email:          email,
		Role:           types.RoleUser,
		Plan:           types.PlanFree,
		UsageResetDate: time.Now().UTC().AddDate(0, 1, 0),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

// SeedAnalysis inserts a completed analysis; mutate tweaks it before insert.
func SeedAnalysis(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, mutate func(a *types.Analysis)) *types.Analysis {
	tb.Helper()
	a := &types.Analysis{
		ID:                   uuid.New(),
		UserID:               userID,
		SubstrateA:           "PP",
		SubstrateB:           "Stainless Steel",
		SubstrateANormalized: "polypropylene",
		SubstrateBNormalized: "stainless steel",
		FailureMode:          "adhesive",
		FailureDescription:   "peeled off",
		RootCauseCategory:    "surface_energy",
		Status:               types.StatusCompleted,
	}
	if mutate != nil {
		mutate(a)
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed analysis: %v", err)
	}
	return a
}

func SeedFeedback(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, analysisID uuid.UUID, outcome string, createdAt time.Time) *types.FeedbackRecord {
	tb.Helper()
	aid := analysisID
	f := &types.FeedbackRecord{
		ID:         uuid.New(),
		UserID:     userID,
		AnalysisID: &aid,
		WasHelpful: true,
		Outcome:    outcome,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed feedback: %v", err)
	}
	return f
}

// PatternByKey loads a knowledge pattern by its normalized key, nil if absent.
func PatternByKey(tb testing.TB, ctx context.Context, tx *gorm.DB, a, b, category string) *types.KnowledgePattern {
	tb.Helper()
	var rows []*types.KnowledgePattern
	if err := tx.WithContext(ctx).
		Where("substrate_a_normalized = ? AND substrate_b_normalized = ? AND root_cause_category = ?", a, b, category).
		Limit(1).
		Find(&rows).Error; err != nil {
		tb.Fatalf("load pattern: %v", err)
	}
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}
