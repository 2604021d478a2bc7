package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type FeedbackRepo interface {
	// Upsert keeps at most one row per (user, analysis) and per (user, spec).
	Upsert(dbc dbctx.Context, row *types.FeedbackRecord) error
	GetForUserAnalysis(dbc dbctx.Context, userID, analysisID uuid.UUID) (*types.FeedbackRecord, error)
	GetForUserSpec(dbc dbctx.Context, userID, specID uuid.UUID) (*types.FeedbackRecord, error)
	// ListRecentForAnalyses returns feedback tied to an analysis, newest first.
	ListRecentForAnalyses(dbc dbctx.Context, limit int) ([]*types.FeedbackRecord, error)
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return &feedbackRepo{db: db, log: baseLog.With("repo", "FeedbackRepo")}
}

var feedbackUpdateColumns = []string{
	"was_helpful",
	"outcome",
	"actual_root_cause",
	"what_worked",
	"rating",
	"updated_at",
}

func (r *feedbackRepo) Upsert(dbc dbctx.Context, row *types.FeedbackRecord) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	conflictCols := []clause.Column{{Name: "user_id"}, {Name: "analysis_id"}}
	if row.AnalysisID == nil && row.SpecID != nil {
		conflictCols = []clause.Column{{Name: "user_id"}, {Name: "spec_id"}}
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   conflictCols,
			DoUpdates: clause.AssignmentColumns(feedbackUpdateColumns),
		}).
		Create(row).Error
}

func (r *feedbackRepo) GetForUserAnalysis(dbc dbctx.Context, userID, analysisID uuid.UUID) (*types.FeedbackRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.FeedbackRecord
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND analysis_id = ?", userID, analysisID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *feedbackRepo) GetForUserSpec(dbc dbctx.Context, userID, specID uuid.UUID) (*types.FeedbackRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.FeedbackRecord
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ? AND spec_id = ?", userID, specID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *feedbackRepo) ListRecentForAnalyses(dbc dbctx.Context, limit int) ([]*types.FeedbackRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 5000
	}
	out := []*types.FeedbackRecord{}
	if err := t.WithContext(dbc.Ctx).
		Where("analysis_id IS NOT NULL").
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
