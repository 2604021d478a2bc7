package failure

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type AnalysisRepo interface {
	Create(dbc dbctx.Context, row *types.Analysis) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Analysis, error)
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Analysis, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.Analysis, error)
	ListCreatedSince(dbc dbctx.Context, since time.Time) ([]*types.Analysis, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo")}
}

func (r *analysisRepo) Create(dbc dbctx.Context, row *types.Analysis) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.StatusPending
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *analysisRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.Analysis{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *analysisRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Analysis, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.Analysis{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *analysisRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Analysis, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Analysis
	if err := t.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *analysisRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.Analysis, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	out := []*types.Analysis{}
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListCreatedSince returns only the columns pattern detection needs.
func (r *analysisRepo) ListCreatedSince(dbc dbctx.Context, since time.Time) ([]*types.Analysis, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.Analysis{}
	if err := t.WithContext(dbc.Ctx).
		Select("id", "failure_mode", "substrate_a", "substrate_a_normalized", "product_name", "created_at").
		Where("created_at >= ?", since.UTC()).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
