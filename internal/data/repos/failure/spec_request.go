package failure

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type SpecRequestRepo interface {
	Create(dbc dbctx.Context, row *types.SpecRequest) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.SpecRequest, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.SpecRequest, error)
}

type specRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSpecRequestRepo(db *gorm.DB, baseLog *logger.Logger) SpecRequestRepo {
	return &specRequestRepo{db: db, log: baseLog.With("repo", "SpecRequestRepo")}
}

func (r *specRequestRepo) Create(dbc dbctx.Context, row *types.SpecRequest) error {
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

func (r *specRequestRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
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
		Model(&types.SpecRequest{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *specRequestRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.SpecRequest, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.SpecRequest
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

func (r *specRequestRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.SpecRequest, error) {
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
	out := []*types.SpecRequest{}
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
