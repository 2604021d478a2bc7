package failure

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type InvestigationRepo interface {
	Create(dbc dbctx.Context, row *types.Investigation) error
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Investigation, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Investigation, error)
	// CompareAndSetStatus moves id from one status to another and reports
	// whether the row was still in `from`.
	CompareAndSetStatus(dbc dbctx.Context, id uuid.UUID, from, to string, notes *string) (bool, error)
}

type investigationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInvestigationRepo(db *gorm.DB, baseLog *logger.Logger) InvestigationRepo {
	return &investigationRepo{db: db, log: baseLog.With("repo", "InvestigationRepo")}
}

func (r *investigationRepo) Create(dbc dbctx.Context, row *types.Investigation) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *investigationRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Investigation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Investigation
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

func (r *investigationRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Investigation, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.Investigation{}
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *investigationRepo) CompareAndSetStatus(dbc dbctx.Context, id uuid.UUID, from, to string, notes *string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	updates := map[string]any{"status": to, "updated_at": now}
	if to == types.InvestigationClosed {
		updates["closed_at"] = now
	}
	if notes != nil {
		updates["notes"] = *notes
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.Investigation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
