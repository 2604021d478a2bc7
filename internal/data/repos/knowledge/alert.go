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

type PatternAlertRepo interface {
	HasActive(dbc dbctx.Context, failureMode, substrate, product string) (bool, error)
	// CreateIfNoActive inserts row unless an active alert already exists for
	// its triple; the partial unique index closes the race the check leaves.
	CreateIfNoActive(dbc dbctx.Context, row *types.PatternAlert) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PatternAlert, error)
	List(dbc dbctx.Context, status string, limit int) ([]*types.PatternAlert, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, to string, actor uuid.UUID) (bool, error)
}

type patternAlertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPatternAlertRepo(db *gorm.DB, baseLog *logger.Logger) PatternAlertRepo {
	return &patternAlertRepo{db: db, log: baseLog.With("repo", "PatternAlertRepo")}
}

func (r *patternAlertRepo) HasActive(dbc dbctx.Context, failureMode, substrate, product string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(dbc.Ctx).
		Model(&types.PatternAlert{}).
		Where("failure_mode = ? AND substrate = ? AND product = ? AND status = ?",
			failureMode, substrate, product, types.AlertStatusActive).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *patternAlertRepo) CreateIfNoActive(dbc dbctx.Context, row *types.PatternAlert) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = types.AlertStatusActive
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "failure_mode"},
				{Name: "substrate"},
				{Name: "product"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "status = 'active'"}}},
			DoNothing:   true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *patternAlertRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PatternAlert, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.PatternAlert
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *patternAlertRepo) List(dbc dbctx.Context, status string, limit int) ([]*types.PatternAlert, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := t.WithContext(dbc.Ctx).Model(&types.PatternAlert{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []*types.PatternAlert{}
	if err := q.Order("z_score DESC").Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *patternAlertRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, to string, actor uuid.UUID) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	updates := map[string]any{"status": to, "updated_at": now}
	switch to {
	case types.AlertStatusAcknowledged:
		updates["acknowledged_by"] = actor
		updates["acknowledged_at"] = now
	case types.AlertStatusResolved:
		updates["resolved_at"] = now
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.PatternAlert{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
