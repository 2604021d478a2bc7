package audit

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type RequestLogRepo interface {
	Create(dbc dbctx.Context, row *types.APIRequestLog) error
}

type requestLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequestLogRepo(db *gorm.DB, baseLog *logger.Logger) RequestLogRepo {
	return &requestLogRepo{db: db, log: baseLog.With("repo", "RequestLogRepo")}
}

func (r *requestLogRepo) Create(dbc dbctx.Context, row *types.APIRequestLog) error {
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
	return t.WithContext(dbc.Ctx).Create(row).Error
}
