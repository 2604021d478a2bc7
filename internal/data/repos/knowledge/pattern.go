package knowledge

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type KnowledgePatternRepo interface {
	// Upsert inserts or updates by (substrate_a, substrate_b, category).
	Upsert(dbc dbctx.Context, row *types.KnowledgePattern) error
	// FindCandidates returns patterns touching substrate on either side.
	FindCandidates(dbc dbctx.Context, substrate string, minEvidence, limit int) ([]*types.KnowledgePattern, error)
}

type knowledgePatternRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgePatternRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgePatternRepo {
	return &knowledgePatternRepo{db: db, log: baseLog.With("repo", "KnowledgePatternRepo")}
}

func (r *knowledgePatternRepo) Upsert(dbc dbctx.Context, row *types.KnowledgePattern) error {
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
	if row.LastAggregatedAt.IsZero() {
		row.LastAggregatedAt = now
	}

	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "substrate_a_normalized"},
				{Name: "substrate_b_normalized"},
				{Name: "root_cause_category"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"evidence_count",
				"success_rate",
				"metadata",
				"primary_adhesive_family",
				"primary_industry",
				"last_aggregated_at",
				"updated_at",
			}),
		}).
		Create(row).Error
}

func (r *knowledgePatternRepo) FindCandidates(dbc dbctx.Context, substrate string, minEvidence, limit int) ([]*types.KnowledgePattern, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.KnowledgePattern{}
	substrate = strings.TrimSpace(substrate)
	if substrate == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 15
	}
	if err := t.WithContext(dbc.Ctx).
		Where("evidence_count >= ?", minEvidence).
		Where("substrate_a_normalized = ? OR substrate_b_normalized = ?", substrate, substrate).
		Order("evidence_count DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
