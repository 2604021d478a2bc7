package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dberr"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const (
	UsageAnalyses = "analyses_this_month"
	UsageSpecs    = "specs_this_month"
)

type UserProfileRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserProfile, error)
	Ensure(dbc dbctx.Context, id uuid.UUID, email string, resetDate time.Time) (*types.UserProfile, error)
	ResetUsage(dbc dbctx.Context, id uuid.UUID, nextReset time.Time) error
	IncrementUsage(dbc dbctx.Context, id uuid.UUID, column string) error
	UpdateBilling(dbc dbctx.Context, id uuid.UUID, customerID, subscriptionID, plan string) error
	UpdatePlanByCustomer(dbc dbctx.Context, customerID, subscriptionID, plan string) (int64, error)
}

type userProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserProfileRepo(db *gorm.DB, baseLog *logger.Logger) UserProfileRepo {
	return &userProfileRepo{db: db, log: baseLog.With("repo", "UserProfileRepo")}
}

func (r *userProfileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserProfile, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.UserProfile
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// Ensure returns the profile for id, creating it on first sight. Two first
// requests racing on the same id both end up reading the winner's row.
func (r *userProfileRepo) Ensure(dbc dbctx.Context, id uuid.UUID, email string, resetDate time.Time) (*types.UserProfile, error) {
	existing, err := r.GetByID(dbc, id)
	if err != nil || existing != nil {
		return existing, err
	}
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := &types.UserProfile{
		ID:             id,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           types.RoleUser,
		Plan:           types.PlanFree,
		UsageResetDate: resetDate.UTC(),
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		if !dberr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create user profile: %w", err)
		}
		r.log.Debug("profile created concurrently; re-reading", "user_id", id)
		return r.GetByID(dbc, id)
	}
	return row, nil
}

func (r *userProfileRepo) ResetUsage(dbc dbctx.Context, id uuid.UUID, nextReset time.Time) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.UserProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			UsageAnalyses:      0,
			UsageSpecs:         0,
			"usage_reset_date": nextReset.UTC(),
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *userProfileRepo) IncrementUsage(dbc dbctx.Context, id uuid.UUID, column string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if column != UsageAnalyses && column != UsageSpecs {
		return fmt.Errorf("unknown usage column %q", column)
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.UserProfile{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

func (r *userProfileRepo) UpdateBilling(dbc dbctx.Context, id uuid.UUID, customerID, subscriptionID, plan string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	updates := map[string]any{
		"stripe_subscription_id": strings.TrimSpace(subscriptionID),
		"plan":                   plan,
		"updated_at":             time.Now().UTC(),
	}
	if c := strings.TrimSpace(customerID); c != "" {
		updates["stripe_customer_id"] = c
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.UserProfile{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *userProfileRepo) UpdatePlanByCustomer(dbc dbctx.Context, customerID, subscriptionID, plan string) (int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return 0, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&types.UserProfile{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(map[string]any{
			"stripe_subscription_id": strings.TrimSpace(subscriptionID),
			"plan":                   plan,
			"updated_at":             time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
