package profile

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	PlanFree = "free"
	PlanPro  = "pro"
	PlanTeam = "team"
)

// UserProfile mirrors an auth subject; ID is the Supabase user id.
type UserProfile struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email string    `gorm:"column:email;index" json:"email"`
	Role  string    `gorm:"column:role;not null;default:'user'" json:"role"`
	Plan  string    `gorm:"column:plan;not null;default:'free';index" json:"plan"`

	StripeCustomerID     *string `gorm:"column:stripe_customer_id;uniqueIndex" json:"-"`
	StripeSubscriptionID string  `gorm:"column:stripe_subscription_id" json:"-"`

	AnalysesThisMonth int       `gorm:"column:analyses_this_month;not null;default:0" json:"analyses_this_month"`
	SpecsThisMonth    int       `gorm:"column:specs_this_month;not null;default:0" json:"specs_this_month"`
	UsageResetDate    time.Time `gorm:"column:usage_reset_date;not null" json:"usage_reset_date"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profile" }

func (p *UserProfile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
