package knowledge

import (
	"time"

	"github.com/google/uuid"
)

const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"

	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// PatternAlert flags a (failure_mode, substrate, product) triple whose recent
// volume deviates from its baseline. At most one active alert per triple.
type PatternAlert struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FailureMode string    `gorm:"column:failure_mode;not null;uniqueIndex:idx_pattern_alert_active,where:status = 'active'" json:"failure_mode"`
	Substrate   string    `gorm:"column:substrate;not null;uniqueIndex:idx_pattern_alert_active" json:"substrate"`
	Product     string    `gorm:"column:product;not null;uniqueIndex:idx_pattern_alert_active" json:"product"`

	RecentCount  int     `gorm:"column:recent_count;not null" json:"recent_count"`
	BaselineMean float64 `gorm:"column:baseline_mean" json:"baseline_mean"`
	BaselineStd  float64 `gorm:"column:baseline_std" json:"baseline_std"`
	ZScore       float64 `gorm:"column:z_score" json:"z_score"`
	Severity     string  `gorm:"column:severity;not null;index" json:"severity"`
	Status       string  `gorm:"column:status;not null;index" json:"status"`

	AcknowledgedBy *uuid.UUID `gorm:"type:uuid;column:acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PatternAlert) TableName() string { return "pattern_alert" }
