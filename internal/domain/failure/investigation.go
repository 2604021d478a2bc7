package failure

import (
	"time"

	"github.com/google/uuid"
)

// 8D investigation states.
const (
	InvestigationOpen             = "open"
	InvestigationContainment      = "containment"
	InvestigationRootCause        = "root_cause"
	InvestigationCorrectiveAction = "corrective_action"
	InvestigationVerification     = "verification"
	InvestigationClosed           = "closed"
)

type Investigation struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	AnalysisID *uuid.UUID `gorm:"type:uuid;index" json:"analysis_id,omitempty"`
	Title      string     `gorm:"column:title;not null" json:"title"`
	Status     string     `gorm:"column:status;not null;index" json:"status"`
	Notes      string     `gorm:"column:notes" json:"notes"`
	ClosedAt   *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Investigation) TableName() string { return "investigation" }
