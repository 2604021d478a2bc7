package failure

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Analysis is one failure-analysis request and its AI result.
type Analysis struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	MaterialCategory     string `gorm:"column:material_category" json:"material_category"`
	MaterialSubcategory  string `gorm:"column:material_subcategory" json:"material_subcategory"`
	SubstrateA           string `gorm:"column:substrate_a" json:"substrate_a"`
	SubstrateB           string `gorm:"column:substrate_b" json:"substrate_b"`
	SubstrateANormalized string `gorm:"column:substrate_a_normalized;index" json:"substrate_a_normalized"`
	SubstrateBNormalized string `gorm:"column:substrate_b_normalized;index" json:"substrate_b_normalized"`
	FailureMode          string `gorm:"column:failure_mode;index" json:"failure_mode"`
	FailureDescription   string `gorm:"column:failure_description" json:"failure_description"`
	Industry             string `gorm:"column:industry" json:"industry"`
	Environment          string `gorm:"column:environment" json:"environment"`
	ProductName          string `gorm:"column:product_name" json:"product_name"`

	RootCauses             datatypes.JSON `gorm:"column:root_causes;type:jsonb" json:"root_causes"`
	Recommendations        datatypes.JSON `gorm:"column:recommendations;type:jsonb" json:"recommendations"`
	PreventionPlan         string         `gorm:"column:prevention_plan" json:"prevention_plan"`
	RootCauseCategory      string         `gorm:"column:root_cause_category;index" json:"root_cause_category"`
	ConfidenceScore        float64        `gorm:"column:confidence_score" json:"confidence_score"`
	AIConfidence           float64        `gorm:"column:ai_confidence" json:"ai_confidence"`
	KnowledgeEvidenceCount *int           `gorm:"column:knowledge_evidence_count" json:"knowledge_evidence_count,omitempty"`
	KnowledgePatternsUsed  int            `gorm:"column:knowledge_patterns_used;not null;default:0" json:"knowledge_patterns_used"`

	Status       string `gorm:"column:status;not null;index" json:"status"`
	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Analysis) TableName() string { return "failure_analysis" }
