package failure

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SpecRequest asks for an adhesive recommendation for a substrate pair.
type SpecRequest struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	SubstrateA           string         `gorm:"column:substrate_a" json:"substrate_a"`
	SubstrateB           string         `gorm:"column:substrate_b" json:"substrate_b"`
	SubstrateANormalized string         `gorm:"column:substrate_a_normalized;index" json:"substrate_a_normalized"`
	SubstrateBNormalized string         `gorm:"column:substrate_b_normalized;index" json:"substrate_b_normalized"`
	BondRequirements     datatypes.JSON `gorm:"column:bond_requirements;type:jsonb" json:"bond_requirements"`
	Environment          string         `gorm:"column:environment" json:"environment"`
	Industry             string         `gorm:"column:industry" json:"industry"`

	RecommendedFamily      string         `gorm:"column:recommended_family" json:"recommended_family"`
	RecommendedProduct     string         `gorm:"column:recommended_product" json:"recommended_product"`
	SurfacePrep            datatypes.JSON `gorm:"column:surface_prep;type:jsonb" json:"surface_prep"`
	Alternatives           datatypes.JSON `gorm:"column:alternatives;type:jsonb" json:"alternatives"`
	Rationale              string         `gorm:"column:rationale" json:"rationale"`
	ConfidenceScore        float64        `gorm:"column:confidence_score" json:"confidence_score"`
	AIConfidence           float64        `gorm:"column:ai_confidence" json:"ai_confidence"`
	KnowledgeEvidenceCount *int           `gorm:"column:knowledge_evidence_count" json:"knowledge_evidence_count,omitempty"`

	Status       string `gorm:"column:status;not null;index" json:"status"`
	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (SpecRequest) TableName() string { return "spec_request" }
