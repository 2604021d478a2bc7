package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KnowledgePattern aggregates confirmed outcomes for one
// (substrate pair, root-cause category) key. Rows are written only by the
// aggregator.
type KnowledgePattern struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubstrateANormalized string    `gorm:"column:substrate_a_normalized;not null;uniqueIndex:idx_knowledge_pattern_key" json:"substrate_a_normalized"`
	SubstrateBNormalized string    `gorm:"column:substrate_b_normalized;not null;uniqueIndex:idx_knowledge_pattern_key" json:"substrate_b_normalized"`
	RootCauseCategory    string    `gorm:"column:root_cause_category;not null;uniqueIndex:idx_knowledge_pattern_key" json:"root_cause_category"`

	EvidenceCount         int            `gorm:"column:evidence_count;not null;default:0;index" json:"evidence_count"`
	SuccessRate           *float64       `gorm:"column:success_rate" json:"success_rate,omitempty"`
	Metadata              datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	PrimaryAdhesiveFamily string         `gorm:"column:primary_adhesive_family" json:"primary_adhesive_family,omitempty"`
	PrimaryIndustry       string         `gorm:"column:primary_industry" json:"primary_industry,omitempty"`
	LastAggregatedAt      time.Time      `gorm:"column:last_aggregated_at" json:"last_aggregated_at"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (KnowledgePattern) TableName() string { return "knowledge_pattern" }

// PatternMetadata is the typed shape of KnowledgePattern.Metadata.
type PatternMetadata struct {
	TopRootCauses []string `json:"top_root_causes"`
	TopFixes      []string `json:"top_fixes"`
	Industries    []string `json:"industries,omitempty"`
	FailureModes  []string `json:"failure_modes,omitempty"`
}
