package knowledge

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeResolved          = "resolved"
	OutcomePartiallyResolved = "partially_resolved"
	OutcomeNotResolved       = "not_resolved"
	OutcomeDifferentCause    = "different_cause"
	OutcomeStillTesting      = "still_testing"
	OutcomeAbandoned         = "abandoned"
)

var validOutcomes = map[string]bool{
	OutcomeResolved:          true,
	OutcomePartiallyResolved: true,
	OutcomeNotResolved:       true,
	OutcomeDifferentCause:    true,
	OutcomeStillTesting:      true,
	OutcomeAbandoned:         true,
}

func IsValidOutcome(s string) bool { return validOutcomes[s] }

// FeedbackRecord is a user's post-hoc outcome report for one analysis or spec.
type FeedbackRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_feedback_user_analysis;uniqueIndex:idx_feedback_user_spec" json:"user_id"`
	AnalysisID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_feedback_user_analysis" json:"analysis_id,omitempty"`
	SpecID     *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_feedback_user_spec" json:"spec_id,omitempty"`

	WasHelpful      bool   `gorm:"column:was_helpful;not null" json:"was_helpful"`
	Outcome         string `gorm:"column:outcome;not null" json:"outcome"`
	ActualRootCause string `gorm:"column:actual_root_cause" json:"actual_root_cause,omitempty"`
	WhatWorked      string `gorm:"column:what_worked" json:"what_worked,omitempty"`
	Rating          *int   `gorm:"column:rating" json:"rating,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (FeedbackRecord) TableName() string { return "feedback" }
