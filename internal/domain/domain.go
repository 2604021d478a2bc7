package domain

import (
	"github.com/substratelabs/failurelens-backend/internal/domain/audit"
	"github.com/substratelabs/failurelens-backend/internal/domain/failure"
	"github.com/substratelabs/failurelens-backend/internal/domain/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/domain/profile"
)

const (
	RoleUser  = profile.RoleUser
	RoleAdmin = profile.RoleAdmin

	PlanFree = profile.PlanFree
	PlanPro  = profile.PlanPro
	PlanTeam = profile.PlanTeam

	StatusPending   = failure.StatusPending
	StatusAnalyzing = failure.StatusAnalyzing
	StatusCompleted = failure.StatusCompleted
	StatusFailed    = failure.StatusFailed

	AlertStatusActive       = knowledge.AlertStatusActive
	AlertStatusAcknowledged = knowledge.AlertStatusAcknowledged
	AlertStatusResolved     = knowledge.AlertStatusResolved

	SeverityCritical = knowledge.SeverityCritical
	SeverityWarning  = knowledge.SeverityWarning
	SeverityInfo     = knowledge.SeverityInfo

	InvestigationOpen             = failure.InvestigationOpen
	InvestigationContainment      = failure.InvestigationContainment
	InvestigationRootCause        = failure.InvestigationRootCause
	InvestigationCorrectiveAction = failure.InvestigationCorrectiveAction
	InvestigationVerification     = failure.InvestigationVerification
	InvestigationClosed           = failure.InvestigationClosed

	OutcomeResolved          = knowledge.OutcomeResolved
	OutcomePartiallyResolved = knowledge.OutcomePartiallyResolved
	OutcomeNotResolved       = knowledge.OutcomeNotResolved
	OutcomeDifferentCause    = knowledge.OutcomeDifferentCause
	OutcomeStillTesting      = knowledge.OutcomeStillTesting
	OutcomeAbandoned         = knowledge.OutcomeAbandoned
)

func IsValidOutcome(s string) bool { return knowledge.IsValidOutcome(s) }

type UserProfile = profile.UserProfile

type Analysis = failure.Analysis
type SpecRequest = failure.SpecRequest
type Investigation = failure.Investigation

type FeedbackRecord = knowledge.FeedbackRecord
type KnowledgePattern = knowledge.KnowledgePattern
type PatternMetadata = knowledge.PatternMetadata
type PatternAlert = knowledge.PatternAlert

type APIRequestLog = audit.APIRequestLog

// Models lists every table owned by this service, in migration order.
func Models() []any {
	return []any{
		&UserProfile{},
		&Analysis{},
		&SpecRequest{},
		&Investigation{},
		&FeedbackRecord{},
		&KnowledgePattern{},
		&PatternAlert{},
		&APIRequestLog{},
	}
}
