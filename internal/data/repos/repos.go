package repos

import (
	"gorm.io/gorm"

	"github.com/substratelabs/failurelens-backend/internal/data/repos/audit"
	"github.com/substratelabs/failurelens-backend/internal/data/repos/failure"
	"github.com/substratelabs/failurelens-backend/internal/data/repos/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/data/repos/profile"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type UserProfileRepo = profile.UserProfileRepo

type AnalysisRepo = failure.AnalysisRepo
type SpecRequestRepo = failure.SpecRequestRepo
type InvestigationRepo = failure.InvestigationRepo

type FeedbackRepo = knowledge.FeedbackRepo
type KnowledgePatternRepo = knowledge.KnowledgePatternRepo
type PatternAlertRepo = knowledge.PatternAlertRepo

type RequestLogRepo = audit.RequestLogRepo

func NewUserProfileRepo(db *gorm.DB, baseLog *logger.Logger) UserProfileRepo {
	return profile.NewUserProfileRepo(db, baseLog)
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return failure.NewAnalysisRepo(db, baseLog)
}
func NewSpecRequestRepo(db *gorm.DB, baseLog *logger.Logger) SpecRequestRepo {
	return failure.NewSpecRequestRepo(db, baseLog)
}
func NewInvestigationRepo(db *gorm.DB, baseLog *logger.Logger) InvestigationRepo {
	return failure.NewInvestigationRepo(db, baseLog)
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return knowledge.NewFeedbackRepo(db, baseLog)
}
func NewKnowledgePatternRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgePatternRepo {
	return knowledge.NewKnowledgePatternRepo(db, baseLog)
}
func NewPatternAlertRepo(db *gorm.DB, baseLog *logger.Logger) PatternAlertRepo {
	return knowledge.NewPatternAlertRepo(db, baseLog)
}

func NewRequestLogRepo(db *gorm.DB, baseLog *logger.Logger) RequestLogRepo {
	return audit.NewRequestLogRepo(db, baseLog)
}
