package app

import (
	"gorm.io/gorm"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type Repos struct {
	Profile       repos.UserProfileRepo
	Analysis      repos.AnalysisRepo
	SpecRequest   repos.SpecRequestRepo
	Investigation repos.InvestigationRepo
	Feedback      repos.FeedbackRepo
	Pattern       repos.KnowledgePatternRepo
	Alert         repos.PatternAlertRepo
	RequestLog    repos.RequestLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Profile:       repos.NewUserProfileRepo(db, log),
		Analysis:      repos.NewAnalysisRepo(db, log),
		SpecRequest:   repos.NewSpecRequestRepo(db, log),
		Investigation: repos.NewInvestigationRepo(db, log),
		Feedback:      repos.NewFeedbackRepo(db, log),
		Pattern:       repos.NewKnowledgePatternRepo(db, log),
		Alert:         repos.NewPatternAlertRepo(db, log),
		RequestLog:    repos.NewRequestLogRepo(db, log),
	}
}
