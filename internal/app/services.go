package app

import (
	"fmt"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/jwks"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

// Knowledge is the feedback loop: pattern lookup plus the two batch jobs.
type Knowledge struct {
	Service    *knowledge.Service
	Aggregator *knowledge.Aggregator
	Detector   *knowledge.Detector
}

type Services struct {
	Gate     *billing.Gate
	Usage    *billing.UsageService
	Pricing  *billing.PricingCache
	PlanSync *billing.PlanSync

	Profile       services.ProfileService
	Auth          services.AuthService
	Analysis      services.AnalysisService
	Spec          services.SpecService
	Feedback      services.FeedbackService
	Investigation services.InvestigationService
	Alert         services.AlertService
}

func wireKnowledge(log *logger.Logger, cfg Config, r Repos, c Clients, metrics *observability.Metrics) Knowledge {
	log.Info("Wiring knowledge jobs...")

	var locker knowledge.RunLocker
	if c.Locker != nil {
		locker = c.Locker
	}
	var notifier knowledge.AlertNotifier
	if n := services.NewEmailAlertNotifier(log, c.Mailer, cfg.AlertRecipients, metrics); n != nil {
		notifier = n
	}

	return Knowledge{
		Service:    knowledge.NewService(log, r.Pattern),
		Aggregator: knowledge.NewAggregator(log, r.Feedback, r.Analysis, r.Pattern, locker, metrics, cfg.Aggregator),
		Detector:   knowledge.NewDetector(log, r.Analysis, r.Alert, notifier, metrics),
	}
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c Clients, k Knowledge, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	gate, err := billing.DefaultGate()
	if err != nil {
		return Services{}, fmt.Errorf("load plan table: %w", err)
	}
	usage := billing.NewUsageService(log, r.Profile, gate)

	var fetcher billing.PriceFetcher
	if c.Stripe != nil {
		fetcher = c.Stripe
	}
	profiles := services.NewProfileService(log, r.Profile, usage)

	var keys services.KeySource
	if cfg.SupabaseJWKSURL != "" {
		keys = jwks.New(cfg.SupabaseJWKSURL, nil)
	}

	return Services{
		Gate:     gate,
		Usage:    usage,
		Pricing:  billing.NewPricingCache(log, fetcher, cfg.StripePriceIDs, cfg.PricingTTL, metrics),
		PlanSync: billing.NewPlanSync(log, r.Profile, cfg.StripePriceIDs),

		Profile:       profiles,
		Auth:          services.NewAuthService(log, cfg.SupabaseJWTSecret, keys, profiles),
		Analysis:      services.NewAnalysisService(log, r.Analysis, usage, k.Service, c.LLM, metrics),
		Spec:          services.NewSpecService(log, r.SpecRequest, usage, k.Service, c.LLM, metrics),
		Feedback:      services.NewFeedbackService(log, r.Feedback, r.Analysis, r.SpecRequest),
		Investigation: services.NewInvestigationService(log, r.Investigation, r.Analysis),
		Alert:         services.NewAlertService(log, r.Alert),
	}, nil
}
