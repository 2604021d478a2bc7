package app

import (
	"github.com/substratelabs/failurelens-backend/internal/http"
	httpH "github.com/substratelabs/failurelens-backend/internal/http/handlers"
	httpMW "github.com/substratelabs/failurelens-backend/internal/http/middleware"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/ratelimit"
)

type Handlers struct {
	Health        *httpH.HealthHandler
	Me            *httpH.MeHandler
	Analysis      *httpH.AnalysisHandler
	Spec          *httpH.SpecHandler
	Feedback      *httpH.FeedbackHandler
	Knowledge     *httpH.KnowledgeHandler
	Investigation *httpH.InvestigationHandler
	Alert         *httpH.AlertHandler
	Cron          *httpH.CronHandler
	Billing       *httpH.BillingHandler
}

func wireHandlers(log *logger.Logger, cfg Config, s Services, k Knowledge) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:        httpH.NewHealthHandler(),
		Me:            httpH.NewMeHandler(s.Profile),
		Analysis:      httpH.NewAnalysisHandler(s.Analysis),
		Spec:          httpH.NewSpecHandler(s.Spec),
		Feedback:      httpH.NewFeedbackHandler(s.Feedback),
		Knowledge:     httpH.NewKnowledgeHandler(k.Service),
		Investigation: httpH.NewInvestigationHandler(s.Investigation),
		Alert:         httpH.NewAlertHandler(s.Alert),
		Cron:          httpH.NewCronHandler(log, k.Aggregator, k.Detector),
		Billing:       httpH.NewBillingHandler(log, s.Pricing, s.PlanSync, cfg.StripeWebhookSecret),
	}
}

func wireServer(log *logger.Logger, cfg Config, h Handlers, s Services, r Repos, limiter *ratelimit.Limiter, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:            log,
		ServiceName:    ServiceName,
		TracingEnabled: cfg.Otel.Enabled,
		CORSOrigins:    cfg.CORSOrigins,
		CronSecret:     cfg.CronSecret,

		Gate:              s.Gate,
		Limiter:           limiter,
		AnalysesPerMinute: cfg.AnalysesPerMinute,
		DefaultPerMinute:  cfg.DefaultPerMinute,
		Metrics:           metrics,
		RequestLog:        r.RequestLog,

		AuthMiddleware:       httpMW.NewAuthMiddleware(log, s.Auth),
		HealthHandler:        h.Health,
		MeHandler:            h.Me,
		AnalysisHandler:      h.Analysis,
		SpecHandler:          h.Spec,
		FeedbackHandler:      h.Feedback,
		KnowledgeHandler:     h.Knowledge,
		InvestigationHandler: h.Investigation,
		AlertHandler:         h.Alert,
		CronHandler:          h.Cron,
		BillingHandler:       h.Billing,
	})
}
