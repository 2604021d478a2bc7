package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	httpH "github.com/substratelabs/failurelens-backend/internal/http/handlers"
	httpMW "github.com/substratelabs/failurelens-backend/internal/http/middleware"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/ratelimit"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string
	CronSecret     string

	Gate              *billing.Gate
	Limiter           *ratelimit.Limiter
	AnalysesPerMinute int
	DefaultPerMinute  int
	Metrics           *observability.Metrics
	RequestLog        repos.RequestLogRepo

	AuthMiddleware       *httpMW.AuthMiddleware
	HealthHandler        *httpH.HealthHandler
	MeHandler            *httpH.MeHandler
	AnalysisHandler      *httpH.AnalysisHandler
	SpecHandler          *httpH.SpecHandler
	FeedbackHandler      *httpH.FeedbackHandler
	KnowledgeHandler     *httpH.KnowledgeHandler
	InvestigationHandler *httpH.InvestigationHandler
	AlertHandler         *httpH.AlertHandler
	CronHandler          *httpH.CronHandler
	BillingHandler       *httpH.BillingHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New()
	}
	if cfg.Gate == nil {
		cfg.Gate, _ = billing.DefaultGate()
	}
	if cfg.AnalysesPerMinute <= 0 {
		cfg.AnalysesPerMinute = 10
	}
	if cfg.DefaultPerMinute <= 0 {
		cfg.DefaultPerMinute = 120
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log, cfg.RequestLog))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")

	// Public
	if cfg.BillingHandler != nil {
		api.GET("/pricing", cfg.BillingHandler.GetPricing)
		api.POST("/webhooks/stripe", cfg.BillingHandler.StripeWebhook)
	}
	if cfg.CronHandler != nil {
		cron := api.Group("/cron", httpMW.RequireCronSecret(cfg.CronSecret))
		cron.POST("/aggregate-knowledge", cfg.CronHandler.AggregateKnowledge)
		cron.POST("/detect-patterns", cfg.CronHandler.DetectPatterns)
	}

	if cfg.AuthMiddleware == nil {
		return r
	}

	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.Use(httpMW.RateLimit(cfg.Limiter, "api", cfg.DefaultPerMinute, time.Minute, cfg.Metrics))

	// Profile
	if cfg.MeHandler != nil {
		protected.GET("/me", cfg.MeHandler.GetMe)
		protected.GET("/usage", cfg.MeHandler.GetUsage)
	}

	analysesLimit := httpMW.RateLimit(cfg.Limiter, "analyses", cfg.AnalysesPerMinute, time.Minute, cfg.Metrics)

	// Failure analysis
	if cfg.AnalysisHandler != nil {
		protected.POST("/analyses",
			httpMW.RequireFeature(cfg.Gate, billing.FeatureFailureAnalysis),
			analysesLimit,
			cfg.AnalysisHandler.Create,
		)
		protected.GET("/analyses", cfg.AnalysisHandler.List)
		protected.GET("/analyses/:id", cfg.AnalysisHandler.Get)
	}

	// Spec engine
	if cfg.SpecHandler != nil {
		protected.POST("/specs",
			httpMW.RequireFeature(cfg.Gate, billing.FeatureSpecEngine),
			httpMW.RateLimit(cfg.Limiter, "specs", cfg.AnalysesPerMinute, time.Minute, cfg.Metrics),
			cfg.SpecHandler.Create,
		)
		protected.GET("/specs", cfg.SpecHandler.List)
		protected.GET("/specs/:id", cfg.SpecHandler.Get)
	}

	// Feedback
	if cfg.FeedbackHandler != nil {
		protected.POST("/feedback", cfg.FeedbackHandler.Submit)
		protected.GET("/feedback/:analysis_id", cfg.FeedbackHandler.GetForAnalysis)
	}

	// Knowledge
	if cfg.KnowledgeHandler != nil {
		protected.GET("/knowledge/patterns",
			httpMW.RequireFeature(cfg.Gate, billing.FeatureKnowledgeInsights),
			cfg.KnowledgeHandler.ListPatterns,
		)
	}

	// Investigations (8D)
	if cfg.InvestigationHandler != nil {
		inv := protected.Group("/investigations", httpMW.RequireFeature(cfg.Gate, billing.FeatureInvestigations))
		inv.POST("", cfg.InvestigationHandler.Create)
		inv.GET("", cfg.InvestigationHandler.List)
		inv.GET("/:id", cfg.InvestigationHandler.Get)
		inv.PATCH("/:id/status", cfg.InvestigationHandler.UpdateStatus)
	}

	// Admin
	if cfg.AlertHandler != nil {
		admin := protected.Group("/admin",
			httpMW.RequireAdmin(),
			httpMW.RequireFeature(cfg.Gate, billing.FeaturePatternAlerts),
		)
		admin.GET("/alerts", cfg.AlertHandler.List)
		admin.PATCH("/alerts/:id", cfg.AlertHandler.Update)
	}

	return r
}
