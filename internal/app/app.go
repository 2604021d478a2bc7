package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/substratelabs/failurelens-backend/internal/data/db"
	"github.com/substratelabs/failurelens-backend/internal/http"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/ratelimit"
	"github.com/substratelabs/failurelens-backend/internal/temporalx/knowledgerefresh"
	"github.com/substratelabs/failurelens-backend/internal/temporalx/temporalworker"
)

// Mode selects which parts of the graph a process needs.
type Mode int

const (
	// ModeAPI serves HTTP.
	ModeAPI Mode = iota
	// ModeJobs runs the knowledge jobs once from the command line.
	ModeJobs
	// ModeWorker hosts the Temporal knowledge refresh worker.
	ModeWorker
)

const (
	limiterSweepEvery = time.Minute
	limiterIdleAfter  = 2 * time.Minute
)

type App struct {
	Log       *logger.Logger
	Cfg       Config
	DB        *gorm.DB
	Metrics   *observability.Metrics
	Repos     Repos
	Clients   Clients
	Knowledge Knowledge
	Services  Services
	Limiter   *ratelimit.Limiter
	Server    *http.Server

	pg           *db.PostgresService
	shutdownOtel func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, cfg Config, mode Mode) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.Validate(mode == ModeAPI); err != nil {
		log.Sync()
		return nil, err
	}

	shutdownOtel := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.NewMetrics()

	pg, err := db.NewPostgresService(cfg.DatabaseURL, cfg.DBPool, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := db.AutoMigrateAll(pg.DB()); err != nil {
			pg.Close()
			log.Sync()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}

	a := &App{
		Log:          log,
		Cfg:          cfg,
		DB:           pg.DB(),
		Metrics:      metrics,
		pg:           pg,
		shutdownOtel: shutdownOtel,
	}
	a.Repos = wireRepos(a.DB, log)

	clients, err := wireClients(log, cfg, mode, metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients
	a.Knowledge = wireKnowledge(log, cfg, a.Repos, a.Clients, metrics)

	if mode != ModeAPI {
		return a, nil
	}

	svcs, err := wireServices(log, cfg, a.Repos, a.Clients, a.Knowledge, metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = svcs
	a.Limiter = ratelimit.New()
	handlers := wireHandlers(log, cfg, a.Services, a.Knowledge)
	a.Server = wireServer(log, cfg, handlers, a.Services, a.Repos, a.Limiter, metrics)
	return a, nil
}

// Start launches background loops owned by the process.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Limiter != nil {
		go a.sweepLimiter(ctx)
	}
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterSweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.Limiter.Sweep(limiterIdleAfter); n > 0 {
				a.Log.Debug("Swept idle rate-limit keys", "removed", n, "remaining", a.Limiter.Len())
			}
		}
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized for HTTP")
	}
	return a.Server.Run(ctx, ":"+a.Cfg.Port)
}

// NewWorker builds the Temporal worker over the knowledge jobs.
func (a *App) NewWorker() (*temporalworker.Runner, error) {
	if a.Clients.Temporal == nil {
		return nil, fmt.Errorf("TEMPORAL_ADDRESS is not configured")
	}
	return temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, &knowledgerefresh.Activities{
		Log:        a.Log,
		Aggregator: a.Knowledge.Aggregator,
		Detector:   a.Knowledge.Detector,
	})
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.pg != nil {
		a.pg.Close()
	}
	if a.shutdownOtel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
