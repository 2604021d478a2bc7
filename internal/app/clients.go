package app

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/anthropic"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/platform/redislock"
	"github.com/substratelabs/failurelens-backend/internal/platform/resend"
	"github.com/substratelabs/failurelens-backend/internal/platform/stripe"
	"github.com/substratelabs/failurelens-backend/internal/temporalx"
)

// Clients holds outbound integrations. Everything except LLM in API mode is
// optional and left nil when unconfigured.
type Clients struct {
	LLM      anthropic.Client
	Mailer   resend.Client
	Stripe   stripe.Client
	Locker   *redislock.Locker
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger, cfg Config, mode Mode, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis (aggregation run lock)
	if cfg.RedisAddr != "" {
		l, err := redislock.New(log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return c, fmt.Errorf("init redis locker: %w", err)
		}
		c.Locker = l
	}

	// Resend (critical alert email)
	if cfg.Resend.APIKey != "" {
		m, err := resend.New(log, cfg.Resend)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init resend client: %w", err)
		}
		c.Mailer = m
	}

	if mode == ModeAPI {
		llm, err := anthropic.New(log, cfg.Anthropic, metrics)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init anthropic client: %w", err)
		}
		c.LLM = llm

		if cfg.StripeSecretKey != "" {
			sc, err := stripe.New(log, stripe.Config{SecretKey: cfg.StripeSecretKey})
			if err != nil {
				c.Close()
				return Clients{}, fmt.Errorf("init stripe client: %w", err)
			}
			c.Stripe = sc
		}
	}

	if mode == ModeWorker {
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		c.Temporal = tc
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Locker != nil {
		_ = c.Locker.Close()
	}
}
