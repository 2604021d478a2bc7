package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/price"

	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type Client interface {
	GetPrice(ctx context.Context, priceID string) (*Price, error)
	FetchPriceAmount(ctx context.Context, priceID string) (int64, error)
}

type Config struct {
	SecretKey string
	// BaseURL overrides the API host; tests point it at httptest.
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int64
}

type Price struct {
	ID         string
	Currency   string
	UnitAmount *int64
	Active     bool
	Interval   string
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing STRIPE_SECRET_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	log = log.With("client", "StripeClient")

	bc := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripego.Int64(cfg.MaxRetries),
		LeveledLogger:     leveledLogger{log: log},
	}
	if u := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); u != "" {
		bc.URL = stripego.String(u)
	}
	return &client{
		log:    log,
		prices: price.Client{B: stripego.GetBackendWithConfig(stripego.APIBackend, bc), Key: cfg.SecretKey},
	}, nil
}

type client struct {
	log    *logger.Logger
	prices price.Client
}

func (c *client) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, fmt.Errorf("stripe: price id required")
	}
	params := &stripego.PriceParams{}
	params.Context = ctxutil.Default(ctx)

	p, err := c.prices.Get(priceID, params)
	if err != nil {
		var se *stripego.Error
		if errors.As(err, &se) {
			return nil, fmt.Errorf("stripe: get price %s: status %d: %s", priceID, se.HTTPStatusCode, se.Msg)
		}
		return nil, fmt.Errorf("stripe: get price %s: %w", priceID, err)
	}
	out := &Price{
		ID:       p.ID,
		Currency: string(p.Currency),
		Active:   p.Active,
	}
	if p.UnitAmount != 0 || p.UnitAmountDecimal != 0 {
		amt := p.UnitAmount
		out.UnitAmount = &amt
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out, nil
}

func (c *client) FetchPriceAmount(ctx context.Context, priceID string) (int64, error) {
	p, err := c.GetPrice(ctx, priceID)
	if err != nil {
		return 0, err
	}
	if p.UnitAmount == nil {
		return 0, fmt.Errorf("stripe: price %s has no unit_amount", priceID)
	}
	return *p.UnitAmount, nil
}

// leveledLogger routes stripe-go's printf-style backend logs into zap.
// Debug output is dropped; the backend logs every request at that level.
type leveledLogger struct {
	log *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...interface{}) {}

func (l leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}
