package resend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	resendgo "github.com/resend/resend-go/v2"

	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/httpx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type Client interface {
	Send(ctx context.Context, req SendEmailRequest) (*SendEmailResult, error)
}

type Config struct {
	APIKey           string
	BaseURL          string
	DefaultFromEmail string
	Timeout          time.Duration
	MaxRetries       int
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing RESEND_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	api := resendgo.NewCustomClient(&http.Client{Timeout: cfg.Timeout}, cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		// emails are resolved relative to the base, so it needs the trailing slash
		u, err := url.Parse(strings.TrimRight(base, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("resend: bad base url: %w", err)
		}
		api.BaseURL = u
	}
	return &client{
		log:    log.With("client", "ResendClient"),
		cfg:    cfg,
		emails: api.Emails,
	}, nil
}

type client struct {
	log    *logger.Logger
	cfg    Config
	emails resendgo.EmailsSvc
}

type SendEmailRequest struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
	ReplyTo string
	Tags    map[string]string
}

type SendEmailResult struct {
	ID string
}

func (c *client) Send(ctx context.Context, req SendEmailRequest) (*SendEmailResult, error) {
	from := strings.TrimSpace(req.From)
	if from == "" {
		from = c.cfg.DefaultFromEmail
	}
	if from == "" {
		return nil, fmt.Errorf("resend: From required (or set RESEND_FROM_EMAIL)")
	}
	to := make([]string, 0, len(req.To))
	for _, addr := range req.To {
		if a := strings.TrimSpace(addr); a != "" {
			to = append(to, a)
		}
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("resend: To required")
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, fmt.Errorf("resend: Subject required")
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.HTML) == "" {
		return nil, fmt.Errorf("resend: Text or HTML content required")
	}

	params := &resendgo.SendEmailRequest{
		From:    from,
		To:      to,
		Subject: subject,
		Text:    req.Text,
		Html:    req.HTML,
		ReplyTo: strings.TrimSpace(req.ReplyTo),
	}
	for k, v := range req.Tags {
		params.Tags = append(params.Tags, resendgo.Tag{Name: k, Value: v})
	}

	ctx = ctxutil.Default(ctx)
	backoff := 1 * time.Second
	for attempt := 0; ; attempt++ {
		resp, err := c.emails.SendWithContext(ctx, params)
		if err == nil {
			return &SendEmailResult{ID: resp.Id}, nil
		}
		wait, retry := retryAfter(err, backoff)
		if !retry || attempt == c.cfg.MaxRetries {
			return nil, fmt.Errorf("resend: send: %w", err)
		}
		sleepFor := httpx.JitterSleep(wait)
		c.log.Warn("Resend request retrying",
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

// retryAfter reports whether err is worth another attempt and how long to
// wait. Only rate limits and transport timeouts qualify; resend-go folds
// every other API error into an opaque string.
func retryAfter(err error, fallback time.Duration) (time.Duration, bool) {
	var rl *resendgo.RateLimitError
	if errors.As(err, &rl) {
		if secs, perr := strconv.Atoi(strings.TrimSpace(rl.RetryAfter)); perr == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, 10*time.Second), true
		}
		return fallback, true
	}
	return fallback, httpx.IsRetryableError(err)
}
