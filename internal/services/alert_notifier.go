package services

import (
	"context"
	"fmt"
	"strings"

	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/platform/resend"
)

// EmailAlertNotifier mails critical pattern alerts to a fixed recipient list.
type EmailAlertNotifier struct {
	log        *logger.Logger
	mail       resend.Client
	recipients []string
	metrics    *observability.Metrics
}

// NewEmailAlertNotifier returns nil when there is no client or no recipient,
// which the detector treats as "don't notify".
func NewEmailAlertNotifier(baseLog *logger.Logger, mail resend.Client, recipients []string, metrics *observability.Metrics) *EmailAlertNotifier {
	clean := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	if mail == nil || len(clean) == 0 {
		return nil
	}
	return &EmailAlertNotifier{
		log:        baseLog.With("service", "EmailAlertNotifier"),
		mail:       mail,
		recipients: clean,
		metrics:    metrics,
	}
}

func (n *EmailAlertNotifier) NotifyCriticalAlert(ctx context.Context, alert *types.PatternAlert) error {
	if n == nil || alert == nil {
		return nil
	}
	subject := fmt.Sprintf("[FailureLens] Critical failure spike: %s on %s", alert.FailureMode, orDash(alert.Substrate))
	_, err := n.mail.Send(ctx, resend.SendEmailRequest{
		To:      n.recipients,
		Subject: subject,
		Text:    alertBody(alert),
		Tags:    map[string]string{"kind": "pattern_alert", "severity": alert.Severity},
	})
	if err != nil {
		n.metrics.IncEmail("error")
		return fmt.Errorf("send alert email: %w", err)
	}
	n.metrics.IncEmail("ok")
	n.log.Info("Critical alert email sent", "alert_id", alert.ID)
	return nil
}

func alertBody(a *types.PatternAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A critical spike in reported failures was detected.\n\n")
	fmt.Fprintf(&b, "Failure mode: %s\n", a.FailureMode)
	fmt.Fprintf(&b, "Substrate:    %s\n", orDash(a.Substrate))
	fmt.Fprintf(&b, "Product:      %s\n", orDash(a.Product))
	fmt.Fprintf(&b, "Last 30 days: %d reports\n", a.RecentCount)
	fmt.Fprintf(&b, "Baseline:     %.2f ± %.2f per 30 days\n", a.BaselineMean, a.BaselineStd)
	fmt.Fprintf(&b, "Z-score:      %.2f\n", a.ZScore)
	fmt.Fprintf(&b, "\nAlert id: %s\n", a.ID)
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
