package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const (
	detectionBucket   = 30 * 24 * time.Hour
	baselineBuckets   = 5
	detectionLookback = detectionBucket * (baselineBuckets + 1)

	// ZeroVarianceStdFloor replaces a zero baseline std so flat histories
	// still produce finite z-scores. Needs recalibration against real alert
	// volume.
	ZeroVarianceStdFloor = 0.5

	warningZ  = 2.0
	criticalZ = 3.0
)

// AlertNotifier is told about newly created critical alerts.
type AlertNotifier interface {
	NotifyCriticalAlert(ctx context.Context, alert *types.PatternAlert) error
}

type DetectionSummary struct {
	TriplesEvaluated int      `json:"triples_evaluated"`
	AlertsCreated    int      `json:"alerts_created"`
	AlertsSkipped    int      `json:"alerts_skipped"`
	Errors           []string `json:"errors"`
}

type Detector struct {
	log      *logger.Logger
	analyses repos.AnalysisRepo
	alerts   repos.PatternAlertRepo
	notifier AlertNotifier
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewDetector(
	baseLog *logger.Logger,
	analyses repos.AnalysisRepo,
	alerts repos.PatternAlertRepo,
	notifier AlertNotifier,
	metrics *observability.Metrics,
) *Detector {
	return &Detector{
		log:      baseLog.With("service", "PatternDetector"),
		analyses: analyses,
		alerts:   alerts,
		notifier: notifier,
		metrics:  metrics,
		now:      time.Now,
	}
}

// WithClock overrides the detector's notion of now.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

type triple struct {
	failureMode, substrate, product string
}

type tripleCounts struct {
	recent   int
	baseline [baselineBuckets]int
}

// Severity maps a z-score to an alert severity.
func Severity(z float64) string {
	switch {
	case z >= criticalZ:
		return types.SeverityCritical
	case z >= warningZ:
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}

// BaselineStats returns the population mean and std of the buckets, with the
// std floor applied when variance is zero.
func BaselineStats(buckets []int) (mean, std float64, floored bool) {
	if len(buckets) == 0 {
		return 0, ZeroVarianceStdFloor, true
	}
	for _, c := range buckets {
		mean += float64(c)
	}
	mean /= float64(len(buckets))
	var variance float64
	for _, c := range buckets {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(buckets))
	if variance == 0 {
		return mean, ZeroVarianceStdFloor, true
	}
	return mean, math.Sqrt(variance), false
}

func (d *Detector) Detect(ctx context.Context) (DetectionSummary, error) {
	summary := DetectionSummary{Errors: []string{}}
	now := d.now().UTC()
	dbc := dbctx.Context{Ctx: ctx}

	rows, err := d.analyses.ListCreatedSince(dbc, now.Add(-detectionLookback))
	if err != nil {
		d.metrics.ObserveDetection("error")
		return summary, fmt.Errorf("load analyses: %w", err)
	}

	counts := map[triple]*tripleCounts{}
	for _, a := range rows {
		mode := strings.TrimSpace(a.FailureMode)
		if mode == "" {
			continue
		}
		sub := a.SubstrateANormalized
		if sub == "" {
			sub = Normalize(a.SubstrateA)
		}
		k := triple{failureMode: mode, substrate: sub, product: strings.TrimSpace(a.ProductName)}
		c := counts[k]
		if c == nil {
			c = &tripleCounts{}
			counts[k] = c
		}
		age := now.Sub(a.CreatedAt.UTC())
		if age < 0 {
			age = 0
		}
		if age < detectionBucket {
			c.recent++
			continue
		}
		if idx := int(age/detectionBucket) - 1; idx >= 0 && idx < baselineBuckets {
			c.baseline[idx]++
		}
	}

	keys := make([]triple, 0, len(counts))
	for k, c := range counts {
		if c.recent > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].failureMode != keys[j].failureMode {
			return keys[i].failureMode < keys[j].failureMode
		}
		if keys[i].substrate != keys[j].substrate {
			return keys[i].substrate < keys[j].substrate
		}
		return keys[i].product < keys[j].product
	})

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.TriplesEvaluated++
		c := counts[k]
		mean, std, floored := BaselineStats(c.baseline[:])
		z := (float64(c.recent) - mean) / std
		if z < warningZ {
			continue
		}
		if floored {
			d.log.Debug("Zero-variance baseline; std floor applied",
				"failure_mode", k.failureMode, "substrate", k.substrate, "product", k.product)
		}

		active, err := d.alerts.HasActive(dbc, k.failureMode, k.substrate, k.product)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s|%s|%s: %v", k.failureMode, k.substrate, k.product, err))
			continue
		}
		if active {
			summary.AlertsSkipped++
			continue
		}

		alert := &types.PatternAlert{
			FailureMode:  k.failureMode,
			Substrate:    k.substrate,
			Product:      k.product,
			RecentCount:  c.recent,
			BaselineMean: round4(mean),
			BaselineStd:  round4(std),
			ZScore:       round4(z),
			Severity:     Severity(z),
			Status:       types.AlertStatusActive,
		}
		created, err := d.alerts.CreateIfNoActive(dbc, alert)
		if err != nil {
			d.log.Warn("Alert insert failed", "failure_mode", k.failureMode, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s|%s|%s: %v", k.failureMode, k.substrate, k.product, err))
			continue
		}
		if !created {
			summary.AlertsSkipped++
			continue
		}
		summary.AlertsCreated++
		d.metrics.IncAlertCreated(alert.Severity)

		if alert.Severity == types.SeverityCritical && d.notifier != nil {
			if err := d.notifier.NotifyCriticalAlert(ctx, alert); err != nil {
				d.log.Warn("Critical alert email failed", "alert_id", alert.ID, "error", err)
			}
		}
	}

	outcome := "ok"
	if len(summary.Errors) > 0 {
		outcome = "partial"
	}
	d.metrics.ObserveDetection(outcome)
	d.log.Info("Pattern detection complete",
		"triples_evaluated", summary.TriplesEvaluated,
		"alerts_created", summary.AlertsCreated,
		"alerts_skipped", summary.AlertsSkipped,
	)
	return summary, nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
