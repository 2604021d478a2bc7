package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. All methods are safe on a nil receiver so
// components can run without metrics wired (tests, CLI).
type Metrics struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	httpInflight  prometheus.Gauge
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	aggRuns       *prometheus.CounterVec
	aggPatterns   prometheus.Counter
	aggDuration   prometheus.Histogram
	alertsCreated *prometheus.CounterVec
	detectRuns    *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	calibration   prometheus.Histogram
	pricingFetch  *prometheus.CounterVec
	emailSends    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "failurelens_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "failurelens_http_inflight_requests",
			Help: "HTTP requests currently being served",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_llm_requests_total",
			Help: "LLM calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "failurelens_llm_request_duration_seconds",
			Help:    "LLM call latency including retries",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"operation"}),
		aggRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_knowledge_aggregation_runs_total",
			Help: "Knowledge aggregation runs by outcome",
		}, []string{"outcome"}),
		aggPatterns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "failurelens_knowledge_patterns_upserted_total",
			Help: "Knowledge patterns written by the aggregator",
		}),
		aggDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "failurelens_knowledge_aggregation_duration_seconds",
			Help:    "Aggregator wall time",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}),
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_pattern_alerts_created_total",
			Help: "Pattern alerts created by severity",
		}, []string{"severity"}),
		detectRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_pattern_detection_runs_total",
			Help: "Pattern detection runs by outcome",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"prefix"}),
		calibration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "failurelens_confidence_calibration_delta",
			Help:    "Calibrated minus AI-reported confidence",
			Buckets: []float64{-0.3, -0.2, -0.1, -0.05, 0, 0.05, 0.1, 0.2, 0.3},
		}),
		pricingFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_pricing_fetch_total",
			Help: "Upstream price lookups by outcome",
		}, []string{"outcome"}),
		emailSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failurelens_email_sends_total",
			Help: "Outbound alert emails by outcome",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency, m.httpInflight,
		m.llmRequests, m.llmLatency,
		m.aggRuns, m.aggPatterns, m.aggDuration,
		m.alertsCreated, m.detectRuns,
		m.rateLimited, m.calibration,
		m.pricingFetch, m.emailSends,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) IncInflight() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

func (m *Metrics) DecInflight() {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveLLM(operation, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, outcome).Inc()
	m.llmLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

func (m *Metrics) ObserveAggregation(outcome string, patterns int, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggRuns.WithLabelValues(outcome).Inc()
	m.aggPatterns.Add(float64(patterns))
	m.aggDuration.Observe(dur.Seconds())
}

func (m *Metrics) ObserveDetection(outcome string) {
	if m == nil {
		return
	}
	m.detectRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAlertCreated(severity string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncRateLimited(prefix string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(prefix).Inc()
}

func (m *Metrics) ObserveCalibration(ai, calibrated float64) {
	if m == nil {
		return
	}
	m.calibration.Observe(calibrated - ai)
}

func (m *Metrics) IncPricingFetch(outcome string) {
	if m == nil {
		return
	}
	m.pricingFetch.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncEmail(outcome string) {
	if m == nil {
		return
	}
	m.emailSends.WithLabelValues(outcome).Inc()
}
