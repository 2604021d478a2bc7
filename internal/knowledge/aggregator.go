package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const (
	AggregateLockKey = "failurelens:lock:knowledge-aggregate"
	AggregateLockTTL = 10 * time.Minute

	maxListItems = 5
)

var ErrAggregationInProgress = errors.New("knowledge aggregation already running")

// RunLocker is a best-effort cross-process mutex.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type AggregatorConfig struct {
	MaxFeedback int
	BatchSize   int
	Concurrency int
}

type AggregationSummary struct {
	PatternsUpserted  int      `json:"patterns_upserted"`
	AnalysesProcessed int      `json:"analyses_processed"`
	Errors            []string `json:"errors"`
}

type Aggregator struct {
	log      *logger.Logger
	feedback repos.FeedbackRepo
	analyses repos.AnalysisRepo
	patterns repos.KnowledgePatternRepo
	locker   RunLocker
	metrics  *observability.Metrics
	cfg      AggregatorConfig
}

func NewAggregator(
	baseLog *logger.Logger,
	feedback repos.FeedbackRepo,
	analyses repos.AnalysisRepo,
	patterns repos.KnowledgePatternRepo,
	locker RunLocker,
	metrics *observability.Metrics,
	cfg AggregatorConfig,
) *Aggregator {
	if cfg.MaxFeedback <= 0 {
		cfg.MaxFeedback = 5000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Aggregator{
		log:      baseLog.With("service", "KnowledgeAggregator"),
		feedback: feedback,
		analyses: analyses,
		patterns: patterns,
		locker:   locker,
		metrics:  metrics,
		cfg:      cfg,
	}
}

type patternKey struct {
	a, b, category string
}

type evidence struct {
	fb       *types.FeedbackRecord
	analysis *types.Analysis
}

// Run rebuilds knowledge patterns from confirmed feedback. Loading failures
// are returned; a failing group is recorded in the summary and skipped.
func (a *Aggregator) Run(ctx context.Context) (AggregationSummary, error) {
	summary := AggregationSummary{Errors: []string{}}
	start := time.Now()

	if a.locker != nil {
		unlock, ok, err := a.locker.TryLock(ctx, AggregateLockKey, AggregateLockTTL)
		if err != nil {
			a.log.Warn("aggregation lock unavailable; running unlocked", "error", err)
		} else if !ok {
			return summary, ErrAggregationInProgress
		} else {
			defer unlock()
		}
	}

	summary, err := a.run(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if len(summary.Errors) > 0 {
		outcome = "partial"
	}
	a.metrics.ObserveAggregation(outcome, summary.PatternsUpserted, time.Since(start))
	return summary, err
}

func (a *Aggregator) run(ctx context.Context) (AggregationSummary, error) {
	summary := AggregationSummary{Errors: []string{}}
	dbc := dbctx.Context{Ctx: ctx}

	feedback, err := a.feedback.ListRecentForAnalyses(dbc, a.cfg.MaxFeedback)
	if err != nil {
		return summary, fmt.Errorf("load feedback: %w", err)
	}
	if len(feedback) == 0 {
		a.log.Info("No feedback to aggregate")
		return summary, nil
	}

	parents, err := a.loadParents(ctx, feedback)
	if err != nil {
		return summary, fmt.Errorf("load analyses: %w", err)
	}

	groups := map[patternKey][]evidence{}
	for _, fb := range feedback {
		if fb.AnalysisID == nil {
			continue
		}
		an := parents[*fb.AnalysisID]
		if an == nil || an.Status != types.StatusCompleted {
			continue
		}
		na, nb := Normalize(an.SubstrateA), Normalize(an.SubstrateB)
		if na == "" && nb == "" {
			continue
		}
		na, nb = SortedPair(na, nb)
		cat := strings.TrimSpace(an.RootCauseCategory)
		if cat == "" {
			cat = UnknownCategory
		}
		k := patternKey{a: na, b: nb, category: cat}
		groups[k] = append(groups[k], evidence{fb: fb, analysis: an})
		summary.AnalysesProcessed++
	}

	keys := make([]patternKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		if keys[i].b != keys[j].b {
			return keys[i].b < keys[j].b
		}
		return keys[i].category < keys[j].category
	})

	now := time.Now().UTC()
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		row, err := buildPattern(k, groups[k], now)
		if err == nil {
			err = a.patterns.Upsert(dbc, row)
		}
		if err != nil {
			msg := fmt.Sprintf("%s|%s|%s: %v", k.a, k.b, k.category, err)
			a.log.Warn("Pattern upsert failed", "key", k.a+"|"+k.b+"|"+k.category, "error", err)
			summary.Errors = append(summary.Errors, msg)
			continue
		}
		summary.PatternsUpserted++
	}

	a.log.Info("Knowledge aggregation complete",
		"patterns_upserted", summary.PatternsUpserted,
		"analyses_processed", summary.AnalysesProcessed,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

func (a *Aggregator) loadParents(ctx context.Context, feedback []*types.FeedbackRecord) (map[uuid.UUID]*types.Analysis, error) {
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(feedback))
	for _, fb := range feedback {
		if fb.AnalysisID == nil || seen[*fb.AnalysisID] {
			continue
		}
		seen[*fb.AnalysisID] = true
		ids = append(ids, *fb.AnalysisID)
	}

	var mu sync.Mutex
	out := make(map[uuid.UUID]*types.Analysis, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for start := 0; start < len(ids); start += a.cfg.BatchSize {
		end := start + a.cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		g.Go(func() error {
			rows, err := a.analyses.GetByIDs(dbctx.Context{Ctx: gctx}, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, r := range rows {
				out[r.ID] = r
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildPattern(k patternKey, items []evidence, now time.Time) (*types.KnowledgePattern, error) {
	helpful := 0
	rootCauses := newUniqueList(maxListItems)
	fixes := newUniqueList(maxListItems)
	industries := newUniqueList(maxListItems)
	modes := newUniqueList(maxListItems)
	families := newCounter()
	industryCounts := newCounter()

	for _, ev := range items {
		if ev.fb.WasHelpful {
			helpful++
		}
		rootCauses.add(ev.fb.ActualRootCause)
		fixes.add(ev.fb.WhatWorked)
		industries.add(ev.analysis.Industry)
		modes.add(ev.analysis.FailureMode)
		families.add(ev.analysis.MaterialSubcategory)
		industryCounts.add(ev.analysis.Industry)
	}

	var rate *float64
	if n := len(items); n > 0 {
		r := float64(helpful) / float64(n)
		rate = &r
	}

	meta, err := json.Marshal(types.PatternMetadata{
		TopRootCauses: rootCauses.items,
		TopFixes:      fixes.items,
		Industries:    industries.items,
		FailureModes:  modes.items,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &types.KnowledgePattern{
		SubstrateANormalized:  k.a,
		SubstrateBNormalized:  k.b,
		RootCauseCategory:     k.category,
		EvidenceCount:         len(items),
		SuccessRate:           rate,
		Metadata:              datatypes.JSON(meta),
		PrimaryAdhesiveFamily: families.top(),
		PrimaryIndustry:       industryCounts.top(),
		LastAggregatedAt:      now,
	}, nil
}

// uniqueList keeps the first max distinct non-empty values, compared
// case-insensitively.
type uniqueList struct {
	max   int
	seen  map[string]bool
	items []string
}

func newUniqueList(max int) *uniqueList {
	return &uniqueList{max: max, seen: map[string]bool{}, items: []string{}}
}

func (u *uniqueList) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" || len(u.items) >= u.max {
		return
	}
	k := strings.ToLower(v)
	if u.seen[k] {
		return
	}
	u.seen[k] = true
	u.items = append(u.items, v)
}

// counter finds the most frequent non-empty value; ties go to the first seen.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter { return &counter{counts: map[string]int{}} }

func (c *counter) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *counter) top() string {
	best, bestN := "", 0
	for _, v := range c.order {
		if c.counts[v] > bestN {
			best, bestN = v, c.counts[v]
		}
	}
	return best
}
