package billing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/substratelabs/failurelens-backend/internal/observability"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const (
	DefaultPricingTTL = 600 * time.Second
	// FailedFetchTTL is how long a failed refresh is remembered before the
	// upstream is tried again.
	FailedFetchTTL = 30 * time.Second
)

// DefaultPrices are monthly amounts in cents used until an upstream fetch
// succeeds.
var DefaultPrices = map[string]int64{
	"free": 0,
	"pro":  2900,
	"team": 9900,
}

type PriceFetcher interface {
	FetchPriceAmount(ctx context.Context, priceID string) (int64, error)
}

type Price struct {
	Plan        string `json:"plan"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
}

type Pricing struct {
	Plans     []Price   `json:"plans"`
	FetchedAt time.Time `json:"fetched_at"`
	Fallback  bool      `json:"fallback"`
}

// PricingCache serves plan prices with a TTL. A failed refresh keeps the last
// good value, or the defaults if nothing was ever fetched, for FailedFetchTTL.
type PricingCache struct {
	log      *logger.Logger
	fetcher  PriceFetcher
	priceIDs map[string]string
	ttl      time.Duration
	metrics  *observability.Metrics
	now      func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	cached    *Pricing // last successful fetch
	served    *Pricing // what Get returns until expiresAt
	expiresAt time.Time
}

// NewPricingCache maps plan name to upstream price id. A nil fetcher always
// serves the defaults.
func NewPricingCache(baseLog *logger.Logger, fetcher PriceFetcher, priceIDs map[string]string, ttl time.Duration, metrics *observability.Metrics) *PricingCache {
	if ttl <= 0 {
		ttl = DefaultPricingTTL
	}
	return &PricingCache{
		log:      baseLog.With("service", "PricingCache"),
		fetcher:  fetcher,
		priceIDs: priceIDs,
		ttl:      ttl,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (c *PricingCache) WithClock(now func() time.Time) *PricingCache {
	c.now = now
	return c
}

func (c *PricingCache) Get(ctx context.Context) *Pricing {
	c.mu.Lock()
	if c.served != nil && c.now().Before(c.expiresAt) {
		p := c.served
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do("pricing", func() (any, error) {
		return c.refresh(ctx), nil
	})
	return v.(*Pricing)
}

func (c *PricingCache) refresh(ctx context.Context) *Pricing {
	fresh, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.metrics.IncPricingFetch("error")
		if c.cached != nil {
			c.log.Warn("Price refresh failed; serving last cached prices", "error", err)
			c.served = c.cached
		} else {
			c.log.Warn("Price fetch failed; serving default prices", "error", err)
			c.served = defaultPricing(c.now())
		}
		c.expiresAt = c.now().Add(FailedFetchTTL)
		return c.served
	}
	c.metrics.IncPricingFetch("ok")
	c.cached, c.served = fresh, fresh
	c.expiresAt = c.now().Add(c.ttl)
	return fresh
}

func (c *PricingCache) fetch(ctx context.Context) (*Pricing, error) {
	if c.fetcher == nil {
		return nil, errNoFetcher
	}
	out := &Pricing{FetchedAt: c.now().UTC()}
	for _, plan := range planOrder {
		amount := DefaultPrices[plan]
		if id := c.priceIDs[plan]; id != "" {
			a, err := c.fetcher.FetchPriceAmount(ctx, id)
			if err != nil {
				return nil, err
			}
			amount = a
		}
		out.Plans = append(out.Plans, Price{Plan: plan, AmountCents: amount, Currency: "usd", Interval: "month"})
	}
	return out, nil
}

var planOrder = []string{"free", "pro", "team"}

type pricingError string

func (e pricingError) Error() string { return string(e) }

const errNoFetcher = pricingError("no price fetcher configured")

func defaultPricing(now time.Time) *Pricing {
	out := &Pricing{FetchedAt: now.UTC(), Fallback: true}
	for _, plan := range planOrder {
		out.Plans = append(out.Plans, Price{Plan: plan, AmountCents: DefaultPrices[plan], Currency: "usd", Interval: "month"})
	}
	return out
}
