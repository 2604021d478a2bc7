package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	profilerepo "github.com/substratelabs/failurelens-backend/internal/data/repos/profile"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type Usage struct {
	Plan              string     `json:"plan"`
	AnalysesThisMonth int        `json:"analyses_this_month"`
	SpecsThisMonth    int        `json:"specs_this_month"`
	UsageResetDate    time.Time  `json:"usage_reset_date"`
	Limits            PlanLimits `json:"limits"`
}

type UsageService struct {
	log      *logger.Logger
	profiles repos.UserProfileRepo
	gate     *Gate
	now      func() time.Time
}

func NewUsageService(baseLog *logger.Logger, profiles repos.UserProfileRepo, gate *Gate) *UsageService {
	return &UsageService{
		log:      baseLog.With("service", "UsageService"),
		profiles: profiles,
		gate:     gate,
		now:      time.Now,
	}
}

func (s *UsageService) WithClock(now func() time.Time) *UsageService {
	s.now = now
	return s
}

func (s *UsageService) Gate() *Gate { return s.gate }

// NextResetDate is the first instant of the month after t, in UTC.
func NextResetDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Current loads the profile, zeroing the counters first when the reset date
// has passed.
func (s *UsageService) Current(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.profiles.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s not found", userID)
	}
	now := s.now().UTC()
	if !now.Before(p.UsageResetDate) {
		next := NextResetDate(now)
		if err := s.profiles.ResetUsage(dbc, userID, next); err != nil {
			return nil, fmt.Errorf("reset usage: %w", err)
		}
		s.log.Debug("Monthly usage reset", "user_id", userID, "next_reset", next)
		p.AnalysesThisMonth = 0
		p.SpecsThisMonth = 0
		p.UsageResetDate = next
	}
	return p, nil
}

// Check returns ErrQuotaExceeded (wrapped) when the profile has no quota left
// for kind.
func (s *UsageService) Check(p *types.UserProfile, kind string) error {
	used := p.AnalysesThisMonth
	if kind == KindSpec {
		used = p.SpecsThisMonth
	}
	return s.gate.CheckQuota(p.Plan, kind, used)
}

func (s *UsageService) Increment(ctx context.Context, userID uuid.UUID, kind string) error {
	col := profilerepo.UsageAnalyses
	if kind == KindSpec {
		col = profilerepo.UsageSpecs
	}
	return s.profiles.IncrementUsage(dbctx.Context{Ctx: ctx}, userID, col)
}

func (s *UsageService) Snapshot(p *types.UserProfile) Usage {
	return Usage{
		Plan:              p.Plan,
		AnalysesThisMonth: p.AnalysesThisMonth,
		SpecsThisMonth:    p.SpecsThisMonth,
		UsageResetDate:    p.UsageResetDate,
		Limits:            s.gate.Limits(p.Plan),
	}
}
