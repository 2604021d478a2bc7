package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type Me struct {
	Profile *types.UserProfile `json:"profile"`
	Usage   billing.Usage      `json:"usage"`
}

type ProfileService interface {
	// EnsureProfile returns the caller's profile, creating a free-plan profile
	// on first sight.
	EnsureProfile(ctx context.Context, userID uuid.UUID, email string) (*types.UserProfile, error)
	GetMe(ctx context.Context, userID uuid.UUID) (*Me, error)
	Usage(ctx context.Context, userID uuid.UUID) (*billing.Usage, error)
}

type profileService struct {
	log      *logger.Logger
	profiles repos.UserProfileRepo
	usage    *billing.UsageService
	now      func() time.Time
}

func NewProfileService(baseLog *logger.Logger, profiles repos.UserProfileRepo, usage *billing.UsageService) ProfileService {
	return &profileService{
		log:      baseLog.With("service", "ProfileService"),
		profiles: profiles,
		usage:    usage,
		now:      time.Now,
	}
}

func (s *profileService) EnsureProfile(ctx context.Context, userID uuid.UUID, email string) (*types.UserProfile, error) {
	return s.profiles.Ensure(dbctx.Context{Ctx: ctx}, userID, email, billing.NextResetDate(s.now()))
}

func (s *profileService) GetMe(ctx context.Context, userID uuid.UUID) (*Me, error) {
	p, err := s.usage.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Me{Profile: p, Usage: s.usage.Snapshot(p)}, nil
}

func (s *profileService) Usage(ctx context.Context, userID uuid.UUID) (*billing.Usage, error) {
	p, err := s.usage.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := s.usage.Snapshot(p)
	return &u, nil
}
