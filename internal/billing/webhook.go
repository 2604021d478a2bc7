package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/platform/stripe"
)

// WebhookResult reports what an event changed.
type WebhookResult struct {
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
	Plan      string `json:"plan,omitempty"`
	Updated   int64  `json:"updated"`
}

// PlanSync applies Stripe subscription events to user plans.
type PlanSync struct {
	log       *logger.Logger
	profiles  repos.UserProfileRepo
	planByPID map[string]string
}

// NewPlanSync takes plan name -> Stripe price id.
func NewPlanSync(baseLog *logger.Logger, profiles repos.UserProfileRepo, priceIDs map[string]string) *PlanSync {
	byPID := map[string]string{}
	for plan, pid := range priceIDs {
		if pid = strings.TrimSpace(pid); pid != "" {
			byPID[pid] = plan
		}
	}
	return &PlanSync{
		log:       baseLog.With("service", "PlanSync"),
		profiles:  profiles,
		planByPID: byPID,
	}
}

// PlanForPrice maps a price id to a plan; unknown ids map to "".
func (s *PlanSync) PlanForPrice(priceID string) string {
	return s.planByPID[strings.TrimSpace(priceID)]
}

func (s *PlanSync) Apply(ctx context.Context, evt *stripe.Event) (WebhookResult, error) {
	res := WebhookResult{EventType: evt.Type}
	dbc := dbctx.Context{Ctx: ctx}

	switch evt.Type {
	case stripe.EventCheckoutCompleted:
		sess, err := evt.CheckoutSession()
		if err != nil {
			return res, err
		}
		userID, err := uuid.Parse(strings.TrimSpace(sess.ClientReferenceID))
		if err != nil {
			return res, fmt.Errorf("checkout session %s: bad client_reference_id", sess.ID)
		}
		plan := s.planFromMetadata(sess.Metadata)
		if plan == "" {
			s.log.Warn("Checkout session without a known plan; ignoring", "session_id", sess.ID)
			return res, nil
		}
		if err := s.profiles.UpdateBilling(dbc, userID, sess.Customer, sess.Subscription, plan); err != nil {
			return res, fmt.Errorf("update billing: %w", err)
		}
		res.Handled, res.Plan, res.Updated = true, plan, 1

	case stripe.EventSubscriptionUpdated:
		sub, err := evt.Subscription()
		if err != nil {
			return res, err
		}
		plan := types.PlanFree
		if sub.IsLive() {
			plan = s.planFromSubscription(sub)
		}
		if plan == "" {
			s.log.Warn("Subscription has no mapped price; ignoring", "subscription_id", sub.ID)
			return res, nil
		}
		n, err := s.profiles.UpdatePlanByCustomer(dbc, sub.Customer, sub.ID, plan)
		if err != nil {
			return res, fmt.Errorf("update plan: %w", err)
		}
		res.Handled, res.Plan, res.Updated = true, plan, n

	case stripe.EventSubscriptionDeleted:
		sub, err := evt.Subscription()
		if err != nil {
			return res, err
		}
		n, err := s.profiles.UpdatePlanByCustomer(dbc, sub.Customer, "", types.PlanFree)
		if err != nil {
			return res, fmt.Errorf("downgrade plan: %w", err)
		}
		res.Handled, res.Plan, res.Updated = true, types.PlanFree, n

	default:
		s.log.Debug("Ignoring stripe event", "event_type", evt.Type)
		return res, nil
	}

	if res.Updated == 0 {
		s.log.Warn("Stripe event matched no profile", "event_type", evt.Type, "event_id", evt.ID)
	}
	return res, nil
}

func (s *PlanSync) planFromMetadata(md map[string]string) string {
	if p := s.PlanForPrice(md["price_id"]); p != "" {
		return p
	}
	switch p := strings.ToLower(strings.TrimSpace(md["plan"])); p {
	case types.PlanPro, types.PlanTeam:
		return p
	}
	return ""
}

func (s *PlanSync) planFromSubscription(sub *stripe.Subscription) string {
	for _, pid := range sub.PriceIDs() {
		if p := s.PlanForPrice(pid); p != "" {
			return p
		}
	}
	return s.planFromMetadata(sub.Metadata)
}
