package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/platform/stripe"
)

const maxWebhookBody = 1 << 16

type PricingSource interface {
	Get(ctx context.Context) *billing.Pricing
}

type PlanApplier interface {
	Apply(ctx context.Context, evt *stripe.Event) (billing.WebhookResult, error)
}

type BillingHandler struct {
	log           *logger.Logger
	pricing       PricingSource
	plans         PlanApplier
	webhookSecret string
}

func NewBillingHandler(log *logger.Logger, pricing PricingSource, plans PlanApplier, webhookSecret string) *BillingHandler {
	return &BillingHandler{
		log:           log.With("handler", "BillingHandler"),
		pricing:       pricing,
		plans:         plans,
		webhookSecret: webhookSecret,
	}
}

// GET /api/pricing
func (h *BillingHandler) GetPricing(c *gin.Context) {
	response.RespondOK(c, gin.H{"pricing": h.pricing.Get(c.Request.Context())})
}

// POST /api/webhooks/stripe
func (h *BillingHandler) StripeWebhook(c *gin.Context) {
	if h.webhookSecret == "" || h.plans == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "webhook_disabled", errors.New("stripe webhooks are not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	evt, err := stripe.ConstructEvent(payload, c.GetHeader(stripe.SignatureHeader), h.webhookSecret, stripe.DefaultTolerance)
	if errors.Is(err, stripe.ErrInvalidEvent) {
		response.RespondError(c, http.StatusBadRequest, "invalid_event", err)
		return
	}
	if err != nil {
		h.log.Warn("Rejected stripe webhook", "error", err)
		response.RespondError(c, http.StatusBadRequest, "invalid_signature", err)
		return
	}
	res, err := h.plans.Apply(c.Request.Context(), evt)
	if err != nil {
		h.log.Error("Stripe webhook failed", "event_id", evt.ID, "event_type", evt.Type, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "webhook_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"received": true, "result": res})
}
