package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	SignatureHeader  = "Stripe-Signature"
	DefaultTolerance = webhook.DefaultTolerance

	EventCheckoutCompleted   = string(stripego.EventTypeCheckoutSessionCompleted)
	EventSubscriptionUpdated = string(stripego.EventTypeCustomerSubscriptionUpdated)
	EventSubscriptionDeleted = string(stripego.EventTypeCustomerSubscriptionDeleted)
)

var (
	ErrMissingSignature = errors.New("missing stripe signature")
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrTimestampExpired = errors.New("stripe signature timestamp outside tolerance")
	ErrInvalidEvent     = errors.New("invalid stripe event")
)

// ConstructEvent verifies the Stripe-Signature header and decodes the
// payload. Signature failures wrap one of the Err*Signature sentinels or
// ErrTimestampExpired; a verified but undecodable body wraps ErrInvalidEvent.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (*Event, error) {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return nil, ErrMissingSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance); err != nil {
		switch {
		case errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", ErrTimestampExpired, err)
		case errors.Is(err, webhook.ErrNotSigned):
			return nil, fmt.Errorf("%w: %v", ErrMissingSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}
	return ParseEvent(payload)
}

// SignatureHeaderValue builds a header value, mostly useful in tests.
func SignatureHeaderValue(payload []byte, secret string, t time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: t,
	}).Header
}

type Event struct {
	ID   string
	Type string
	Data struct {
		Object json.RawMessage
	}
}

type CheckoutSession struct {
	ID                string
	ClientReferenceID string
	Customer          string
	Subscription      string
	Metadata          map[string]string
}

type Subscription struct {
	ID       string
	Customer string
	Status   string
	Metadata map[string]string
	Prices   []string
}

// PriceIDs lists the price ids on the subscription's items, in order.
func (s *Subscription) PriceIDs() []string {
	out := make([]string, 0, len(s.Prices))
	for _, id := range s.Prices {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// IsLive reports whether the subscription should grant its plan.
func (s *Subscription) IsLive() bool {
	switch stripego.SubscriptionStatus(s.Status) {
	case stripego.SubscriptionStatusActive, stripego.SubscriptionStatusTrialing, stripego.SubscriptionStatusPastDue:
		return true
	}
	return false
}

// ParseEvent decodes an already verified payload. API version mismatches
// are not checked; only the fields the plan mapper reads are used.
func ParseEvent(payload []byte) (*Event, error) {
	var raw stripego.Event
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	evt := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data != nil {
		evt.Data.Object = raw.Data.Raw
	}
	return evt, nil
}

func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var cs stripego.CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	out := &CheckoutSession{
		ID:                cs.ID,
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
	}
	if cs.Customer != nil {
		out.Customer = cs.Customer.ID
	}
	if cs.Subscription != nil {
		out.Subscription = cs.Subscription.ID
	}
	return out, nil
}

func (e *Event) Subscription() (*Subscription, error) {
	var sub stripego.Subscription
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	out := &Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.Customer = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, it := range sub.Items.Data {
			if it != nil && it.Price != nil {
				out.Prices = append(out.Prices, it.Price.ID)
			}
		}
	}
	return out, nil
}
