package services

import (
	"errors"
	"net/http"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/platform/apierr"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func quotaError(err error) error {
	if errors.Is(err, billing.ErrQuotaExceeded) {
		return apierr.New(http.StatusPaymentRequired, "quota_exceeded", err)
	}
	return err
}

func llmUnavailable(err error) error {
	return apierr.New(http.StatusBadGateway, "llm_unavailable", err)
}

func llmInvalid(err error) error {
	return apierr.New(http.StatusBadGateway, "llm_invalid_response", err)
}
