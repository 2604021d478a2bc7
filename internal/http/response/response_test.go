package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/platform/apierr"
)

func run(t *testing.T, err error) (int, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondAPIError(c, err)
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, env
}

func TestRespondAPIError(t *testing.T) {
	code, env := run(t, fmt.Errorf("wrapped: %w", apierr.Conflict("invalid_transition", errors.New("open -> closed"))))
	if code != http.StatusConflict || env.Error.Code != "invalid_transition" || env.Error.Message != "open -> closed" {
		t.Fatalf("got %d %+v", code, env)
	}

	code, env = run(t, errors.New("pq: connection refused"))
	if code != http.StatusInternalServerError || env.Error.Message != "internal server error" {
		t.Fatalf("internal errors must not leak: %d %+v", code, env)
	}
}
