package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/ratelimit"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type fakeAuth struct {
	rd  *ctxutil.RequestData
	err error
}

func (f *fakeAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	if f.err != nil {
		return ctx, f.err
	}
	return ctxutil.WithRequestData(ctx, f.rd), nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.APIError {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env.Error
}

func do(r *gin.Engine, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	auth := &fakeAuth{rd: &ctxutil.RequestData{UserID: userID, Plan: types.PlanPro, Role: types.RoleUser}}
	am := NewAuthMiddleware(logger.Nop(), auth)
	gate, _ := billing.DefaultGate()

	r := gin.New()
	r.GET("/me", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.GetRequestData(c.Request.Context()).UserID.String())
	})
	r.GET("/insights", am.RequireAuth(), RequireFeature(gate, billing.FeatureKnowledgeInsights), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/alerts", am.RequireAuth(), RequireFeature(gate, billing.FeaturePatternAlerts), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin", am.RequireAuth(), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := do(r, http.MethodGet, "/me", nil)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Code != "unauthorized" {
		t.Fatalf("missing token: %d %s", rec.Code, rec.Body.String())
	}

	bearer := map[string]string{"Authorization": "Bearer token"}
	rec = do(r, http.MethodGet, "/me", bearer)
	if rec.Code != http.StatusOK || rec.Body.String() != userID.String() {
		t.Fatalf("valid token: %d %s", rec.Code, rec.Body.String())
	}

	if rec = do(r, http.MethodGet, "/insights", bearer); rec.Code != http.StatusOK {
		t.Fatalf("pro should have insights: %d", rec.Code)
	}
	rec = do(r, http.MethodGet, "/alerts", bearer)
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "plan_upgrade_required" {
		t.Fatalf("pro should not have alerts: %d %s", rec.Code, rec.Body.String())
	}
	if rec = do(r, http.MethodGet, "/admin", bearer); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin reached admin route: %d", rec.Code)
	}

	auth.rd.Role = types.RoleAdmin
	if rec = do(r, http.MethodGet, "/admin", bearer); rec.Code != http.StatusOK {
		t.Fatalf("admin rejected: %d", rec.Code)
	}

	auth.err = services.ErrUnauthorized
	if rec = do(r, http.MethodGet, "/me", bearer); rec.Code != http.StatusUnauthorized {
		t.Fatalf("rejected token: %d", rec.Code)
	}
	auth.err = errors.New("db down")
	if rec = do(r, http.MethodGet, "/me", bearer); rec.Code != http.StatusInternalServerError {
		t.Fatalf("auth backend failure: %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ratelimit.NewWithClock(func() time.Time { return now })

	r := gin.New()
	r.POST("/analyses", RateLimit(l, "analyses", 2, time.Minute, nil), func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i, wantRemaining := range []string{"1", "0"} {
		rec := do(r, http.MethodPost, "/analyses", nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" || rec.Header().Get("X-RateLimit-Remaining") != wantRemaining {
			t.Fatalf("request %d headers: %v", i, rec.Header())
		}
	}
	rec := do(r, http.MethodPost, "/analyses", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", rec.Code)
	}
	e := decodeError(t, rec)
	if e.Code != "rate_limited" || e.Message != "rate limit exceeded" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rejection: %+v %v", e, rec.Header())
	}

	now = now.Add(61 * time.Second)
	if rec := do(r, http.MethodPost, "/analyses", nil); rec.Code != http.StatusCreated {
		t.Fatalf("window should have slid: %d", rec.Code)
	}
}

func TestRateLimitKeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := ratelimit.New()
	am := NewAuthMiddleware(logger.Nop(), &fakeAuth{rd: &ctxutil.RequestData{UserID: uuid.New()}})

	r := gin.New()
	r.POST("/specs", am.RequireAuth(), RateLimit(l, "specs", 1, time.Minute, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	bearer := map[string]string{"Authorization": "Bearer t"}
	do(r, http.MethodPost, "/specs", bearer)
	if rec := do(r, http.MethodPost, "/specs", bearer); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call for the same user should be limited: %d", rec.Code)
	}
	if ok, _ := l.Allow("specs:"+"192.0.2.1", 1, time.Minute); !ok {
		t.Fatalf("ip key should be independent of the user key")
	}
}

func TestRequireCronSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/cron", RequireCronSecret("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/disabled", RequireCronSecret(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	if rec := do(r, http.MethodPost, "/cron", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/cron", map[string]string{HeaderCronSecret: "nope"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/cron", map[string]string{HeaderCronSecret: "s3cret"}); rec.Code != http.StatusOK {
		t.Fatalf("right secret: %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/disabled", map[string]string{HeaderCronSecret: ""}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured secret must reject: %d", rec.Code)
	}
}

type captureAudit struct {
	rows chan *types.APIRequestLog
}

func (c *captureAudit) Create(dbc dbctx.Context, row *types.APIRequestLog) error {
	c.rows <- row
	return nil
}

func TestRequestLoggerWritesAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &captureAudit{rows: make(chan *types.APIRequestLog, 1)}

	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(logger.Nop(), audit))
	r.GET("/api/analyses/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	rec := do(r, http.MethodGet, "/api/analyses/123", map[string]string{HeaderRequestID: "req-1"})
	if rec.Header().Get(HeaderRequestID) != "req-1" || rec.Header().Get(HeaderTraceID) == "" {
		t.Fatalf("trace headers: %v", rec.Header())
	}

	select {
	case row := <-audit.rows:
		if row.Path != "/api/analyses/:id" || row.Status != http.StatusNotFound || row.RequestID != "req-1" || row.UserID != nil {
			t.Fatalf("unexpected audit row: %+v", row)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audit row not written")
	}
}
