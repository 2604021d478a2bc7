package handlers

import (
	"bytes"
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
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/platform/apierr"
	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
	"github.com/substratelabs/failurelens-backend/internal/platform/stripe"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type fakeAnalyses struct {
	gotUser  uuid.UUID
	gotInput services.AnalysisInput
	err      error
}

func (f *fakeAnalyses) Create(ctx context.Context, userID uuid.UUID, in services.AnalysisInput) (*types.Analysis, error) {
	f.gotUser, f.gotInput = userID, in
	if f.err != nil {
		return nil, f.err
	}
	return &types.Analysis{ID: uuid.New(), UserID: userID, SubstrateA: in.SubstrateA, Status: types.StatusCompleted}, nil
}

func (f *fakeAnalyses) Get(ctx context.Context, userID, id uuid.UUID) (*types.Analysis, error) {
	return nil, apierr.New(http.StatusNotFound, "analysis_not_found", services.ErrNotFound)
}

func (f *fakeAnalyses) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Analysis, error) {
	return []*types.Analysis{}, nil
}

func withUser(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: id, Plan: types.PlanPro})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func call(r *gin.Engine, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestAnalysisHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	svc := &fakeAnalyses{}
	h := NewAnalysisHandler(svc)

	r := gin.New()
	authed := r.Group("/", withUser(userID))
	authed.POST("/api/analyses", h.Create)
	authed.GET("/api/analyses", h.List)
	authed.GET("/api/analyses/:id", h.Get)
	r.POST("/anon/analyses", h.Create)

	rec := call(r, http.MethodPost, "/api/analyses", []byte(`{"substrate_a":"PP","failure_mode":"adhesive"}`), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if svc.gotUser != userID || svc.gotInput.SubstrateA != "PP" || svc.gotInput.FailureMode != "adhesive" {
		t.Fatalf("service called with %v %+v", svc.gotUser, svc.gotInput)
	}

	if rec := call(r, http.MethodPost, "/api/analyses", []byte(`{`), nil); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("malformed body: %d %s", rec.Code, rec.Body.String())
	}

	svc.err = apierr.New(http.StatusPaymentRequired, "quota_exceeded", billing.ErrQuotaExceeded)
	if rec := call(r, http.MethodPost, "/api/analyses", []byte(`{}`), nil); rec.Code != http.StatusPaymentRequired || errorCode(t, rec) != "quota_exceeded" {
		t.Fatalf("quota: %d %s", rec.Code, rec.Body.String())
	}

	svc.err = errors.New("connection reset")
	rec = call(r, http.MethodPost, "/api/analyses", []byte(`{}`), nil)
	if rec.Code != http.StatusInternalServerError || bytes.Contains(rec.Body.Bytes(), []byte("connection reset")) {
		t.Fatalf("internal errors must not leak: %d %s", rec.Code, rec.Body.String())
	}

	if rec := call(r, http.MethodPost, "/anon/analyses", []byte(`{}`), nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}
	if rec := call(r, http.MethodGet, "/api/analyses/not-a-uuid", nil, nil); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_analysis_id" {
		t.Fatalf("bad id: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(r, http.MethodGet, "/api/analyses/"+uuid.NewString(), nil, nil); rec.Code != http.StatusNotFound || errorCode(t, rec) != "analysis_not_found" {
		t.Fatalf("missing: %d %s", rec.Code, rec.Body.String())
	}

	rec = call(r, http.MethodGet, "/api/analyses?limit=1000&offset=-3", nil, nil)
	var page struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil || page.Limit != maxPageSize || page.Offset != 0 {
		t.Fatalf("paging: %s", rec.Body.String())
	}
}

type fakeFinder struct{ got knowledge.PatternQuery }

func (f *fakeFinder) FindPatterns(ctx context.Context, q knowledge.PatternQuery) []knowledge.ScoredPattern {
	f.got = q
	return []knowledge.ScoredPattern{}
}

func TestKnowledgeHandlerParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := &fakeFinder{}
	r := gin.New()
	r.GET("/api/knowledge/patterns", NewKnowledgeHandler(f).ListPatterns)

	rec := call(r, http.MethodGet, "/api/knowledge/patterns?substrate_a=HDPE&substrate_b=steel&root_cause_category=surface_preparation&min_evidence=3&limit=9", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	want := knowledge.PatternQuery{SubstrateA: "HDPE", SubstrateB: "steel", RootCauseCategory: "surface_preparation", MinEvidence: 3, Limit: 9}
	if f.got != want {
		t.Fatalf("query: got %+v want %+v", f.got, want)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"patterns":[]`)) {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

type fakeInvestigations struct {
	services.InvestigationService
	to string
}

func (f *fakeInvestigations) Transition(ctx context.Context, userID, id uuid.UUID, to string, notes *string) (*types.Investigation, error) {
	f.to = to
	if to == types.InvestigationClosed {
		return nil, apierr.Conflict("invalid_transition", services.ErrInvalidTransition)
	}
	return &types.Investigation{ID: id, UserID: userID, Status: to}, nil
}

func TestInvestigationUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := &fakeInvestigations{}
	r := gin.New()
	r.PATCH("/api/investigations/:id/status", withUser(uuid.New()), NewInvestigationHandler(f).UpdateStatus)
	path := "/api/investigations/" + uuid.NewString() + "/status"

	if rec := call(r, http.MethodPatch, path, []byte(`{"status":"containment"}`), nil); rec.Code != http.StatusOK || f.to != types.InvestigationContainment {
		t.Fatalf("advance: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(r, http.MethodPatch, path, []byte(`{"status":"closed"}`), nil); rec.Code != http.StatusConflict || errorCode(t, rec) != "invalid_transition" {
		t.Fatalf("skip ahead: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(r, http.MethodPatch, path, []byte(`{}`), nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing status: %d", rec.Code)
	}
}

type fakeAggregator struct{ err error }

func (f fakeAggregator) Run(ctx context.Context) (knowledge.AggregationSummary, error) {
	return knowledge.AggregationSummary{PatternsUpserted: 2, AnalysesProcessed: 5, Errors: []string{}}, f.err
}

type fakeDetector struct{}

func (fakeDetector) Detect(ctx context.Context) (knowledge.DetectionSummary, error) {
	return knowledge.DetectionSummary{TriplesEvaluated: 4, AlertsCreated: 1, Errors: []string{}}, nil
}

func TestCronHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/ok", NewCronHandler(logger.Nop(), fakeAggregator{}, fakeDetector{}).AggregateKnowledge)
	r.POST("/busy", NewCronHandler(logger.Nop(), fakeAggregator{err: knowledge.ErrAggregationInProgress}, fakeDetector{}).AggregateKnowledge)
	r.POST("/detect", NewCronHandler(logger.Nop(), fakeAggregator{}, fakeDetector{}).DetectPatterns)

	rec := call(r, http.MethodPost, "/ok", nil, nil)
	var sum knowledge.AggregationSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil || rec.Code != http.StatusOK || sum.PatternsUpserted != 2 || sum.AnalysesProcessed != 5 {
		t.Fatalf("aggregate: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(r, http.MethodPost, "/busy", nil, nil); rec.Code != http.StatusConflict || errorCode(t, rec) != "aggregation_in_progress" {
		t.Fatalf("busy: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(r, http.MethodPost, "/detect", nil, nil); rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"alerts_created":1`)) {
		t.Fatalf("detect: %d %s", rec.Code, rec.Body.String())
	}
}

type fakePricing struct{}

func (fakePricing) Get(ctx context.Context) *billing.Pricing {
	return &billing.Pricing{Plans: []billing.Price{{Plan: types.PlanPro, AmountCents: 2900, Currency: "usd"}}, Fallback: true}
}

type fakePlans struct{ events []string }

func (f *fakePlans) Apply(ctx context.Context, evt *stripe.Event) (billing.WebhookResult, error) {
	f.events = append(f.events, evt.Type)
	return billing.WebhookResult{EventType: evt.Type, Handled: true, Plan: types.PlanTeam, Updated: 1}, nil
}

func TestStripeWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	plans := &fakePlans{}
	now := time.Now()
	h := NewBillingHandler(logger.Nop(), fakePricing{}, plans, "whsec_test")

	r := gin.New()
	r.POST("/api/webhooks/stripe", h.StripeWebhook)
	r.GET("/api/pricing", h.GetPricing)

	payload := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled"}}}`)
	good := stripe.SignatureHeaderValue(payload, "whsec_test", now)

	rec := call(r, http.MethodPost, "/api/webhooks/stripe", payload, map[string]string{stripe.SignatureHeader: good})
	if rec.Code != http.StatusOK || len(plans.events) != 1 || plans.events[0] != stripe.EventSubscriptionDeleted {
		t.Fatalf("signed webhook: %d %s %v", rec.Code, rec.Body.String(), plans.events)
	}

	forged := stripe.SignatureHeaderValue(payload, "whsec_other", now)
	if rec := call(r, http.MethodPost, "/api/webhooks/stripe", payload, map[string]string{stripe.SignatureHeader: forged}); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_signature" {
		t.Fatalf("forged: %d %s", rec.Code, rec.Body.String())
	}
	stale := stripe.SignatureHeaderValue(payload, "whsec_test", now.Add(-10*time.Minute))
	if rec := call(r, http.MethodPost, "/api/webhooks/stripe", payload, map[string]string{stripe.SignatureHeader: stale}); rec.Code != http.StatusBadRequest {
		t.Fatalf("stale: %d", rec.Code)
	}
	garbage := []byte(`{"id":"evt_2"}`)
	if rec := call(r, http.MethodPost, "/api/webhooks/stripe", garbage, map[string]string{stripe.SignatureHeader: stripe.SignatureHeaderValue(garbage, "whsec_test", now)}); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_event" {
		t.Fatalf("untyped event: %d %s", rec.Code, rec.Body.String())
	}
	if len(plans.events) != 1 {
		t.Fatalf("rejected webhooks reached plan sync: %v", plans.events)
	}

	rec = call(r, http.MethodGet, "/api/pricing", nil, nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`2900`)) {
		t.Fatalf("pricing: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStripeWebhookDisabledWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", NewBillingHandler(logger.Nop(), fakePricing{}, &fakePlans{}, "").StripeWebhook)
	if rec := call(r, http.MethodPost, "/hook", []byte(`{}`), nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", rec.Code)
	}
}
