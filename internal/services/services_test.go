package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/substratelabs/failurelens-backend/internal/billing"
	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	"github.com/substratelabs/failurelens-backend/internal/data/repos/testutil"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/platform/anthropic"
	"github.com/substratelabs/failurelens-backend/internal/platform/apierr"
	"github.com/substratelabs/failurelens-backend/internal/platform/ctxutil"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/resend"
)

type fakeLLM struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []anthropic.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req anthropic.CompletionRequest) (*anthropic.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Completion{Text: f.text, Model: "test-model"}, nil
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, req anthropic.CompletionRequest, out any) (*anthropic.Completion, error) {
	comp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, ok := anthropic.ExtractJSONObject(comp.Text)
	if !ok {
		return comp, anthropic.ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return comp, err
	}
	return comp, nil
}

type fixture struct {
	db       *gorm.DB
	ctx      context.Context
	profiles repos.UserProfileRepo
	analyses repos.AnalysisRepo
	specs    repos.SpecRequestRepo
	patterns repos.KnowledgePatternRepo
	usage    *billing.UsageService
	llm      *fakeLLM
	analysis AnalysisService
	spec     SpecService
	user     *types.UserProfile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	gate, err := billing.DefaultGate()
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	f := &fixture{
		db:       db,
		ctx:      context.Background(),
		profiles: repos.NewUserProfileRepo(db, log),
		analyses: repos.NewAnalysisRepo(db, log),
		specs:    repos.NewSpecRequestRepo(db, log),
		patterns: repos.NewKnowledgePatternRepo(db, log),
		llm:      &fakeLLM{},
	}
	f.usage = billing.NewUsageService(log, f.profiles, gate)
	ks := knowledge.NewService(log, f.patterns)
	f.analysis = NewAnalysisService(log, f.analyses, f.usage, ks, f.llm, nil)
	f.spec = NewSpecService(log, f.specs, f.usage, ks, f.llm, nil)
	f.user = testutil.SeedProfile(t, f.ctx, db, "eng@example.com")
	return f
}

func (f *fixture) seedPattern(t *testing.T, category string, evidence int, success float64) {
	t.Helper()
	meta, _ := json.Marshal(types.PatternMetadata{TopFixes: []string{"flame treat the PP"}})
	if err := f.patterns.Upsert(dbctx.Context{Ctx: f.ctx}, &types.KnowledgePattern{
		SubstrateANormalized: "polypropylene",
		SubstrateBNormalized: "stainless steel",
		RootCauseCategory:    category,
		EvidenceCount:        evidence,
		SuccessRate:          &success,
		Metadata:             datatypes.JSON(meta),
	}); err != nil {
		t.Fatalf("seed pattern: %v", err)
	}
}

func wantAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	ae, ok := apierr.As(err)
	if !ok {
		t.Fatalf("want api error %d/%s, got %v", status, code, err)
	}
	if ae.Status != status || ae.Code != code {
		t.Fatalf("want %d/%s, got %d/%s (%v)", status, code, ae.Status, ae.Code, err)
	}
}

const analysisReply = "Here is my assessment:\n```json\n" + `{
  "root_causes": [
    {"category": "surface_energy", "description": "PP has low surface energy", "confidence": 0.6},
    {"category": "surface_prep", "description": "no primer", "confidence": "0.9"},
    "garbage"
  ],
  "recommendations": ["Flame treat the polypropylene", {"action": "Use a polyolefin primer", "priority": "high"}, {"priority": "low"}],
  "prevention_plan": ["Add dyne testing", "Audit primer use"],
  "confidence_score": 0.8
}` + "\n```"

func TestAnalysisCreateCalibratesAndCompletes(t *testing.T) {
	f := newFixture(t)
	f.seedPattern(t, "surface_energy", 4, 1.0)
	f.llm.text = analysisReply

	got, err := f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{
		SubstrateA:          "PP",
		SubstrateB:          "stainless_steel",
		FailureMode:         "adhesive",
		FailureDescription:  "label peeled after a week",
		MaterialSubcategory: "acrylic",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Fatalf("status=%s", got.Status)
	}
	if got.SubstrateANormalized != "polypropylene" || got.SubstrateBNormalized != "stainless steel" {
		t.Fatalf("normalization not stored: %q %q", got.SubstrateANormalized, got.SubstrateBNormalized)
	}
	if got.RootCauseCategory != "surface_prep" {
		t.Fatalf("category=%s want surface_prep", got.RootCauseCategory)
	}
	if got.AIConfidence != 0.8 || math.Abs(got.ConfidenceScore-0.86) > 1e-9 {
		t.Fatalf("confidence ai=%v calibrated=%v", got.AIConfidence, got.ConfidenceScore)
	}
	if got.KnowledgeEvidenceCount == nil || *got.KnowledgeEvidenceCount != 4 || got.KnowledgePatternsUsed != 1 {
		t.Fatalf("knowledge fields: evidence=%v used=%d", got.KnowledgeEvidenceCount, got.KnowledgePatternsUsed)
	}
	if got.PreventionPlan != "Add dyne testing\nAudit primer use" {
		t.Fatalf("prevention plan=%q", got.PreventionPlan)
	}
	var recs []Recommendation
	if err := json.Unmarshal(got.Recommendations, &recs); err != nil || len(recs) != 2 {
		t.Fatalf("recommendations=%s err=%v", got.Recommendations, err)
	}

	if len(f.llm.calls) != 1 {
		t.Fatalf("llm calls=%d", len(f.llm.calls))
	}
	if !containsAll(f.llm.calls[0].Prompt, knowledge.PromptHeader, "flame treat the PP", "Substrate A: PP") {
		t.Fatalf("prompt missing knowledge block:\n%s", f.llm.calls[0].Prompt)
	}

	p, _ := f.profiles.GetByID(dbctx.Context{Ctx: f.ctx}, f.user.ID)
	if p.AnalysesThisMonth != 1 {
		t.Fatalf("usage=%d want 1", p.AnalysesThisMonth)
	}
}

func TestAnalysisCreateWithoutPatternsKeepsAIConfidence(t *testing.T) {
	f := newFixture(t)
	f.llm.text = analysisReply

	got, err := f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{
		SubstrateA:         "glass",
		FailureMode:        "cohesive",
		FailureDescription: "bead cracked",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.ConfidenceScore != 0.8 || got.KnowledgeEvidenceCount != nil || got.KnowledgePatternsUsed != 0 {
		t.Fatalf("unexpected calibration: %+v", got)
	}
	if containsAll(f.llm.calls[0].Prompt, knowledge.PromptHeader) {
		t.Fatalf("knowledge block should be omitted without patterns")
	}
}

func TestAnalysisCreateLLMFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("anthropic http 529: overloaded")

	_, err := f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{FailureMode: "adhesive", FailureDescription: "x"})
	wantAPIError(t, err, http.StatusBadGateway, "llm_unavailable")

	rows, _ := f.analysis.List(f.ctx, f.user.ID, 10, 0)
	if len(rows) != 1 || rows[0].Status != types.StatusFailed || rows[0].ErrorMessage == "" {
		t.Fatalf("expected one failed analysis, got %+v", rows)
	}
	p, _ := f.profiles.GetByID(dbctx.Context{Ctx: f.ctx}, f.user.ID)
	if p.AnalysesThisMonth != 0 {
		t.Fatalf("failed analysis must not consume quota")
	}
}

func TestAnalysisCreateInvalidModelOutput(t *testing.T) {
	f := newFixture(t)

	f.llm.text = "I cannot help with that."
	_, err := f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{FailureMode: "adhesive", FailureDescription: "x"})
	wantAPIError(t, err, http.StatusBadGateway, "llm_invalid_response")

	f.llm.text = `{"root_causes": [], "confidence_score": 0.4}`
	_, err = f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{FailureMode: "adhesive", FailureDescription: "x"})
	wantAPIError(t, err, http.StatusBadGateway, "llm_invalid_response")
}

func TestAnalysisCreateQuotaAndValidation(t *testing.T) {
	f := newFixture(t)
	f.llm.text = analysisReply

	_, err := f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{FailureMode: "adhesive"})
	wantAPIError(t, err, http.StatusBadRequest, "invalid_request")

	for i := 0; i < 5; i++ {
		if err := f.usage.Increment(f.ctx, f.user.ID, billing.KindAnalysis); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	_, err = f.analysis.Create(f.ctx, f.user.ID, AnalysisInput{FailureMode: "adhesive", FailureDescription: "x"})
	wantAPIError(t, err, http.StatusPaymentRequired, "quota_exceeded")
	if !errors.Is(err, billing.ErrQuotaExceeded) {
		t.Fatalf("quota error should wrap ErrQuotaExceeded")
	}
	if len(f.llm.calls) != 0 {
		t.Fatalf("llm must not be called over quota")
	}
}

func TestAnalysisGetIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	other := testutil.SeedProfile(t, f.ctx, f.db, "other@example.com")
	a := testutil.SeedAnalysis(t, f.ctx, f.db, other.ID, nil)

	_, err := f.analysis.Get(f.ctx, f.user.ID, a.ID)
	wantAPIError(t, err, http.StatusNotFound, "analysis_not_found")
	if got, err := f.analysis.Get(f.ctx, other.ID, a.ID); err != nil || got.ID != a.ID {
		t.Fatalf("owner lookup failed: %v", err)
	}
}

func TestSpecCreate(t *testing.T) {
	f := newFixture(t)
	f.seedPattern(t, "surface_energy", 5, 0.6)
	f.llm.text = `{
  "recommended_family": "structural acrylic",
  "recommended_product": "MMA 8105",
  "surface_prep": ["abrade", "IPA wipe"],
  "alternatives": [{"family": "polyolefin epoxy", "reason": "slower cure"}, {}],
  "rationale": "bonds low surface energy plastics",
  "confidence_score": "0.7"
}`
	got, err := f.spec.Create(f.ctx, f.user.ID, SpecInput{
		SubstrateA:       "pp",
		SubstrateB:       "SS",
		BondRequirements: json.RawMessage(`{"shear_mpa": 10}`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.Status != types.StatusCompleted || got.RecommendedFamily != "structural acrylic" {
		t.Fatalf("unexpected spec: %+v", got)
	}
	// 0.7*0.7 + 0.3*0.6
	if math.Abs(got.ConfidenceScore-0.67) > 1e-9 || got.AIConfidence != 0.7 {
		t.Fatalf("confidence=%v ai=%v", got.ConfidenceScore, got.AIConfidence)
	}
	var alts []Alternative
	_ = json.Unmarshal(got.Alternatives, &alts)
	if len(alts) != 1 {
		t.Fatalf("alternatives=%s", got.Alternatives)
	}
	p, _ := f.profiles.GetByID(dbctx.Context{Ctx: f.ctx}, f.user.ID)
	if p.SpecsThisMonth != 1 || p.AnalysesThisMonth != 0 {
		t.Fatalf("usage=%d/%d", p.AnalysesThisMonth, p.SpecsThisMonth)
	}

	_, err = f.spec.Create(f.ctx, f.user.ID, SpecInput{})
	wantAPIError(t, err, http.StatusBadRequest, "invalid_request")
}

func TestFeedbackSubmit(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	svc := NewFeedbackService(log, repos.NewFeedbackRepo(f.db, log), f.analyses, f.specs)
	a := testutil.SeedAnalysis(t, f.ctx, f.db, f.user.ID, nil)
	yes, no := true, false
	rating := 4

	_, err := svc.Submit(f.ctx, f.user.ID, FeedbackInput{AnalysisID: &a.ID, WasHelpful: &yes, Outcome: "fixed-ish"})
	wantAPIError(t, err, http.StatusBadRequest, "invalid_outcome")

	_, err = svc.Submit(f.ctx, f.user.ID, FeedbackInput{WasHelpful: &yes, Outcome: types.OutcomeResolved})
	wantAPIError(t, err, http.StatusBadRequest, "invalid_request")

	bad := 9
	_, err = svc.Submit(f.ctx, f.user.ID, FeedbackInput{AnalysisID: &a.ID, WasHelpful: &yes, Outcome: types.OutcomeResolved, Rating: &bad})
	wantAPIError(t, err, http.StatusBadRequest, "invalid_request")

	first, err := svc.Submit(f.ctx, f.user.ID, FeedbackInput{AnalysisID: &a.ID, WasHelpful: &yes, Outcome: types.OutcomeStillTesting, Rating: &rating})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := svc.Submit(f.ctx, f.user.ID, FeedbackInput{AnalysisID: &a.ID, WasHelpful: &no, Outcome: types.OutcomeDifferentCause, ActualRootCause: " mold release "})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID || second.Outcome != types.OutcomeDifferentCause || second.WasHelpful || second.ActualRootCause != "mold release" {
		t.Fatalf("resubmission should update the same row: first=%+v second=%+v", first, second)
	}

	other := testutil.SeedProfile(t, f.ctx, f.db, "other@example.com")
	_, err = svc.Submit(f.ctx, other.ID, FeedbackInput{AnalysisID: &a.ID, WasHelpful: &yes, Outcome: types.OutcomeResolved})
	wantAPIError(t, err, http.StatusNotFound, "analysis_not_found")

	if _, err := svc.GetForAnalysis(f.ctx, other.ID, a.ID); err == nil {
		t.Fatalf("other user should see no feedback")
	}
}

func TestFeedbackSubmitForSpec(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	svc := NewFeedbackService(log, repos.NewFeedbackRepo(f.db, log), f.analyses, f.specs)
	yes, no := true, false

	spec := &types.SpecRequest{ID: uuid.New(), UserID: f.user.ID, Status: types.StatusCompleted}
	if err := f.db.WithContext(f.ctx).Create(spec).Error; err != nil {
		t.Fatalf("seed spec: %v", err)
	}

	nilAnalysis := uuid.Nil
	first, err := svc.Submit(f.ctx, f.user.ID, FeedbackInput{AnalysisID: &nilAnalysis, SpecID: &spec.ID, WasHelpful: &yes, Outcome: types.OutcomeStillTesting})
	if err != nil {
		t.Fatalf("nil analysis_id with a spec_id should be spec feedback: %v", err)
	}
	if first.AnalysisID != nil || first.SpecID == nil || *first.SpecID != spec.ID {
		t.Fatalf("stored as wrong kind: %+v", first)
	}

	second, err := svc.Submit(f.ctx, f.user.ID, FeedbackInput{SpecID: &spec.ID, WasHelpful: &no, Outcome: types.OutcomeResolved})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID || second.Outcome != types.OutcomeResolved {
		t.Fatalf("resubmission should return the stored row: first=%+v second=%+v", first, second)
	}
	var rows int64
	f.db.Model(&types.FeedbackRecord{}).Where("id = ?", second.ID).Count(&rows)
	if rows != 1 {
		t.Fatalf("returned id %s is not a stored row", second.ID)
	}

	missing := uuid.New()
	_, err = svc.Submit(f.ctx, f.user.ID, FeedbackInput{AnalysisID: &nilAnalysis, SpecID: &missing, WasHelpful: &yes, Outcome: types.OutcomeResolved})
	wantAPIError(t, err, http.StatusNotFound, "spec_not_found")
}

func TestInvestigationLifecycle(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	svc := NewInvestigationService(log, repos.NewInvestigationRepo(f.db, log), f.analyses)

	inv, err := svc.Create(f.ctx, f.user.ID, InvestigationInput{Title: "Line 3 delamination"})
	if err != nil || inv.Status != types.InvestigationOpen {
		t.Fatalf("Create: inv=%+v err=%v", inv, err)
	}

	_, err = svc.Transition(f.ctx, f.user.ID, inv.ID, types.InvestigationClosed, nil)
	wantAPIError(t, err, http.StatusConflict, "invalid_transition")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("conflict should wrap ErrInvalidTransition")
	}

	steps := []string{
		types.InvestigationContainment,
		types.InvestigationRootCause,
		types.InvestigationContainment,
		types.InvestigationRootCause,
		types.InvestigationCorrectiveAction,
		types.InvestigationVerification,
		types.InvestigationClosed,
	}
	for _, to := range steps {
		got, err := svc.Transition(f.ctx, f.user.ID, inv.ID, to, nil)
		if err != nil {
			t.Fatalf("-> %s: %v", to, err)
		}
		if got.Status != to {
			t.Fatalf("status=%s want %s", got.Status, to)
		}
	}

	_, err = svc.Transition(f.ctx, f.user.ID, inv.ID, types.InvestigationVerification, nil)
	wantAPIError(t, err, http.StatusConflict, "invalid_transition")

	_, err = svc.Transition(f.ctx, f.user.ID, inv.ID, "shipped", nil)
	wantAPIError(t, err, http.StatusBadRequest, "invalid_request")

	other := testutil.SeedProfile(t, f.ctx, f.db, "other@example.com")
	_, err = svc.Transition(f.ctx, other.ID, inv.ID, types.InvestigationOpen, nil)
	wantAPIError(t, err, http.StatusNotFound, "investigation_not_found")
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(types.InvestigationVerification, types.InvestigationCorrectiveAction) {
		t.Fatalf("verification should fall back to corrective action")
	}
	if CanTransition(types.InvestigationOpen, types.InvestigationRootCause) {
		t.Fatalf("open cannot skip containment")
	}
	if CanTransition(types.InvestigationClosed, types.InvestigationOpen) {
		t.Fatalf("closed is terminal")
	}
}

func TestAlertTransitions(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	alertRepo := repos.NewPatternAlertRepo(f.db, log)
	svc := NewAlertService(log, alertRepo)

	alert := &types.PatternAlert{
		ID:          uuid.New(),
		FailureMode: "adhesive",
		Substrate:   "aluminum",
		Product:     "EP-100",
		RecentCount: 9,
		ZScore:      4.2,
		Severity:    types.SeverityCritical,
		Status:      types.AlertStatusActive,
	}
	if ok, err := alertRepo.CreateIfNoActive(dbctx.Context{Ctx: f.ctx}, alert); err != nil || !ok {
		t.Fatalf("seed alert: ok=%v err=%v", ok, err)
	}

	got, err := svc.Transition(f.ctx, alert.ID, "acknowledged", f.user.ID)
	if err != nil || got.Status != types.AlertStatusAcknowledged || got.AcknowledgedBy == nil || *got.AcknowledgedBy != f.user.ID {
		t.Fatalf("acknowledge: %+v err=%v", got, err)
	}
	_, err = svc.Transition(f.ctx, alert.ID, "acknowledged", f.user.ID)
	wantAPIError(t, err, http.StatusConflict, "invalid_transition")

	got, err = svc.Transition(f.ctx, alert.ID, "resolved", f.user.ID)
	if err != nil || got.Status != types.AlertStatusResolved || got.ResolvedAt == nil {
		t.Fatalf("resolve: %+v err=%v", got, err)
	}
	_, err = svc.Transition(f.ctx, alert.ID, "active", f.user.ID)
	wantAPIError(t, err, http.StatusBadRequest, "invalid_request")
	_, err = svc.Transition(f.ctx, uuid.New(), "resolved", f.user.ID)
	wantAPIError(t, err, http.StatusNotFound, "alert_not_found")

	list, err := svc.List(f.ctx, "resolved", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %d err=%v", len(list), err)
	}
	if _, err := svc.List(f.ctx, "bogus", 10); err == nil {
		t.Fatalf("expected bad status error")
	}
}

type fakeMailer struct {
	sent []resend.SendEmailRequest
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, req resend.SendEmailRequest) (*resend.SendEmailResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, req)
	return &resend.SendEmailResult{ID: "em_1"}, nil
}

func TestEmailAlertNotifier(t *testing.T) {
	log := testutil.Logger(t)
	if n := NewEmailAlertNotifier(log, &fakeMailer{}, []string{" ", ""}, nil); n != nil {
		t.Fatalf("no recipients should disable the notifier")
	}

	m := &fakeMailer{}
	n := NewEmailAlertNotifier(log, m, []string{"ops@example.com", " qa@example.com "}, nil)
	err := n.NotifyCriticalAlert(context.Background(), &types.PatternAlert{
		ID: uuid.New(), FailureMode: "adhesive", Substrate: "aluminum", Severity: types.SeverityCritical,
		RecentCount: 12, BaselineMean: 1, BaselineStd: 0.5, ZScore: 22, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(m.sent) != 1 || len(m.sent[0].To) != 2 || m.sent[0].To[1] != "qa@example.com" {
		t.Fatalf("unexpected mail: %+v", m.sent)
	}
	if !containsAll(m.sent[0].Text, "Product:      -", "Z-score:      22.00") {
		t.Fatalf("body:\n%s", m.sent[0].Text)
	}

	m.err = errors.New("resend http 500")
	if err := n.NotifyCriticalAlert(context.Background(), &types.PatternAlert{ID: uuid.New()}); err == nil {
		t.Fatalf("expected send error")
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func signToken(t *testing.T, secret string, claims JWTClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuthServiceSetContextFromToken(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	profiles := NewProfileService(log, f.profiles, f.usage)
	auth := NewAuthService(log, "jwt-secret", nil, profiles)

	userID := uuid.New()
	valid := JWTClaims{
		Email: "New.User@Example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{SupabaseAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	ctx, err := auth.SetContextFromToken(f.ctx, signToken(t, "jwt-secret", valid))
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != userID || rd.Plan != types.PlanFree || rd.Email != "new.user@example.com" {
		t.Fatalf("unexpected request data: %+v", rd)
	}
	if p, _ := f.profiles.GetByID(dbctx.Context{Ctx: f.ctx}, userID); p == nil {
		t.Fatalf("profile should be created on first request")
	}

	if _, err := auth.SetContextFromToken(f.ctx, signToken(t, "other-secret", valid)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong secret: %v", err)
	}

	wrongAud := valid
	wrongAud.Audience = jwt.ClaimStrings{"anon"}
	if _, err := auth.SetContextFromToken(f.ctx, signToken(t, "jwt-secret", wrongAud)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong audience: %v", err)
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	if _, err := auth.SetContextFromToken(f.ctx, signToken(t, "jwt-secret", expired)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token: %v", err)
	}

	badSub := valid
	badSub.Subject = "service-role"
	if _, err := auth.SetContextFromToken(f.ctx, signToken(t, "jwt-secret", badSub)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad subject: %v", err)
	}
}

type staticKeys map[string]any

func (k staticKeys) Key(_ context.Context, kid string) (any, error) {
	if key, ok := k[kid]; ok {
		return key, nil
	}
	return nil, errors.New("unknown kid")
}

func TestAuthServiceAsymmetricTokens(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth := NewAuthService(log, "", staticKeys{"k1": &priv.PublicKey}, NewProfileService(log, f.profiles, f.usage))

	claims := JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   f.user.ID.String(),
		Audience:  jwt.ClaimStrings{SupabaseAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	sign := func(kid string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
		tok.Header["kid"] = kid
		s, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	ctx, err := auth.SetContextFromToken(f.ctx, sign("k1"))
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if rd := ctxutil.GetRequestData(ctx); rd == nil || rd.UserID != f.user.ID {
		t.Fatalf("unexpected request data: %+v", rd)
	}
	if _, err := auth.SetContextFromToken(f.ctx, sign("rotated")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown kid: %v", err)
	}
	// HS256 is refused when no shared secret is configured.
	if _, err := auth.SetContextFromToken(f.ctx, signToken(t, "anything", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("hs256 without secret: %v", err)
	}
}

func TestProfileServiceMe(t *testing.T) {
	f := newFixture(t)
	svc := NewProfileService(testutil.Logger(t), f.profiles, f.usage)
	me, err := svc.GetMe(f.ctx, f.user.ID)
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.Profile.ID != f.user.ID || me.Usage.Limits.AnalysesPerMonth != 5 {
		t.Fatalf("unexpected me: %+v", me)
	}
}
