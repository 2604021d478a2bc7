package services

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/substratelabs/failurelens-backend/internal/knowledge"
)

// Everything in this file decodes model output, which is untrusted: wrong
// types degrade to zero values and Validate decides whether the result is
// usable.

type Recommendation struct {
	Action   string `json:"action"`
	Priority string `json:"priority,omitempty"`
	Details  string `json:"details,omitempty"`
}

func (r *Recommendation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Recommendation{Action: strings.TrimSpace(s)}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		*r = Recommendation{}
		return nil
	}
	*r = Recommendation{
		Action:   stringField(raw, "action"),
		Priority: stringField(raw, "priority"),
		Details:  stringField(raw, "details"),
	}
	return nil
}

type AnalysisResult struct {
	RootCauses      []knowledge.RootCause `json:"root_causes"`
	Recommendations []Recommendation      `json:"recommendations"`
	PreventionPlan  string                `json:"prevention_plan"`
	Confidence      *float64              `json:"confidence_score"`
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		RootCauses      json.RawMessage `json:"root_causes"`
		Recommendations json.RawMessage `json:"recommendations"`
		PreventionPlan  any             `json:"prevention_plan"`
		Confidence      json.RawMessage `json:"confidence_score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = AnalysisResult{
		RootCauses:      knowledge.DecodeRootCauses(raw.RootCauses),
		Recommendations: decodeRecommendations(raw.Recommendations),
		PreventionPlan:  flattenText(raw.PreventionPlan),
		Confidence:      knowledge.ParseConfidence(raw.Confidence),
	}
	return nil
}

// Validate drops unusable entries and requires at least one named root cause.
func (r *AnalysisResult) Validate() error {
	causes := r.RootCauses[:0]
	for _, rc := range r.RootCauses {
		rc.Category = strings.TrimSpace(rc.Category)
		if rc.Category == "" {
			continue
		}
		if rc.Confidence != nil {
			c := clamp01(*rc.Confidence)
			rc.Confidence = &c
		}
		causes = append(causes, rc)
	}
	r.RootCauses = causes
	if len(r.RootCauses) == 0 {
		return errors.New("model returned no root causes")
	}
	recs := r.Recommendations[:0]
	for _, rec := range r.Recommendations {
		if rec.Action != "" {
			recs = append(recs, rec)
		}
	}
	r.Recommendations = recs
	return nil
}

// AIConfidence is the model's overall confidence, falling back to its most
// confident root cause and then to 0.5.
func (r *AnalysisResult) AIConfidence() float64 {
	if r.Confidence != nil {
		return clamp01(*r.Confidence)
	}
	best := -1.0
	for _, rc := range r.RootCauses {
		if rc.Confidence != nil && *rc.Confidence > best {
			best = *rc.Confidence
		}
	}
	if best >= 0 {
		return clamp01(best)
	}
	return 0.5
}

type Alternative struct {
	Family  string `json:"family"`
	Product string `json:"product,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type SpecResult struct {
	RecommendedFamily  string        `json:"recommended_family"`
	RecommendedProduct string        `json:"recommended_product"`
	SurfacePrep        []string      `json:"surface_prep"`
	Alternatives       []Alternative `json:"alternatives"`
	Rationale          string        `json:"rationale"`
	Confidence         *float64      `json:"confidence_score"`
}

func (r *SpecResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		RecommendedFamily  any             `json:"recommended_family"`
		RecommendedProduct any             `json:"recommended_product"`
		SurfacePrep        any             `json:"surface_prep"`
		Alternatives       json.RawMessage `json:"alternatives"`
		Rationale          any             `json:"rationale"`
		Confidence         json.RawMessage `json:"confidence_score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = SpecResult{
		RecommendedFamily:  flattenText(raw.RecommendedFamily),
		RecommendedProduct: flattenText(raw.RecommendedProduct),
		SurfacePrep:        stringList(raw.SurfacePrep),
		Rationale:          flattenText(raw.Rationale),
		Confidence:         knowledge.ParseConfidence(raw.Confidence),
	}
	var alts []map[string]any
	if err := json.Unmarshal(raw.Alternatives, &alts); err == nil {
		for _, a := range alts {
			alt := Alternative{
				Family:  stringField(a, "family"),
				Product: stringField(a, "product"),
				Reason:  stringField(a, "reason"),
			}
			if alt.Family != "" || alt.Product != "" {
				r.Alternatives = append(r.Alternatives, alt)
			}
		}
	}
	return nil
}

func (r *SpecResult) Validate() error {
	if strings.TrimSpace(r.RecommendedFamily) == "" {
		return errors.New("model returned no adhesive family")
	}
	return nil
}

func (r *SpecResult) AIConfidence() float64 {
	if r.Confidence == nil {
		return 0.5
	}
	return clamp01(*r.Confidence)
}

func decodeRecommendations(data json.RawMessage) []Recommendation {
	var out []Recommendation
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// flattenText accepts a string or a list of strings.
func flattenText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		return strings.Join(stringList(t), "\n")
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
