package billing

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FeatureFailureAnalysis   = "failure_analysis"
	FeatureSpecEngine        = "spec_engine"
	FeatureKnowledgeInsights = "knowledge_insights"
	FeatureInvestigations    = "investigations"
	FeaturePatternAlerts     = "pattern_alerts"

	KindAnalysis = "analysis"
	KindSpec     = "spec"

	Unlimited = -1
)

var ErrQuotaExceeded = errors.New("monthly quota exceeded")

//go:embed plans.yaml
var defaultPlansYAML []byte

type PlanLimits struct {
	AnalysesPerMonth int      `yaml:"analyses_per_month" json:"analyses_per_month"`
	SpecsPerMonth    int      `yaml:"specs_per_month" json:"specs_per_month"`
	Features         []string `yaml:"features" json:"features"`
}

type planFile struct {
	Plans map[string]PlanLimits `yaml:"plans"`
}

// Gate answers feature and quota questions for a plan.
type Gate struct {
	plans map[string]PlanLimits
}

func DefaultGate() (*Gate, error) {
	return ParseGate(defaultPlansYAML)
}

func ParseGate(raw []byte) (*Gate, error) {
	var pf planFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	if len(pf.Plans) == 0 {
		return nil, fmt.Errorf("parse plans: no plans defined")
	}
	plans := make(map[string]PlanLimits, len(pf.Plans))
	for name, p := range pf.Plans {
		plans[strings.ToLower(strings.TrimSpace(name))] = p
	}
	if _, ok := plans["free"]; !ok {
		return nil, fmt.Errorf("parse plans: free plan required")
	}
	return &Gate{plans: plans}, nil
}

// Limits returns the plan's limits; unknown plans get the free tier.
func (g *Gate) Limits(plan string) PlanLimits {
	if p, ok := g.plans[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return p
	}
	return g.plans["free"]
}

func (g *Gate) Allows(plan, feature string) bool {
	for _, f := range g.Limits(plan).Features {
		if f == feature {
			return true
		}
	}
	return false
}

func (g *Gate) CheckQuota(plan, kind string, used int) error {
	limits := g.Limits(plan)
	limit := limits.AnalysesPerMonth
	if kind == KindSpec {
		limit = limits.SpecsPerMonth
	}
	if limit == Unlimited {
		return nil
	}
	if used >= limit {
		return fmt.Errorf("%s: %d of %d used: %w", kind, used, limit, ErrQuotaExceeded)
	}
	return nil
}
