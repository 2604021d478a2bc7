package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/substratelabs/failurelens-backend/internal/data/repos"
	types "github.com/substratelabs/failurelens-backend/internal/domain"
	"github.com/substratelabs/failurelens-backend/internal/platform/dbctx"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

const (
	PromptHeader = "=== EMPIRICAL KNOWLEDGE FROM CONFIRMED PRODUCTION OUTCOMES ==="
	PromptFooter = "=== END EMPIRICAL KNOWLEDGE ==="

	DefaultMinEvidence  = 2
	DefaultPatternLimit = 5

	// StrongEvidenceThreshold is the evidence count at which a pattern is
	// allowed to move the AI confidence.
	StrongEvidenceThreshold = 3
	aiWeight                = 0.7
	empiricalWeight         = 0.3

	candidateWidening = 3
)

type PatternQuery struct {
	SubstrateA        string
	SubstrateB        string
	RootCauseCategory string
	AdhesiveFamily    string
	MinEvidence       int
	Limit             int
}

// ScoredPattern is a candidate with its match score.
type ScoredPattern struct {
	*types.KnowledgePattern
	Score int `json:"match_score"`
}

type Service struct {
	log      *logger.Logger
	patterns repos.KnowledgePatternRepo
}

func NewService(baseLog *logger.Logger, patterns repos.KnowledgePatternRepo) *Service {
	return &Service{log: baseLog.With("service", "KnowledgeService"), patterns: patterns}
}

// FindPatterns ranks stored patterns against a substrate pair. Lookup errors
// are logged and yield an empty result.
func (s *Service) FindPatterns(ctx context.Context, q PatternQuery) []ScoredPattern {
	out := []ScoredPattern{}
	na, nb := Normalize(q.SubstrateA), Normalize(q.SubstrateB)
	if na == "" && nb == "" {
		return out
	}
	if q.MinEvidence <= 0 {
		q.MinEvidence = DefaultMinEvidence
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPatternLimit
	}
	first := na
	if first == "" {
		first = nb
	}

	candidates, err := s.patterns.FindCandidates(dbctx.Context{Ctx: ctx}, first, q.MinEvidence, q.Limit*candidateWidening)
	if err != nil {
		s.log.Warn("Pattern lookup failed", "error", err)
		return out
	}

	category := strings.TrimSpace(q.RootCauseCategory)
	family := strings.TrimSpace(q.AdhesiveFamily)
	for _, p := range candidates {
		score := 0
		if na != "" && (p.SubstrateANormalized == na || p.SubstrateBNormalized == na) {
			score++
		}
		if nb != "" && (p.SubstrateANormalized == nb || p.SubstrateBNormalized == nb) {
			score++
		}
		if category != "" && strings.EqualFold(p.RootCauseCategory, category) {
			score++
		}
		if family != "" && strings.EqualFold(p.PrimaryAdhesiveFamily, family) {
			score++
		}
		if score == 0 {
			continue
		}
		out = append(out, ScoredPattern{KnowledgePattern: p, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EvidenceCount > out[j].EvidenceCount
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// FormatForPrompt renders patterns as the block appended to LLM prompts.
func FormatForPrompt(patterns []ScoredPattern) string {
	if len(patterns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(PromptHeader)
	b.WriteString("\nThe following patterns come from confirmed outcomes reported by engineers after applying earlier recommendations.\n")
	for i, p := range patterns {
		fmt.Fprintf(&b, "\n%d. Substrates: %s + %s\n", i+1, p.SubstrateANormalized, p.SubstrateBNormalized)
		fmt.Fprintf(&b, "   Root cause category: %s\n", p.RootCauseCategory)
		fmt.Fprintf(&b, "   Evidence: %d confirmed cases\n", p.EvidenceCount)
		if p.SuccessRate != nil {
			fmt.Fprintf(&b, "   Success rate: %.0f%%\n", *p.SuccessRate*100)
		}
		meta := decodeMetadata(p.KnowledgePattern)
		if fixes := firstN(meta.TopFixes, 3); len(fixes) > 0 {
			fmt.Fprintf(&b, "   Confirmed fixes: %s\n", strings.Join(fixes, "; "))
		}
		if causes := firstN(meta.TopRootCauses, 3); len(causes) > 0 {
			fmt.Fprintf(&b, "   Confirmed root causes: %s\n", strings.Join(causes, "; "))
		}
	}
	b.WriteString("\n")
	b.WriteString(PromptFooter)
	return b.String()
}

// CalibrateConfidence blends AI confidence with the evidence-weighted success
// rate of strong patterns. Sparse evidence leaves the AI score untouched.
func CalibrateConfidence(ai float64, patterns []ScoredPattern) (float64, *int) {
	if len(patterns) == 0 {
		return ai, nil
	}
	total := 0
	strong := make([]ScoredPattern, 0, len(patterns))
	for _, p := range patterns {
		total += p.EvidenceCount
		if p.EvidenceCount >= StrongEvidenceThreshold {
			strong = append(strong, p)
		}
	}
	if len(strong) == 0 {
		if total == 0 {
			return ai, nil
		}
		return ai, &total
	}

	strongTotal := 0
	weighted, weight := 0.0, 0
	for _, p := range strong {
		strongTotal += p.EvidenceCount
		if p.SuccessRate == nil {
			continue
		}
		weighted += *p.SuccessRate * float64(p.EvidenceCount)
		weight += p.EvidenceCount
	}
	if weight == 0 {
		return ai, &strongTotal
	}
	empirical := weighted / float64(weight)
	calibrated := aiWeight*ai + empiricalWeight*empirical
	calibrated = math.Max(0, math.Min(1, calibrated))
	calibrated = math.Round(calibrated*10000) / 10000
	return calibrated, &strongTotal
}

func decodeMetadata(p *types.KnowledgePattern) types.PatternMetadata {
	var meta types.PatternMetadata
	if p == nil || len(p.Metadata) == 0 {
		return meta
	}
	_ = json.Unmarshal(p.Metadata, &meta)
	return meta
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
