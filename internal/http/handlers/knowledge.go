package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
)

type PatternFinder interface {
	FindPatterns(ctx context.Context, q knowledge.PatternQuery) []knowledge.ScoredPattern
}

type KnowledgeHandler struct {
	patterns PatternFinder
}

func NewKnowledgeHandler(patterns PatternFinder) *KnowledgeHandler {
	return &KnowledgeHandler{patterns: patterns}
}

// GET /api/knowledge/patterns?substrate_a=&substrate_b=&root_cause_category=&adhesive_family=&min_evidence=&limit=
func (h *KnowledgeHandler) ListPatterns(c *gin.Context) {
	q := knowledge.PatternQuery{
		SubstrateA:        c.Query("substrate_a"),
		SubstrateB:        c.Query("substrate_b"),
		RootCauseCategory: c.Query("root_cause_category"),
		AdhesiveFamily:    c.Query("adhesive_family"),
		MinEvidence:       intQuery(c, "min_evidence", 0, 0),
		Limit:             intQuery(c, "limit", 0, 25),
	}
	response.RespondOK(c, gin.H{"patterns": h.patterns.FindPatterns(c.Request.Context(), q)})
}
