package services

import (
	"fmt"
	"strings"
)

const analysisSystemPrompt = `You are a senior materials and adhesives failure analyst.
Given a bonded-joint failure report, identify the most likely root causes,
concrete corrective recommendations, and a prevention plan.
Respond with a single JSON object and nothing else:
{
  "root_causes": [{"category": "<snake_case category>", "description": "...", "confidence": 0.0-1.0}],
  "recommendations": [{"action": "...", "priority": "high|medium|low", "details": "..."}],
  "prevention_plan": "...",
  "confidence_score": 0.0-1.0
}
Use categories such as surface_energy, surface_contamination, surface_prep,
cure_conditions, adhesive_selection, joint_design, environmental_exposure,
thermal_mismatch, moisture, process_control.`

const specSystemPrompt = `You are an adhesive application engineer.
Given two substrates and the bond requirements, recommend an adhesive family,
a representative product, the surface preparation steps and alternatives.
Respond with a single JSON object and nothing else:
{
  "recommended_family": "...",
  "recommended_product": "...",
  "surface_prep": ["..."],
  "alternatives": [{"family": "...", "product": "...", "reason": "..."}],
  "rationale": "...",
  "confidence_score": 0.0-1.0
}`

func buildAnalysisPrompt(in AnalysisInput, knowledgeBlock string) string {
	var b strings.Builder
	b.WriteString("Failure report\n")
	writeField(&b, "Material category", in.MaterialCategory)
	writeField(&b, "Adhesive / material", in.MaterialSubcategory)
	writeField(&b, "Product", in.ProductName)
	writeField(&b, "Substrate A", in.SubstrateA)
	writeField(&b, "Substrate B", in.SubstrateB)
	writeField(&b, "Failure mode", in.FailureMode)
	writeField(&b, "Industry", in.Industry)
	writeField(&b, "Environment", in.Environment)
	writeField(&b, "Description", in.FailureDescription)
	if knowledgeBlock != "" {
		b.WriteString("\n")
		b.WriteString(knowledgeBlock)
		b.WriteString("\nWeigh the confirmed outcomes above against the report; do not copy them blindly.\n")
	}
	return b.String()
}

func buildSpecPrompt(in SpecInput, knowledgeBlock string) string {
	var b strings.Builder
	b.WriteString("Bonding specification request\n")
	writeField(&b, "Substrate A", in.SubstrateA)
	writeField(&b, "Substrate B", in.SubstrateB)
	writeField(&b, "Industry", in.Industry)
	writeField(&b, "Environment", in.Environment)
	if len(in.BondRequirements) > 0 {
		fmt.Fprintf(&b, "Bond requirements: %s\n", string(in.BondRequirements))
	}
	if knowledgeBlock != "" {
		b.WriteString("\n")
		b.WriteString(knowledgeBlock)
		b.WriteString("\nPrefer approaches with confirmed success on these substrates.\n")
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fmt.Fprintf(b, "%s: %s\n", label, v)
	}
}
