package knowledge

import (
	"strings"
	"unicode"
)

// substrateAliases maps shop-floor shorthand to canonical names. No value may
// appear as a key, so normalizing twice is a no-op.
var substrateAliases = map[string]string{
	"al":           "aluminum",
	"alu":          "aluminum",
	"alum":         "aluminum",
	"aluminium":    "aluminum",
	"ss":           "stainless steel",
	"stainless":    "stainless steel",
	"ms":           "mild steel",
	"cs":           "carbon steel",
	"galv":         "galvanized steel",
	"cu":           "copper",
	"ti":           "titanium",
	"mg":           "magnesium",
	"zn":           "zinc",
	"pc":           "polycarbonate",
	"pp":           "polypropylene",
	"pe":           "polyethylene",
	"hdpe":         "high density polyethylene",
	"ldpe":         "low density polyethylene",
	"abs":          "acrylonitrile butadiene styrene",
	"pvc":          "polyvinyl chloride",
	"pet":          "polyethylene terephthalate",
	"pmma":         "acrylic",
	"pa":           "nylon",
	"pa6":          "nylon",
	"pa66":         "nylon",
	"pom":          "acetal",
	"teflon":       "ptfe",
	"pu":           "polyurethane",
	"pur":          "polyurethane",
	"tpu":          "thermoplastic polyurethane",
	"tpe":          "thermoplastic elastomer",
	"cfrp":         "carbon fiber",
	"carbon fibre": "carbon fiber",
	"gfrp":         "glass fiber",
	"glass fibre":  "glass fiber",
	"frp":          "fiberglass",
	"fr-4":         "fr4",
}

// NormalizeSubstrate canonicalizes a free-text material name. It returns nil
// for nil, blank, or punctuation-only input.
func NormalizeSubstrate(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := cleanSubstrate(*raw)
	if s == "" {
		return nil
	}
	if canon, ok := substrateAliases[s]; ok {
		s = canon
	}
	return &s
}

// Normalize is NormalizeSubstrate for plain strings; "" stands in for nil.
func Normalize(raw string) string {
	if out := NormalizeSubstrate(&raw); out != nil {
		return *out
	}
	return ""
}

func cleanSubstrate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		switch {
		case r == '_':
			b.WriteRune(' ')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SortedPair orders a substrate pair so (a, b) and (b, a) share one key.
func SortedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
