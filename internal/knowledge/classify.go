package knowledge

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const UnknownCategory = "unknown"

// RootCause is one AI-proposed cause. Confidence is nil when the model sent
// something non-numeric.
type RootCause struct {
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

func (rc *RootCause) UnmarshalJSON(data []byte) error {
	var raw struct {
		Category    any             `json:"category"`
		Description any             `json:"description"`
		Confidence  json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Non-object entries decode to an empty cause and get skipped.
		*rc = RootCause{}
		return nil
	}
	rc.Category, _ = raw.Category.(string)
	rc.Description, _ = raw.Description.(string)
	rc.Confidence = ParseConfidence(raw.Confidence)
	return nil
}

// ParseConfidence accepts a JSON number or numeric string; anything else is nil.
func ParseConfidence(msg json.RawMessage) *float64 {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &v
		}
	}
	return nil
}

// DecodeRootCauses parses an untrusted JSON array of root causes. Anything
// that is not an array yields nil.
func DecodeRootCauses(data []byte) []RootCause {
	var out []RootCause
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ClassifyRootCause picks the category of the most confident cause. The
// threshold starts at 0 and a confidence must be strictly greater to take
// over, so zero or negative values never displace anything. Ties keep the
// earlier entry. If no confidence clears the threshold, the first named
// category wins.
func ClassifyRootCause(causes []RootCause) string {
	best := ""
	bestConf := 0.0
	for _, rc := range causes {
		cat := strings.TrimSpace(rc.Category)
		if cat == "" {
			continue
		}
		if best == "" {
			best = cat
		}
		if rc.Confidence == nil {
			continue
		}
		if *rc.Confidence > bestConf {
			best = cat
			bestConf = *rc.Confidence
		}
	}
	if best == "" {
		return UnknownCategory
	}
	return best
}
