// Package classify holds the prompt and reply handling shared by the
// vision-model backends.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/types"
)

const promptHeader = `You are a plant disease classifier.

The image shows a leaf or fruit, letterboxed on a black background.
Pick the single class below that best matches it.

CLASSES (id: class_name_en | class_name_es)
`

const promptFooter = `
Return JSON only:
{"id": 0, "class_name_en": "string", "class_name_es": "string", "confidence": 0.0}

HARD RULES
- id, class_name_en and class_name_es must be copied exactly from one CLASSES line.
- confidence is your certainty in [0,1].
- If the image shows no plant, use your best guess with confidence below 0.2.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Prompt renders the classification prompt for the given classes
func Prompt(classes []catalog.Entry) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, e := range classes {
		fmt.Fprintf(&b, "%d: %s | %s\n", e.ID, e.ClassNameEN, e.ClassNameES)
	}
	b.WriteString(promptFooter)
	return b.String()
}

// ParseReply turns a model reply into a single-detection response.
// Confidence is clamped to [0,1].
func ParseReply(raw string) (*types.Response, error) {
	cleaned := SanitizeJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("model returned non-JSON response")
	}

	resp, err := types.ParseResponse([]byte(cleaned))
	if err != nil {
		return nil, err
	}
	for i := range resp.Detections {
		resp.Detections[i].Confidence = clamp(resp.Detections[i].Confidence, 0, 1)
	}
	return resp, nil
}

// SanitizeJSON removes code fences, comments, and trailing commas from a model reply
func SanitizeJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// Inline // comments are left alone; they would also eat URLs in string values.
var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
