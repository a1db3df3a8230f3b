package classify

import (
	"strings"
	"testing"

	"github.com/menta2k/phytoguard/pkg/catalog"
)

func TestPrompt(t *testing.T) {
	p := Prompt(catalog.Default().Entries())
	if !strings.Contains(p, "0: Apple___Apple_scab | Manzano___Roña del manzano") {
		t.Errorf("prompt is missing class line:\n%s", p)
	}
	if !strings.Contains(p, "3: Apple___healthy") {
		t.Error("prompt is missing healthy class")
	}
	if !strings.HasSuffix(p, "no trailing commas.") {
		t.Error("prompt should end with the rules")
	}
}

func TestParseReply(t *testing.T) {
	resp, err := ParseReply("```json\n{\"id\": \"2\", \"class_name_en\": \"Apple___Cedar_apple_rust\", \"confidence\": -0.3,}\n```")
	if err != nil {
		t.Fatalf("ParseReply failed: %v", err)
	}
	det, ok := resp.Primary()
	if !ok {
		t.Fatal("Expected a detection")
	}
	if det.ID == nil || *det.ID != 2 {
		t.Errorf("Expected id 2, got %v", det.ID)
	}
	if det.Confidence != 0 {
		t.Errorf("confidence should be clamped to 0, got %f", det.Confidence)
	}
}

func TestParseReplyErrors(t *testing.T) {
	for _, raw := range []string{"", "I think this is apple scab.", "[1,2]", "{broken"} {
		if _, err := ParseReply(raw); err == nil {
			t.Errorf("ParseReply(%q) should fail", raw)
		}
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Sure! {\"a\": [1,2,],}", `{"a": [1,2]}`},
		{"/* note */ {\"a\":1}", `{"a":1}`},
		{"{\n  // reasoning\n  \"a\":1\n}", "{\n\n  \"a\":1\n}"},
		{"{\"u\":\"http://x\"}", `{"u":"http://x"}`},
	}
	for _, tt := range tests {
		if got := SanitizeJSON(tt.in); got != tt.want {
			t.Errorf("SanitizeJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
