package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/menta2k/phytoguard"
	"github.com/menta2k/phytoguard/internal/config"
	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/diagnosis"
	"github.com/menta2k/phytoguard/pkg/inference"
	"github.com/menta2k/phytoguard/pkg/letterbox"
	"github.com/menta2k/phytoguard/pkg/llamacpp"
	"github.com/menta2k/phytoguard/pkg/ollama"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"leaf.jpg", true},
		{"photos/Leaf.JPEG", true},
		{"leaf.webp", true},
		{"https://example.com/leaf", true},
		{"http://example.com/leaf.txt", true},
		{"notes.txt", false},
		{"leaf", false},
		{"archive.tar.gz", false},
	}
	for _, tt := range tests {
		err := validateInput(tt.in)
		if (err == nil) != tt.want {
			t.Errorf("validateInput(%q) = %v, want ok=%v", tt.in, err, tt.want)
		}
	}
}

func TestEncodeOutcome(t *testing.T) {
	out := &phytoguard.Outcome{
		Status:    phytoguard.StatusOK,
		Diagnosis: diagnosis.Diagnosis{Name: "Manzano sano", Confidence: 0.9},
		Source:    []byte("raw image bytes"),
		Cause:     errors.New("not serialised"),
	}
	js, err := encodeOutcome(out)
	if err != nil {
		t.Fatalf("encodeOutcome failed: %v", err)
	}
	if !json.Valid(js) {
		t.Fatalf("invalid JSON: %s", js)
	}
	s := string(js)
	if !strings.Contains(s, `"status": "ok"`) || !strings.Contains(s, "Manzano sano") {
		t.Errorf("missing fields in %s", s)
	}
	if strings.Contains(s, "raw image bytes") || strings.Contains(s, "not serialised") {
		t.Errorf("source and cause must not be printed: %s", s)
	}
}

func TestNewPredictorBackends(t *testing.T) {
	tests := []struct {
		backend string
		check   func(any) bool
	}{
		{config.BackendHTTP, func(p any) bool { _, ok := p.(*inference.Client); return ok }},
		{config.BackendOllama, func(p any) bool { _, ok := p.(*ollama.Client); return ok }},
		{config.BackendLlamaCpp, func(p any) bool { _, ok := p.(*llamacpp.Client); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Inference.Backend = tt.backend
			p, err := newPredictor(cfg, catalog.Default(), letterbox.New(), zerolog.Nop())
			if err != nil {
				t.Fatalf("newPredictor failed: %v", err)
			}
			if !tt.check(p) {
				t.Errorf("unexpected predictor type %T", p)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, "http://10.0.0.2:9000", config.BackendOllama, "llava:7b", "", "h.json", "DEBUG", 320)

	if cfg.Inference.Endpoint != "http://10.0.0.2:9000" || cfg.Ollama.URL != "http://10.0.0.2:9000" {
		t.Errorf("endpoint not applied: %+v", cfg.Inference)
	}
	if cfg.Ollama.Model != "llava:7b" || cfg.LlamaCpp.Model != "llava:7b" {
		t.Error("model not applied")
	}
	if cfg.Normalizer.Width != 320 || cfg.Normalizer.Height != 320 {
		t.Errorf("size not applied: %dx%d", cfg.Normalizer.Width, cfg.Normalizer.Height)
	}
	if cfg.Catalog.Path != "" || cfg.History.Path != "h.json" || cfg.Log.Level != "DEBUG" {
		t.Error("path flags not applied")
	}
}
