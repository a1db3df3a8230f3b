package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/diseases.yaml
var defaultData []byte

// document is the on-disk layout: either a bare list or {diseases: [...]}
type document struct {
	Diseases []Entry `json:"diseases" yaml:"diseases"`
}

// Default returns the embedded catalog shipped with the module
func Default() *Catalog {
	c, err := ParseYAML(defaultData)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// LoadFile loads a catalog from a .yaml, .yml or .json file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", filepath.Ext(path))
	}
}

// ParseYAML parses a YAML catalog
func ParseYAML(data []byte) (*Catalog, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		var doc document
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		entries = doc.Diseases
	}
	return New(entries)
}

// ParseJSON parses a JSON catalog
func ParseJSON(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	var entries []Entry

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
	} else {
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		entries = doc.Diseases
	}
	return New(entries)
}
