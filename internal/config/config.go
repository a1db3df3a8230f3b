package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/menta2k/phytoguard/pkg/inference"
	"github.com/menta2k/phytoguard/pkg/letterbox"
)

// EnvPrefix prefixes environment overrides, e.g. PHYTOGUARD_INFERENCE_ENDPOINT
const EnvPrefix = "PHYTOGUARD"

// Backends accepted by Inference.Backend
const (
	BackendHTTP     = "http"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Normalizer NormalizerConfig `json:"normalizer" mapstructure:"normalizer"`
	Inference  InferenceConfig  `json:"inference" mapstructure:"inference"`
	Ollama     OllamaConfig     `json:"ollama" mapstructure:"ollama"`
	LlamaCpp   LlamaCppConfig   `json:"llamacpp" mapstructure:"llamacpp"`
	Catalog    CatalogConfig    `json:"catalog" mapstructure:"catalog"`
	History    HistoryConfig    `json:"history" mapstructure:"history"`
	Log        LogConfig        `json:"log" mapstructure:"log"`
}

// NormalizerConfig holds configuration for letterboxing
type NormalizerConfig struct {
	Width   int    `json:"width" mapstructure:"width"`
	Height  int    `json:"height" mapstructure:"height"`
	Quality int    `json:"quality" mapstructure:"quality"`
	Format  string `json:"format" mapstructure:"format"`
	Fill    string `json:"fill" mapstructure:"fill"`
}

// InferenceConfig holds configuration for the remote model service
type InferenceConfig struct {
	Backend   string        `json:"backend" mapstructure:"backend"`
	Endpoint  string        `json:"endpoint" mapstructure:"endpoint"`
	FileField string        `json:"file_field" mapstructure:"file_field"`
	CodeField string        `json:"code_field" mapstructure:"code_field"`
	SendCode  bool          `json:"send_code" mapstructure:"send_code"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// OllamaConfig holds configuration for the Ollama backend
type OllamaConfig struct {
	URL   string `json:"url" mapstructure:"url"`
	Model string `json:"model" mapstructure:"model"`
}

// LlamaCppConfig holds configuration for the llama.cpp backend
type LlamaCppConfig struct {
	URL   string `json:"url" mapstructure:"url"`
	Model string `json:"model" mapstructure:"model"`
}

// CatalogConfig points at a disease catalog; empty means the embedded one
type CatalogConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// HistoryConfig points at the diagnosis history file; empty disables it
type HistoryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Normalizer: NormalizerConfig{
			Width:   letterbox.DefaultWidth,
			Height:  letterbox.DefaultHeight,
			Quality: letterbox.DefaultQuality,
			Format:  string(letterbox.FormatJPEG),
			Fill:    "#000000",
		},
		Inference: InferenceConfig{
			Backend:   BackendHTTP,
			Endpoint:  "http://localhost:8000/predict",
			FileField: "image",
			CodeField: "code",
			SendCode:  true,
			Timeout:   inference.DefaultTimeout,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llava:13b",
		},
		LlamaCpp: LlamaCppConfig{
			URL: "http://localhost:8080",
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load reads the optional config file at filename over the defaults and
// applies PHYTOGUARD_* environment overrides. An empty filename skips the file.
func Load(filename string) (*Config, error) {
	v := newViper()
	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a JSON or YAML file
func LoadFromFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(filename)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can see it during Unmarshal
	d := Default()
	v.SetDefault("normalizer.width", d.Normalizer.Width)
	v.SetDefault("normalizer.height", d.Normalizer.Height)
	v.SetDefault("normalizer.quality", d.Normalizer.Quality)
	v.SetDefault("normalizer.format", d.Normalizer.Format)
	v.SetDefault("normalizer.fill", d.Normalizer.Fill)
	v.SetDefault("inference.backend", d.Inference.Backend)
	v.SetDefault("inference.endpoint", d.Inference.Endpoint)
	v.SetDefault("inference.file_field", d.Inference.FileField)
	v.SetDefault("inference.code_field", d.Inference.CodeField)
	v.SetDefault("inference.send_code", d.Inference.SendCode)
	v.SetDefault("inference.timeout", d.Inference.Timeout)
	v.SetDefault("ollama.url", d.Ollama.URL)
	v.SetDefault("ollama.model", d.Ollama.Model)
	v.SetDefault("llamacpp.url", d.LlamaCpp.URL)
	v.SetDefault("llamacpp.model", d.LlamaCpp.Model)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("log.level", d.Log.Level)
	return v
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := struct {
		*Config
		Inference struct {
			InferenceConfig
			Timeout string `json:"timeout"`
		} `json:"inference"`
	}{Config: c}
	out.Inference.InferenceConfig = c.Inference
	out.Inference.Timeout = c.Inference.Timeout.String()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Normalizer.Width < 1 || c.Normalizer.Height < 1 {
		return fmt.Errorf("normalizer.width and normalizer.height must be positive")
	}

	if c.Normalizer.Quality < 1 || c.Normalizer.Quality > 100 {
		return fmt.Errorf("normalizer.quality must be between 1 and 100")
	}

	if _, err := letterbox.ParseFormat(c.Normalizer.Format); err != nil {
		return fmt.Errorf("normalizer.format: %w", err)
	}

	if _, err := ParseHexColor(c.Normalizer.Fill); err != nil {
		return fmt.Errorf("normalizer.fill: %w", err)
	}

	switch c.Inference.Backend {
	case BackendHTTP:
		if c.Inference.Endpoint == "" {
			return fmt.Errorf("inference.endpoint cannot be empty")
		}
		if c.Inference.FileField == "" {
			return fmt.Errorf("inference.file_field cannot be empty")
		}
	case BackendOllama:
		if c.Ollama.URL == "" {
			return fmt.Errorf("ollama.url cannot be empty")
		}
	case BackendLlamaCpp:
		if c.LlamaCpp.URL == "" {
			return fmt.Errorf("llamacpp.url cannot be empty")
		}
	default:
		return fmt.Errorf("inference.backend must be one of %q, %q, %q", BackendHTTP, BackendOllama, BackendLlamaCpp)
	}

	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("inference.timeout must be positive")
	}

	return nil
}

// LetterboxConfig converts the normalizer section for letterbox.NewWithConfig
func (c *Config) LetterboxConfig() (letterbox.Config, error) {
	format, err := letterbox.ParseFormat(c.Normalizer.Format)
	if err != nil {
		return letterbox.Config{}, err
	}
	fill, err := ParseHexColor(c.Normalizer.Fill)
	if err != nil {
		return letterbox.Config{}, err
	}
	return letterbox.Config{
		Format:  format,
		Quality: c.Normalizer.Quality,
		Fill:    fill,
	}, nil
}

// InferenceClientConfig converts the inference section for inference.NewClient
func (c *Config) InferenceClientConfig() inference.Config {
	cfg := inference.DefaultConfig(c.Inference.Endpoint)
	cfg.FileField = c.Inference.FileField
	cfg.CodeField = c.Inference.CodeField
	cfg.SendCode = c.Inference.SendCode
	cfg.Timeout = c.Inference.Timeout
	cfg.TargetWidth = c.Normalizer.Width
	cfg.TargetHeight = c.Normalizer.Height
	return cfg
}

// ParseHexColor parses #rgb or #rrggbb into an opaque color
func ParseHexColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "phytoguard", "config.json")
}
