package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/menta2k/phytoguard"
	"github.com/menta2k/phytoguard/internal/config"
	"github.com/menta2k/phytoguard/internal/logger"
	"github.com/menta2k/phytoguard/internal/utils"
	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/client"
	"github.com/menta2k/phytoguard/pkg/diagnosis"
	"github.com/menta2k/phytoguard/pkg/history"
	"github.com/menta2k/phytoguard/pkg/inference"
	"github.com/menta2k/phytoguard/pkg/letterbox"
	"github.com/menta2k/phytoguard/pkg/llamacpp"
	"github.com/menta2k/phytoguard/pkg/ollama"
)

// Exit codes
const (
	exitImageError  = 1
	exitUnavailable = 2
)

func main() {
	var in, configPath, endpoint, backend, catalogPath, historyPath, outDir, model, logLevel string
	var size int
	var asJSON, listClasses bool

	flag.StringVar(&in, "in", "", "input image path or URL (jpg/png/webp/bmp/tiff)")
	flag.StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+" if present)")
	flag.StringVar(&endpoint, "endpoint", "", "inference endpoint or model server URL (overrides config)")
	flag.StringVar(&backend, "backend", "", "inference backend: http, ollama or llamacpp")
	flag.StringVar(&model, "model", "", "vision model for the ollama and llamacpp backends")
	flag.StringVar(&catalogPath, "catalog", "", "disease catalog file (.yaml or .json), default embedded")
	flag.StringVar(&historyPath, "history", "", "history JSON file to append the diagnosis to")
	flag.IntVar(&size, "size", 0, "letterbox side in px (default 640)")
	flag.StringVar(&outDir, "out", "", "directory for the letterboxed input and display image")
	flag.BoolVar(&asJSON, "json", false, "print the diagnosis as JSON")
	flag.StringVar(&logLevel, "log", "", "log level: DEBUG|INFO|WARN|ERROR")
	flag.BoolVar(&listClasses, "classes", false, "print the catalog's class names and exit")

	flag.Parse()
	if in == "" && !listClasses {
		log.Fatalf("usage: %s -in leaf.jpg|URL [-backend http|ollama|llamacpp] [-endpoint url] [-catalog diseases.yaml] [-history history.json] [-out dir] [-json] [-classes]", filepath.Base(os.Args[0]))
	}
	if in != "" {
		if err := validateInput(in); err != nil {
			log.Fatal(err)
		}
	}

	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	applyFlags(cfg, endpoint, backend, model, catalogPath, historyPath, logLevel, size)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		if cat, err = catalog.LoadFile(cfg.Catalog.Path); err != nil {
			log.Fatal(err)
		}
	}
	if listClasses {
		for _, name := range cat.ClassNames() {
			fmt.Println(name)
		}
		return
	}

	lc, err := cfg.LetterboxConfig()
	if err != nil {
		log.Fatal(err)
	}
	normalizer := letterbox.NewWithConfig(lc)

	predictor, err := newPredictor(cfg, cat, normalizer, zl)
	if err != nil {
		log.Fatal(err)
	}

	opts := []phytoguard.Option{phytoguard.WithLogger(zl)}
	var store *history.Store
	if cfg.History.Path != "" {
		if store, err = history.Load(cfg.History.Path); err != nil {
			log.Fatal(err)
		}
		opts = append(opts, phytoguard.WithHistory(store))
	}
	pipeline := phytoguard.New(predictor, cat, opts...)

	ctx := context.Background()
	src, err := utils.ReadSource(ctx, in)
	if err != nil {
		log.Fatal(err)
	}

	outcome, err := pipeline.Analyze(ctx, src, in)
	if err != nil {
		zl.Error().Err(err).Msg("could not process the image")
		os.Exit(exitImageError)
	}
	if outcome.Status == phytoguard.StatusServiceUnavailable {
		zl.Error().Err(outcome.Cause).Msg("inference service is offline, try again later")
		os.Exit(exitUnavailable)
	}

	if store != nil {
		if err := store.Save(cfg.History.Path); err != nil {
			zl.Warn().Err(err).Msg("history save failed")
		}
	}

	if outDir != "" {
		if err := writeOutputs(outDir, in, src, normalizer, cfg, outcome.Diagnosis); err != nil {
			zl.Warn().Err(err).Msg("writing outputs failed")
		}
	}

	if asJSON {
		js, err := encodeOutcome(outcome)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(js))
		return
	}
	printDiagnosis(outcome.Diagnosis)
}

// validateInput accepts http(s) URLs and local files with an image extension
func validateInput(in string) error {
	if strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://") {
		return nil
	}
	if !utils.IsImageFile(in) {
		return fmt.Errorf("unsupported image type: %s", in)
	}
	return nil
}

func encodeOutcome(outcome *phytoguard.Outcome) ([]byte, error) {
	js, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode outcome: %w", err)
	}
	return js, nil
}

func applyFlags(cfg *config.Config, endpoint, backend, model, catalogPath, historyPath, logLevel string, size int) {
	if endpoint != "" {
		cfg.Inference.Endpoint = endpoint
		cfg.Ollama.URL = endpoint
		cfg.LlamaCpp.URL = endpoint
	}
	if backend != "" {
		cfg.Inference.Backend = backend
	}
	if model != "" {
		cfg.Ollama.Model = model
		cfg.LlamaCpp.Model = model
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if historyPath != "" {
		cfg.History.Path = historyPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if size > 0 {
		cfg.Normalizer.Width, cfg.Normalizer.Height = size, size
	}
}

func newPredictor(cfg *config.Config, cat *catalog.Catalog, n *letterbox.Normalizer, zl zerolog.Logger) (client.Predictor, error) {
	switch cfg.Inference.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Ollama.URL, cat,
			ollama.WithModel(cfg.Ollama.Model),
			ollama.WithNormalizer(n, cfg.Normalizer.Width, cfg.Normalizer.Height),
			ollama.WithLogger(zl),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.LlamaCpp.URL, cat,
			llamacpp.WithModel(cfg.LlamaCpp.Model),
			llamacpp.WithNormalizer(n, cfg.Normalizer.Width, cfg.Normalizer.Height),
			llamacpp.WithLogger(zl),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		c, err := inference.NewClient(cfg.InferenceClientConfig(),
			inference.WithNormalizer(n),
			inference.WithLogger(zl),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create inference client: %w", err)
		}
		zl.Debug().Str("endpoint", c.Endpoint()).Msg("using inference service")
		return c, nil
	}
}

func writeOutputs(outDir, in string, src []byte, n *letterbox.Normalizer, cfg *config.Config, d diagnosis.Diagnosis) error {
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}
	name := in
	if strings.Contains(in, "://") {
		name = "download"
	}

	buf, err := n.Normalize(src, cfg.Normalizer.Width, cfg.Normalizer.Height)
	if err != nil {
		return err
	}
	boxPath := utils.OutputPath(name, outDir, "_letterbox", buf.Format.Extension())
	if err := os.WriteFile(boxPath, buf.Data, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s (%s)", boxPath, utils.FormatFileSize(int64(len(buf.Data))))

	mime, data, err := diagnosis.DecodeDataURI(d.Image)
	if err != nil {
		return nil
	}
	ext := strings.TrimPrefix(mime, "image/")
	if f, err := letterbox.ParseFormat(ext); err == nil {
		ext = f.Extension()
	}
	imgPath := utils.OutputPath(name, outDir, "_diagnosis", ext)
	if err := os.WriteFile(imgPath, data, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s", imgPath)
	return nil
}

func printDiagnosis(d diagnosis.Diagnosis) {
	fmt.Printf("%s (%.1f%%) - %s\n", d.Name, d.Confidence*100, d.Status)
	fmt.Printf("category: %s\n", d.Category)
	fmt.Printf("plants:   %s\n", d.Plants)
	fmt.Printf("%s\n", d.Description)
	for _, r := range d.Recommendations {
		fmt.Printf("  - %s\n", r)
	}
	if len(d.TreatmentPlan) > 0 {
		fmt.Println("treatment plan:")
		for i, step := range d.TreatmentPlan {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	}
	if d.ExpertLink != "" {
		fmt.Printf("more: %s\n", d.ExpertLink)
	}
}
