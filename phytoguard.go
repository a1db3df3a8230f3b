// Package phytoguard is the client core of a plant disease diagnosis tool.
//
// An image goes through three steps: it is letterboxed onto a 640×640
// black canvas and encoded as JPEG, sent to a remote inference service,
// and the service's answer is resolved against a local disease catalog
// into a display-ready diagnosis.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/menta2k/phytoguard"
//		"github.com/menta2k/phytoguard/pkg/catalog"
//		"github.com/menta2k/phytoguard/pkg/inference"
//	)
//
//	func main() {
//		client, err := inference.NewClient(inference.DefaultConfig("http://localhost:8000/predict"))
//		if err != nil {
//			log.Fatal(err)
//		}
//		pipeline := phytoguard.New(client, catalog.Default())
//
//		src, err := os.ReadFile("leaf.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		outcome, err := pipeline.Analyze(context.Background(), src, "leaf.jpg")
//		if err != nil {
//			log.Fatal(err) // the image could not be processed
//		}
//		if outcome.Status == phytoguard.StatusServiceUnavailable {
//			fmt.Println("backend offline, try again later")
//			return
//		}
//		fmt.Printf("%s (%.0f%%): %s\n", outcome.Diagnosis.Name,
//			outcome.Diagnosis.Confidence*100, outcome.Diagnosis.Status)
//	}
//
// The package consists of these components:
//
// 1. Letterbox (pkg/letterbox): decoding, aspect-preserving resize and encoding
// 2. Types (pkg/types): the inference response and its detections
// 3. Client (pkg/client): the Predictor interface every backend implements
// 4. Inference (pkg/inference): multipart upload to the remote model service
// 5. Ollama (pkg/ollama): alternative backend using a local vision model
// 6. llama.cpp (pkg/llamacpp): alternative backend for an OpenAI-compatible llama.cpp server
// 7. Classify (pkg/classify): prompt and reply parsing shared by the vision-model backends
// 8. Catalog (pkg/catalog): the disease dataset and its lookups
// 9. Diagnosis (pkg/diagnosis): matching a response to a catalog entry
// 10. History (pkg/history): the persisted list of past diagnoses
package phytoguard

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/client"
	"github.com/menta2k/phytoguard/pkg/diagnosis"
	"github.com/menta2k/phytoguard/pkg/history"
	"github.com/menta2k/phytoguard/pkg/inference"
	"github.com/menta2k/phytoguard/pkg/letterbox"
	"github.com/menta2k/phytoguard/pkg/types"
)

// Version of the phytoguard library
const Version = "1.0.0"

// Status tells whether an analysis reached the inference service
type Status string

const (
	StatusOK                 Status = "ok"
	StatusServiceUnavailable Status = "service_unavailable"
)

// Outcome is the result of one analysis
type Outcome struct {
	Status    Status              `json:"status"`
	Diagnosis diagnosis.Diagnosis `json:"diagnosis"`
	Response  *types.Response     `json:"response,omitempty"`
	// Source is the caller's original image, kept so the analysis can be retried
	Source []byte `json:"-"`
	// Cause is set when Status is StatusServiceUnavailable
	Cause error `json:"-"`
}

// Pipeline runs normalize, predict and resolve for a single image
type Pipeline struct {
	predictor client.Predictor
	catalog   *catalog.Catalog
	resolver  *diagnosis.Resolver
	history   *history.Store
	log       zerolog.Logger
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithResolver replaces the default diagnosis resolver
func WithResolver(r *diagnosis.Resolver) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithHistory appends the record of every successful analysis to store
func WithHistory(store *history.Store) Option {
	return func(p *Pipeline) { p.history = store }
}

// WithLogger sets the pipeline logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New creates a pipeline around predictor. A nil catalog means the embedded one.
func New(predictor client.Predictor, cat *catalog.Catalog, opts ...Option) *Pipeline {
	if cat == nil {
		cat = catalog.Default()
	}
	p := &Pipeline{
		predictor: predictor,
		catalog:   cat,
		resolver:  diagnosis.New(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the catalog diagnoses are resolved against
func (p *Pipeline) Catalog() *catalog.Catalog {
	return p.catalog
}

// History returns the attached history store, or nil
func (p *Pipeline) History() *history.Store {
	return p.history
}

// Analyze diagnoses an encoded image. Decode and encode failures are
// returned as errors; an unreachable service is reported through
// Outcome.Status with a nil error.
func (p *Pipeline) Analyze(ctx context.Context, src []byte, filename string) (*Outcome, error) {
	resp, err := p.predictor.Predict(ctx, src, filename)
	return p.finish(resp, err, src, diagnosis.EncodeDataURI(src))
}

// AnalyzeImage is Analyze for an already decoded image
func (p *Pipeline) AnalyzeImage(ctx context.Context, img image.Image, filename string) (*Outcome, error) {
	resp, err := p.predictor.PredictImage(ctx, img, filename)
	return p.finish(resp, err, nil, "")
}

func (p *Pipeline) finish(resp *types.Response, err error, src []byte, original string) (*Outcome, error) {
	if err != nil {
		if inference.IsServiceUnavailable(err) {
			p.log.Warn().Err(err).Msg("inference service unavailable")
			return &Outcome{Status: StatusServiceUnavailable, Source: src, Cause: err}, nil
		}
		if errors.Is(err, letterbox.ErrDecode) || errors.Is(err, letterbox.ErrEncode) {
			return nil, err
		}
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	d := p.resolver.Resolve(resp, p.catalog, original)
	p.log.Info().
		Str("name", d.Name).
		Float64("confidence", d.Confidence).
		Str("status", string(d.Status)).
		Bool("matched", d.Matched).
		Msg("diagnosis resolved")

	if p.history != nil {
		p.history.Append(d.Record)
	}
	return &Outcome{Status: StatusOK, Diagnosis: d, Response: resp, Source: src}, nil
}

// Normalize letterboxes src onto a 640×640 black canvas and encodes it as JPEG
func Normalize(src []byte) (*letterbox.Buffer, error) {
	return letterbox.New().Normalize(src, letterbox.DefaultWidth, letterbox.DefaultHeight)
}

// Predict normalizes src and posts it to endpoint with the default settings
func Predict(ctx context.Context, endpoint string, src []byte) (*types.Response, error) {
	c, err := inference.NewClient(inference.DefaultConfig(endpoint))
	if err != nil {
		return nil, err
	}
	return c.Predict(ctx, src, "")
}

// ResolveDiagnosis maps resp onto cat using the default matchers. original is
// shown when the response carries no annotated image.
func ResolveDiagnosis(resp *types.Response, cat *catalog.Catalog, original string) diagnosis.Diagnosis {
	return diagnosis.New().Resolve(resp, cat, original)
}
