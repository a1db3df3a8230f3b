package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/classify"
	"github.com/menta2k/phytoguard/pkg/inference"
	"github.com/menta2k/phytoguard/pkg/letterbox"
	"github.com/menta2k/phytoguard/pkg/types"
)

// DefaultModel is the vision model used when none is configured
const DefaultModel = "llava:13b"

// defaultTimeout applies when the caller's context has no deadline
const defaultTimeout = 300 * time.Second

// Client classifies plant images with an Ollama vision model
type Client struct {
	client     *api.Client
	baseURL    *url.URL
	httpClient *http.Client
	model      string
	classes    []catalog.Entry
	normalizer *letterbox.Normalizer
	width      int
	height     int
	log        zerolog.Logger
}

// Option customises a Client
type Option func(*Client)

// WithModel selects the vision model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithNormalizer replaces the letterbox normalizer
func WithNormalizer(n *letterbox.Normalizer, width, height int) Option {
	return func(c *Client) {
		c.normalizer = n
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithLogger sets the logger used for request events
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPClient replaces the HTTP client used to reach Ollama
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new Ollama client. cat provides the class list the
// model is asked to choose from.
func NewClient(ollamaURL string, cat *catalog.Catalog, opts ...Option) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}
	if cat.Len() == 0 {
		return nil, fmt.Errorf("catalog is empty, nothing to classify against")
	}

	// Keep only scheme and host; paths like /api/chat are added by the SDK
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		model:      DefaultModel,
		classes:    cat.Entries(),
		normalizer: letterbox.New(),
		width:      letterbox.DefaultWidth,
		height:     letterbox.DefaultHeight,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = api.NewClient(c.baseURL, c.httpClient)
	return c, nil
}

// Predict letterboxes src and asks the model for the matching class
func (c *Client) Predict(ctx context.Context, src []byte, filename string) (*types.Response, error) {
	buf, err := c.normalizer.Normalize(src, c.width, c.height)
	if err != nil {
		return nil, err
	}
	return c.classify(ctx, buf)
}

// PredictImage is Predict for an already decoded image
func (c *Client) PredictImage(ctx context.Context, img image.Image, filename string) (*types.Response, error) {
	buf, err := c.normalizer.NormalizeImage(img, c.width, c.height)
	if err != nil {
		return nil, err
	}
	return c.classify(ctx, buf)
}

func (c *Client) classify(ctx context.Context, buf *letterbox.Buffer) (*types.Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	code := uuid.NewString()
	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: classify.Prompt(c.classes),
				Images:  []api.ImageData{api.ImageData(buf.Data)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0},
	}

	start := time.Now()
	c.log.Debug().Str("model", c.model).Str("code", code).Int("bytes", len(buf.Data)).Msg("sending ollama classification request")

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, c.unavailable(code, "ollama chat error", err)
	}
	if strings.TrimSpace(responseContent) == "" {
		return nil, c.unavailable(code, "empty response from ollama", errors.New("no content"))
	}

	result, err := classify.ParseReply(responseContent)
	if err != nil {
		return nil, c.unavailable(code, "unparsable model reply", err)
	}
	result.Code = code

	c.log.Debug().Str("code", code).Dur("latency", time.Since(start)).Int("detections", len(result.Detections)).Msg("ollama classification received")
	return result, nil
}

func (c *Client) unavailable(code, msg string, cause error) error {
	status := 0
	var se api.StatusError
	if errors.As(cause, &se) {
		status = se.StatusCode
	}
	c.log.Warn().Str("code", code).Int("status", status).Err(cause).Msg(msg)
	return &inference.UnavailableError{StatusCode: status, Message: msg, Cause: cause}
}
