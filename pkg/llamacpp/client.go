package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/classify"
	"github.com/menta2k/phytoguard/pkg/inference"
	"github.com/menta2k/phytoguard/pkg/letterbox"
	"github.com/menta2k/phytoguard/pkg/types"
)

// DefaultURL is the llama.cpp server address used when none is given
const DefaultURL = "http://localhost:8080"

const (
	completionsPath = "/v1/chat/completions"
	defaultTimeout  = 300 * time.Second
	maxReplySize    = 8 << 20
)

// Client classifies plant images through a llama.cpp server's
// OpenAI-compatible chat endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	model      string
	classes    []catalog.Entry
	normalizer *letterbox.Normalizer
	width      int
	height     int
	log        zerolog.Logger
}

// Message is an OpenAI-compatible chat message
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionRequest is an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// ChatCompletionResponse is an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Option customises a Client
type Option func(*Client)

// WithModel sets the model name sent with each request
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
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

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request events
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a llama.cpp client. An empty serverURL means DefaultURL.
func NewClient(serverURL string, cat *catalog.Catalog, opts ...Option) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	if cat.Len() == 0 {
		return nil, fmt.Errorf("catalog is empty, nothing to classify against")
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSuffix(serverURL, "/"), completionsPath),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		classes:    cat.Entries(),
		normalizer: letterbox.New(),
		width:      letterbox.DefaultWidth,
		height:     letterbox.DefaultHeight,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
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
	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: classify.Prompt(c.classes)},
					{Type: "image_url", ImageURL: &ImageURL{
						URL: "data:" + buf.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(buf.Data),
					}},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   512,
		Stream:      false,
	}

	start := time.Now()
	c.log.Debug().Str("code", code).Int("bytes", len(buf.Data)).Msg("sending llama.cpp classification request")

	httpReq, err := c.newRequest(ctx, completionsPath, req)
	if err != nil {
		return nil, err
	}
	body, status, err := c.sendRequest(httpReq)
	if err != nil {
		return nil, c.unavailable(code, status, "llama.cpp request failed", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.unavailable(code, status, "malformed llama.cpp response", err)
	}
	text := replyText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, c.unavailable(code, status, "empty response from llama.cpp server", errors.New("no content"))
	}

	result, err := classify.ParseReply(text)
	if err != nil {
		return nil, c.unavailable(code, status, "unparsable model reply", err)
	}
	result.Code = code

	c.log.Debug().Str("code", code).Dur("latency", time.Since(start)).Msg("llama.cpp classification received")
	return result, nil
}

// newRequest builds the POST for payload. Its errors are local and never
// mean the server is unavailable.
func (c *Client) newRequest(ctx context.Context, endpoint string, payload interface{}) (*http.Request, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) sendRequest(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, nil
}

func (c *Client) unavailable(code string, status int, msg string, cause error) error {
	if status == http.StatusOK {
		status = 0
	}
	c.log.Warn().Str("code", code).Int("status", status).Err(cause).Msg(msg)
	return &inference.UnavailableError{StatusCode: status, Message: msg, Cause: cause}
}

// replyText extracts the first text content, handling string and array formats
func replyText(resp ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		return content
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}
