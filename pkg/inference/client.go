package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/menta2k/phytoguard/internal/utils"
	"github.com/menta2k/phytoguard/pkg/letterbox"
	"github.com/menta2k/phytoguard/pkg/types"
)

// DefaultTimeout bounds one inference exchange
const DefaultTimeout = 120 * time.Second

// maxResponseSize caps how much of a reply body is read (annotated images included)
const maxResponseSize = 32 << 20

// Config holds inference client settings
type Config struct {
	Endpoint     string
	FileField    string
	CodeField    string
	SendCode     bool
	Timeout      time.Duration
	TargetWidth  int
	TargetHeight int
	UserAgent    string
}

// DefaultConfig returns the settings the reference backend expects
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:     endpoint,
		FileField:    "image",
		CodeField:    "code",
		SendCode:     true,
		Timeout:      DefaultTimeout,
		TargetWidth:  letterbox.DefaultWidth,
		TargetHeight: letterbox.DefaultHeight,
		UserAgent:    "PhytoGuard/1.0",
	}
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNormalizer replaces the letterbox normalizer
func WithNormalizer(n *letterbox.Normalizer) Option {
	return func(c *Client) { c.normalizer = n }
}

// WithLogger sets the logger used for request events
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithCodeGenerator replaces the correlation id generator
func WithCodeGenerator(gen func() string) Option {
	return func(c *Client) { c.newCode = gen }
}

// Client posts letterboxed images to a remote inference endpoint
type Client struct {
	config     Config
	endpoint   *url.URL
	httpClient *http.Client
	normalizer *letterbox.Normalizer
	log        zerolog.Logger
	newCode    func() string
}

// NewClient creates a client for cfg.Endpoint
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("inference endpoint is required")
	}
	parsedURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	def := DefaultConfig(cfg.Endpoint)
	if cfg.FileField == "" {
		cfg.FileField = def.FileField
	}
	if cfg.CodeField == "" {
		cfg.CodeField = def.CodeField
	}
	if cfg.TargetWidth <= 0 {
		cfg.TargetWidth = def.TargetWidth
	}
	if cfg.TargetHeight <= 0 {
		cfg.TargetHeight = def.TargetHeight
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	c := &Client{
		config:     cfg,
		endpoint:   parsedURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		normalizer: letterbox.New(),
		log:        zerolog.Nop(),
		newCode:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the configured endpoint URL
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Predict letterboxes src and posts it to the endpoint. Decode and encode
// failures are returned as-is; any failure reaching or understanding the
// service is returned wrapped in ErrServiceUnavailable.
func (c *Client) Predict(ctx context.Context, src []byte, filename string) (*types.Response, error) {
	buf, err := c.normalizer.Normalize(src, c.config.TargetWidth, c.config.TargetHeight)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, buf, filename)
}

// PredictImage is Predict for an already decoded image, such as a camera frame
func (c *Client) PredictImage(ctx context.Context, img image.Image, filename string) (*types.Response, error) {
	buf, err := c.normalizer.NormalizeImage(img, c.config.TargetWidth, c.config.TargetHeight)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, buf, filename)
}

func (c *Client) send(ctx context.Context, buf *letterbox.Buffer, filename string) (*types.Response, error) {
	code := c.newCode()

	body, contentType, err := c.buildBody(buf, code, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	c.log.Debug().
		Str("endpoint", c.endpoint.String()).
		Str("code", code).
		Int("bytes", len(buf.Data)).
		Msg("sending inference request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.unavailable(code, 0, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.unavailable(code, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.unavailable(code, resp.StatusCode, "unexpected status", fmt.Errorf("HTTP %s", resp.Status))
	}

	result, err := types.ParseResponse(data)
	if err != nil {
		return nil, c.unavailable(code, resp.StatusCode, "malformed response", err)
	}
	result.Code = code

	c.log.Debug().
		Str("code", code).
		Int("status", resp.StatusCode).
		Str("shape", result.Shape.String()).
		Int("detections", len(result.Detections)).
		Dur("latency", time.Since(start)).
		Msg("inference response received")

	return result, nil
}

func (c *Client) buildBody(buf *letterbox.Buffer, code, filename string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.config.FileField, uploadName(code, filename, buf.Format)))
	h.Set("Content-Type", buf.MIMEType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(buf.Data); err != nil {
		return nil, "", err
	}

	if c.config.SendCode {
		if err := w.WriteField(c.config.CodeField, code); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &body, w.FormDataContentType(), nil
}

func (c *Client) unavailable(code string, status int, msg string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		c.log.Debug().Str("code", code).Msg("inference request canceled")
	} else {
		c.log.Warn().Str("code", code).Int("status", status).Err(cause).Msg("inference service unavailable: " + msg)
	}
	return &UnavailableError{StatusCode: status, Message: msg, Cause: cause}
}

// uploadName builds "<code>_<name>" keeping the extension consistent with
// the encoded buffer.
func uploadName(code, filename string, format letterbox.Format) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "capture"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = utils.SanitizeFilename(base)
	if base == "" {
		base = "capture"
	}
	return fmt.Sprintf("%s_%s.%s", code, base, format.Extension())
}
