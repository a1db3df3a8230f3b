package letterbox

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Default model input shape
const (
	DefaultWidth   = 640
	DefaultHeight  = 640
	DefaultQuality = 95
)

// Format is the raster format of an encoded buffer
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat maps a user supplied name (jpg, jpeg, png, webp) to a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", name)
	}
}

// MIMEType returns the content type used when uploading the buffer
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Extension returns the file extension without the dot
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return "jpg"
	}
}

var (
	// ErrDecode matches every *DecodeError
	ErrDecode = errors.New("letterbox: decode failed")
	// ErrEncode matches every *EncodeError
	ErrEncode = errors.New("letterbox: encode failed")
	// ErrInvalidTarget is returned for non-positive target dimensions
	ErrInvalidTarget = errors.New("letterbox: target dimensions must be positive")
)

// DecodeError reports source data that could not be read as an image
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// EncodeError reports a letterboxed canvas that could not be encoded
type EncodeError struct {
	Format Format
	Cause  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s image: %v", e.Format, e.Cause)
}

func (e *EncodeError) Unwrap() error { return e.Cause }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// Config holds normalizer settings
type Config struct {
	Format   Format
	Quality  int
	Lossless bool
	Fill     color.Color
	Filter   imaging.ResampleFilter
}

// Geometry describes where the scaled source lands on the target canvas
type Geometry struct {
	SourceWidth  int
	SourceHeight int
	TargetWidth  int
	TargetHeight int
	Scale        float64
	ScaledWidth  int
	ScaledHeight int
	OffsetX      int
	OffsetY      int
}

// Buffer is an encoded letterboxed image
type Buffer struct {
	Data     []byte
	Format   Format
	Width    int
	Height   int
	Geometry Geometry
}

// MIMEType is the content type of Data
func (b *Buffer) MIMEType() string {
	return b.Format.MIMEType()
}

// Normalizer turns arbitrary images into fixed size letterboxed buffers
type Normalizer struct {
	config Config
}

// New creates a Normalizer producing JPEG at quality 95 on a black fill
func New() *Normalizer {
	return &Normalizer{
		config: Config{
			Format:  FormatJPEG,
			Quality: DefaultQuality,
			Fill:    color.Black,
			Filter:  imaging.Lanczos,
		},
	}
}

// NewWithConfig creates a Normalizer with custom configuration. Zero
// fields fall back to the defaults used by New.
func NewWithConfig(config Config) *Normalizer {
	def := New().config
	if config.Format == "" {
		config.Format = def.Format
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = def.Quality
	}
	if config.Fill == nil {
		config.Fill = def.Fill
	}
	if config.Filter.Support == 0 && config.Filter.Kernel == nil {
		config.Filter = def.Filter
	}
	return &Normalizer{config: config}
}

// Config returns the effective configuration
func (n *Normalizer) Config() Config {
	return n.config
}

// Normalize decodes src and returns a targetW x targetH letterboxed buffer
func (n *Normalizer) Normalize(src []byte, targetW, targetH int) (*Buffer, error) {
	return n.NormalizeReader(bytes.NewReader(src), targetW, targetH)
}

// NormalizeReader is Normalize for an io.Reader source
func (n *Normalizer) NormalizeReader(r io.Reader, targetW, targetH int) (*Buffer, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, ErrInvalidTarget
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return n.NormalizeImage(img, targetW, targetH)
}

// NormalizeImage letterboxes an already decoded image and encodes it
func (n *Normalizer) NormalizeImage(img image.Image, targetW, targetH int) (*Buffer, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, ErrInvalidTarget
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &DecodeError{Cause: errors.New("empty image")}
	}

	canvas, geom := n.Letterbox(img, targetW, targetH)

	data, err := n.encode(canvas)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		Data:     data,
		Format:   n.config.Format,
		Width:    targetW,
		Height:   targetH,
		Geometry: geom,
	}, nil
}

// Letterbox scales img into a targetW x targetH canvas filled with the
// configured color. The scale is always applied, also when it enlarges.
func (n *Normalizer) Letterbox(img image.Image, targetW, targetH int) (*image.NRGBA, Geometry) {
	b := img.Bounds()
	geom := ComputeGeometry(b.Dx(), b.Dy(), targetW, targetH)

	canvas := imaging.New(targetW, targetH, n.config.Fill)
	scaled := imaging.Resize(img, geom.ScaledWidth, geom.ScaledHeight, n.config.Filter)
	canvas = imaging.Paste(canvas, scaled, image.Pt(geom.OffsetX, geom.OffsetY))

	return canvas, geom
}

// ComputeGeometry returns the scale and offsets for letterboxing a
// srcW x srcH image into dstW x dstH.
func ComputeGeometry(srcW, srcH, dstW, dstH int) Geometry {
	longest := srcW
	if srcH > longest {
		longest = srcH
	}
	side := dstW
	if dstH < side {
		side = dstH
	}

	g := Geometry{
		SourceWidth:  srcW,
		SourceHeight: srcH,
		TargetWidth:  dstW,
		TargetHeight: dstH,
	}
	if longest <= 0 {
		return g
	}

	g.Scale = float64(side) / float64(longest)
	g.ScaledWidth = clampInt(int(math.Round(float64(srcW)*g.Scale)), 1, dstW)
	g.ScaledHeight = clampInt(int(math.Round(float64(srcH)*g.Scale)), 1, dstH)
	g.OffsetX = (dstW - g.ScaledWidth) / 2
	g.OffsetY = (dstH - g.ScaledHeight) / 2
	return g
}

func (n *Normalizer) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch n.config.Format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: n.config.Lossless, Quality: float32(n.config.Quality)})
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.config.Quality})
	default:
		err = fmt.Errorf("unsupported output format: %s", n.config.Format)
	}
	if err != nil {
		return nil, &EncodeError{Format: n.config.Format, Cause: err}
	}
	return buf.Bytes(), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
