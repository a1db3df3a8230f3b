package letterbox

import (
	"bytes"
	"errors"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Decode reads an image from data, applying EXIF orientation when present.
// Registered decoders are tried first, then the cgo WebP decoder.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Cause: errors.New("empty input")}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}

	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}

	return nil, &DecodeError{Cause: err}
}

// Info holds basic facts about a decoded source image
type Info struct {
	Width       int
	Height      int
	AspectRatio float64
}

// GetInfo returns the dimensions of img
func GetInfo(img image.Image) Info {
	b := img.Bounds()
	info := Info{Width: b.Dx(), Height: b.Dy()}
	if info.Height > 0 {
		info.AspectRatio = float64(info.Width) / float64(info.Height)
	}
	return info
}
