package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const DefaultMaxDimension = 1024

type Encoder struct {
	MaxDimension int
	Quality      int
}

func NewEncoder(maxDimension, quality int) *Encoder {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = 50
	}
	return &Encoder{MaxDimension: maxDimension, Quality: quality}
}

// Encode shrinks img to fit MaxDimension, keeping its aspect ratio, and
// returns it as a JPEG frame.
func (e *Encoder) Encode(img image.Image, timestamp int64) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	scaled := e.thumbnail(img)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}

	bounds := scaled.Bounds()
	return &Frame{
		Timestamp: timestamp,
		Data:      buf.Bytes(),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

func (e *Encoder) thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= e.MaxDimension && h <= e.MaxDimension {
		return img
	}

	tw, th := e.MaxDimension, e.MaxDimension
	if w >= h {
		th = max(1, h*e.MaxDimension/w)
	} else {
		tw = max(1, w*e.MaxDimension/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
