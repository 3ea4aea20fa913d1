// Package imaging turns captured images into upload-sized JPEG bytes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	// Registered for Decode.
	_ "image/png"

	"github.com/dmitrijs2005/geosnap/internal/common"
	"golang.org/x/image/draw"
)

const MimeJPEG = "image/jpeg"

// Options bound the compressor. Qualities are in (0, 1].
type Options struct {
	TargetBytes  int
	QualityStart float64
	QualityFloor float64
	QualityStep  float64
	MaxDimension int
}

func DefaultOptions() Options {
	return Options{
		TargetBytes:  1_500_000,
		QualityStart: 0.9,
		QualityFloor: 0.4,
		QualityStep:  0.1,
		MaxDimension: 3000,
	}
}

func (o Options) validate() error {
	switch {
	case o.TargetBytes <= 0:
		return errors.New("target size must be positive")
	case o.QualityStart <= 0 || o.QualityStart > 1:
		return fmt.Errorf("start quality %v out of range", o.QualityStart)
	case o.QualityFloor <= 0 || o.QualityFloor > o.QualityStart:
		return fmt.Errorf("quality floor %v out of range", o.QualityFloor)
	case o.QualityStep <= 0:
		return errors.New("quality step must be positive")
	}
	return nil
}

// Result describes the encoding that was returned.
type Result struct {
	Quality float64
	Width   int
	Height  int
	Resized bool
}

// Encoder writes img at the given JPEG quality (1-100).
type Encoder func(w io.Writer, img image.Image, quality int) error

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

type Compressor struct {
	encode Encoder
	scaler draw.Scaler
}

type Option func(*Compressor)

func WithEncoder(e Encoder) Option {
	return func(c *Compressor) { c.encode = e }
}

func New(opts ...Option) *Compressor {
	c := &Compressor{encode: encodeJPEG, scaler: draw.BiLinear}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compress fits img within o.MaxDimension pixels on its long side and then
// lowers quality step by step until the encoding fits o.TargetBytes or the
// floor is reached. The floor wins over the target: the result at the floor
// is returned even when it is still too large.
//
// Sizes come from the pixel bounds of img; display scale plays no part.
func (c *Compressor) Compress(img image.Image, o Options) ([]byte, Result, error) {
	if err := o.validate(); err != nil {
		return nil, Result{}, fmt.Errorf("%w: %w", common.ErrCompressionFailed, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, Result{}, fmt.Errorf("%w: empty image", common.ErrCompressionFailed)
	}

	src, resized := c.fit(img, o.MaxDimension)
	b := src.Bounds()

	// Integer percent steps so that repeated subtraction cannot drift
	// below the floor.
	q := percent(o.QualityStart)
	floor := percent(o.QualityFloor)
	step := max(percent(o.QualityStep), 1)

	var buf bytes.Buffer
	for {
		buf.Reset()
		if err := c.encode(&buf, src, q); err != nil {
			return nil, Result{}, fmt.Errorf("%w: encode at quality %d: %w", common.ErrCompressionFailed, q, err)
		}
		if buf.Len() == 0 {
			return nil, Result{}, fmt.Errorf("%w: encoder produced no output", common.ErrCompressionFailed)
		}
		if buf.Len() <= o.TargetBytes || q <= floor {
			break
		}
		q = max(q-step, floor)
	}

	return bytes.Clone(buf.Bytes()), Result{
		Quality: float64(q) / 100,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Resized: resized,
	}, nil
}

// FitWithin returns the size of a w×h image scaled so its long side is at
// most maxDim, keeping the aspect ratio. maxDim <= 0 disables the bound.
func FitWithin(w, h, maxDim int) (int, int) {
	long := max(w, h)
	if maxDim <= 0 || long <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(math.Round(float64(h)*float64(maxDim)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(maxDim)/float64(h)))), maxDim
}

func (c *Compressor) fit(img image.Image, maxDim int) (image.Image, bool) {
	b := img.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), maxDim)
	if w == b.Dx() && h == b.Dy() {
		return img, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	c.scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, true
}

func percent(q float64) int {
	return int(math.Round(q * 100))
}

// Decode reads a JPEG or PNG image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}
