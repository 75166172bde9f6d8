// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Pixels holds an image converted to model input: values are laid out as [height, width, channels]
// (channels last), row major.
type Pixels struct {
	Height, Width, Channels int
	Values                  []float32
}

// Shape returns [height, width, channels].
func (p Pixels) Shape() [3]int {
	return [3]int{p.Height, p.Width, p.Channels}
}

// Transform converts a decoded image to model input. Implementations must be deterministic and
// safe for concurrent use.
type Transform interface {
	Apply(img image.Image) (Pixels, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(img image.Image) (Pixels, error)

// Apply implements Transform.
func (fn TransformFunc) Apply(img image.Image) (Pixels, error) { return fn(img) }

// ResizeTransform converts an image to a single channel (grayscale) square of Size x Size pixels, with
// intensities normalized to [0, 1].
type ResizeTransform struct {
	Size int
}

var _ Transform = ResizeTransform{}

// Apply implements Transform.
func (t ResizeTransform) Apply(img image.Image) (Pixels, error) {
	if t.Size <= 0 {
		return Pixels{}, errors.Errorf("invalid ResizeTransform size %d", t.Size)
	}
	if img == nil || img.Bounds().Empty() {
		return Pixels{}, errors.New("cannot transform an empty image")
	}
	gray := imaging.Grayscale(img)
	if size := gray.Bounds().Size(); size.X != t.Size || size.Y != t.Size {
		gray = imaging.Resize(gray, t.Size, t.Size, imaging.Lanczos)
	}
	pixels := Pixels{
		Height:   t.Size,
		Width:    t.Size,
		Channels: 1,
		Values:   make([]float32, t.Size*t.Size),
	}
	// Grayscale images have R == G == B, so we only read the red channel.
	bounds := gray.Bounds()
	for y := 0; y < t.Size; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+4*bounds.Dx()]
		for x := 0; x < t.Size; x++ {
			pixels.Values[y*t.Size+x] = float32(row[4*x]) / 255.0
		}
	}
	return pixels, nil
}
