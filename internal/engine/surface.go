// Package engine implements the software render substrate: pixel
// surfaces, composable pixel chains, and per-patch engine instances
// with their own time context, output buffers and media slots.
package engine

import (
	"image"
	"math"
)

// RGBA is a normalized color sample in [0,1] per channel.
type RGBA struct {
	R, G, B, A float64
}

// Sampler provides the current pixel frame of a drawable source.
// A nil frame samples as transparent black.
type Sampler interface {
	Frame() *image.RGBA
}

// Surface is a named render target backed by an RGBA pixel buffer.
// Output surfaces are created lazily and live for the instance lifetime.
type Surface struct {
	name   string
	width  int
	height int
	img    *image.RGBA
}

// NewSurface creates a blank surface of the given size.
func NewSurface(name string, width, height int) *Surface {
	return &Surface{
		name:   name,
		width:  width,
		height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Name returns the surface's buffer name (e.g. "o0").
func (s *Surface) Name() string { return s.name }

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.width }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.height }

// Frame returns the surface's current pixel buffer.
func (s *Surface) Frame() *image.RGBA { return s.img }

// Clear drives the surface to a neutral (transparent black) state.
func (s *Surface) Clear() {
	pix := s.img.Pix
	for i := range pix {
		pix[i] = 0
	}
}

// Snapshot copies the surface pixels into a fresh image. Used by the
// preview capture path so the render loop never shares live buffers.
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// sampleFrame reads a normalized coordinate from an image with wrap
// addressing. A nil image samples as transparent black.
func sampleFrame(img *image.RGBA, x, y float64) RGBA {
	if img == nil {
		return RGBA{}
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if w == 0 || h == 0 {
		return RGBA{}
	}
	x -= math.Floor(x)
	y -= math.Floor(y)
	px := int(x * float64(w))
	py := int(y * float64(h))
	if px >= w {
		px = w - 1
	}
	if py >= h {
		py = h - 1
	}
	i := img.PixOffset(img.Rect.Min.X+px, img.Rect.Min.Y+py)
	return RGBA{
		R: float64(img.Pix[i+0]) / 255,
		G: float64(img.Pix[i+1]) / 255,
		B: float64(img.Pix[i+2]) / 255,
		A: float64(img.Pix[i+3]) / 255,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
