package gifplay

import (
	"image"
	"image/draw"
	"image/gif"
	"time"

	// Still-image decoding for image and video-fallback slots.
	_ "image/jpeg"
	_ "image/png"
)

// defaultDelay substitutes for a zero authored delay, matching the
// common viewer convention for GIFs that omit timing.
const defaultDelay = 100 * time.Millisecond

// coalesce flattens a decoded GIF into full-canvas RGBA frames,
// honoring per-frame disposal so partial frames composite correctly.
// Delays convert from the format's 10ms units.
func coalesce(g *gif.GIF) ([]*image.RGBA, []time.Duration) {
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	bounds := image.Rect(0, 0, w, h)

	canvas := image.NewRGBA(bounds)
	frames := make([]*image.RGBA, 0, len(g.Image))
	delays := make([]time.Duration, 0, len(g.Image))

	for i, src := range g.Image {
		var backup *image.RGBA
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			backup = cloneRGBA(canvas)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
		frames = append(frames, cloneRGBA(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = backup
		}

		d := defaultDelay
		if i < len(g.Delay) && g.Delay[i] > 0 {
			d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		delays = append(delays, d)
	}

	return frames, delays
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
