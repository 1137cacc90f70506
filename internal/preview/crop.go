// Package preview samples the two patch surfaces at a bounded rate,
// crops them to the fixed preview aspect, scales them into small
// rasters and ships them to the control side as one binary message per
// tick. At most one capture is in flight at any time.
package preview

import (
	"image"
	"math"
)

// aspectTolerance is the relative aspect mismatch below which no crop
// happens; tiny rounding differences should not cost edge pixels.
const aspectTolerance = 0.01

// cropRect returns the centered sub-rectangle of b matching the
// targetW:targetH aspect. The longer axis is trimmed symmetrically;
// the shorter axis is always kept whole.
func cropRect(b image.Rectangle, targetW, targetH int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || targetW <= 0 || targetH <= 0 {
		return b
	}

	want := float64(targetW) / float64(targetH)
	got := float64(w) / float64(h)
	if math.Abs(got-want)/want <= aspectTolerance {
		return b
	}

	if got > want {
		cw := int(float64(h)*want + 0.5)
		x0 := b.Min.X + (w-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := int(float64(w)/want + 0.5)
	y0 := b.Min.Y + (h-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}
