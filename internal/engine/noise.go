package engine

import "math"

// valueNoise is a smooth 2D value noise in [-1, 1]. The lattice hash
// is a fract(sin) construction, which is cheap and stable enough for
// visual texture.
func valueNoise(x, y float64) float64 {
	ix := math.Floor(x)
	iy := math.Floor(y)
	fx := x - ix
	fy := y - iy

	v00 := latticeHash(ix, iy)
	v10 := latticeHash(ix+1, iy)
	v01 := latticeHash(ix, iy+1)
	v11 := latticeHash(ix+1, iy+1)

	ux := fade(fx)
	uy := fade(fy)

	top := lerp(v00, v10, ux)
	bottom := lerp(v01, v11, ux)
	return 2*lerp(top, bottom, uy) - 1
}

func latticeHash(x, y float64) float64 {
	s := math.Sin(x*127.1+y*311.7) * 43758.5453123
	return s - math.Floor(s)
}

func fade(t float64) float64 {
	return t * t * (3 - 2*t)
}
