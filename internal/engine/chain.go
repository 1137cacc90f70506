package engine

import (
	"fmt"
	"math"
)

// Arg is a numeric chain argument. Constants resolve to themselves;
// the sandbox wraps patch-supplied functions so dynamic arguments are
// re-resolved once per frame.
type Arg interface {
	Resolve(t float64) (float64, error)
}

// Const is a fixed numeric argument.
type Const float64

// Resolve returns the constant value.
func (c Const) Resolve(float64) (float64, error) { return float64(c), nil }

type opKind int

const (
	opOsc opKind = iota
	opNoise
	opGradient
	opSolid
	opShape
	opSrc
	opRotate
	opScale
	opTile
	opKaleid
	opScroll
	opBrightness
	opContrast
	opInvert
	opSaturate
	opLuma
	opColorama
	opAdd
	opBlend
	opDiff
	opMult
	opMask
	opModulate
	opModScale
)

type node struct {
	op    opKind
	args  []Arg
	src   Sampler // opSrc only
	other *Chain  // combinators and modulators
}

// Chain is a composable pixel program: a generator followed by a stack
// of transform, combine and modulate operations. Chains are immutable;
// every method returns a new chain sharing the prefix.
type Chain struct {
	nodes []node
}

func newChain(n node) *Chain {
	return &Chain{nodes: []node{n}}
}

func (c *Chain) with(n node) *Chain {
	nodes := make([]node, len(c.nodes)+1)
	copy(nodes, c.nodes)
	nodes[len(c.nodes)] = n
	return &Chain{nodes: nodes}
}

// Osc is a phase-shifted sine wave generator across the x axis.
func Osc(freq, sync, offset Arg) *Chain {
	return newChain(node{op: opOsc, args: []Arg{freq, sync, offset}})
}

// Noise is an animated smooth value-noise generator.
func Noise(scale, speed Arg) *Chain {
	return newChain(node{op: opNoise, args: []Arg{scale, speed}})
}

// Gradient maps x/y position onto red/green with a time-swept blue.
func Gradient(speed Arg) *Chain {
	return newChain(node{op: opGradient, args: []Arg{speed}})
}

// Solid is a constant color generator.
func Solid(r, g, b, a Arg) *Chain {
	return newChain(node{op: opSolid, args: []Arg{r, g, b, a}})
}

// Shape renders a regular polygon with a soft edge.
func Shape(sides, radius, smoothing Arg) *Chain {
	return newChain(node{op: opShape, args: []Arg{sides, radius, smoothing}})
}

// Src samples an external source: an output buffer (feedback) or a
// media slot feeder.
func Src(s Sampler) *Chain {
	return newChain(node{op: opSrc, src: s})
}

// Rotate rotates coordinates around the center, optionally spinning
// over time.
func (c *Chain) Rotate(angle, speed Arg) *Chain {
	return c.with(node{op: opRotate, args: []Arg{angle, speed}})
}

// Scale zooms coordinates around the center.
func (c *Chain) Scale(amount Arg) *Chain {
	return c.with(node{op: opScale, args: []Arg{amount}})
}

// Tile repeats the source x by y times.
func (c *Chain) Tile(x, y Arg) *Chain {
	return c.with(node{op: opTile, args: []Arg{x, y}})
}

// Kaleid folds coordinates into n mirrored pie slices.
func (c *Chain) Kaleid(n Arg) *Chain {
	return c.with(node{op: opKaleid, args: []Arg{n}})
}

// Scroll offsets coordinates by x and y.
func (c *Chain) Scroll(x, y Arg) *Chain {
	return c.with(node{op: opScroll, args: []Arg{x, y}})
}

// Brightness adds a constant to all color channels.
func (c *Chain) Brightness(b Arg) *Chain {
	return c.with(node{op: opBrightness, args: []Arg{b}})
}

// Contrast scales channels around mid-gray.
func (c *Chain) Contrast(amount Arg) *Chain {
	return c.with(node{op: opContrast, args: []Arg{amount}})
}

// Invert mixes toward the inverted color by amount.
func (c *Chain) Invert(amount Arg) *Chain {
	return c.with(node{op: opInvert, args: []Arg{amount}})
}

// Saturate mixes between grayscale and the source color.
func (c *Chain) Saturate(amount Arg) *Chain {
	return c.with(node{op: opSaturate, args: []Arg{amount}})
}

// Luma keys out pixels below a luminance threshold.
func (c *Chain) Luma(threshold, tolerance Arg) *Chain {
	return c.with(node{op: opLuma, args: []Arg{threshold, tolerance}})
}

// Colorama rotates the hue by amount radians.
func (c *Chain) Colorama(amount Arg) *Chain {
	return c.with(node{op: opColorama, args: []Arg{amount}})
}

// Add sums the other chain's color scaled by amount.
func (c *Chain) Add(other *Chain, amount Arg) *Chain {
	return c.with(node{op: opAdd, args: []Arg{amount}, other: other})
}

// Blend linearly interpolates toward the other chain by amount.
func (c *Chain) Blend(other *Chain, amount Arg) *Chain {
	return c.with(node{op: opBlend, args: []Arg{amount}, other: other})
}

// Diff takes the absolute per-channel difference with the other chain.
func (c *Chain) Diff(other *Chain) *Chain {
	return c.with(node{op: opDiff, other: other})
}

// Mult multiplies by the other chain's color, mixed by amount.
func (c *Chain) Mult(other *Chain, amount Arg) *Chain {
	return c.with(node{op: opMult, args: []Arg{amount}, other: other})
}

// Mask multiplies by the other chain's luminance.
func (c *Chain) Mask(other *Chain) *Chain {
	return c.with(node{op: opMask, other: other})
}

// Modulate displaces sampling coordinates by the other chain's
// red/green channels.
func (c *Chain) Modulate(other *Chain, amount Arg) *Chain {
	return c.with(node{op: opModulate, args: []Arg{amount}, other: other})
}

// ModScale zooms sampling coordinates by the other chain's red channel.
func (c *Chain) ModScale(other *Chain, amount Arg) *Chain {
	return c.with(node{op: opModScale, args: []Arg{amount}, other: other})
}

// evalFn evaluates a pixel at normalized coordinates.
type evalFn func(x, y float64) RGBA

// Compile resolves all chain arguments at time t and returns a
// per-pixel evaluator. Dynamic arguments (patch-supplied functions)
// may fail; the error aborts this frame's render for the bound output.
func (c *Chain) Compile(t float64) (evalFn, error) {
	if len(c.nodes) == 0 {
		return nil, fmt.Errorf("empty chain")
	}
	fn, err := compileGenerator(c.nodes[0], t)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(c.nodes); i++ {
		fn, err = compileOp(c.nodes[i], fn, t)
		if err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func resolveArgs(n node, t float64) ([]float64, error) {
	vals := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.Resolve(t)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func compileGenerator(n node, t float64) (evalFn, error) {
	v, err := resolveArgs(n, t)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case opOsc:
		freq, sync, offset := v[0], v[1], v[2]
		return func(x, y float64) RGBA {
			phase := x*freq + t*sync*10
			return RGBA{
				R: 0.5 + 0.5*math.Sin(phase),
				G: 0.5 + 0.5*math.Sin(phase+offset),
				B: 0.5 + 0.5*math.Sin(phase+2*offset),
				A: 1,
			}
		}, nil
	case opNoise:
		scale, speed := v[0], v[1]
		z := t * speed
		return func(x, y float64) RGBA {
			nv := 0.5 + 0.5*valueNoise(x*scale+z, y*scale+0.37*z)
			return RGBA{R: nv, G: nv, B: nv, A: 1}
		}, nil
	case opGradient:
		speed := v[0]
		b := 0.5 + 0.5*math.Sin(t*speed)
		return func(x, y float64) RGBA {
			return RGBA{R: x, G: y, B: b, A: 1}
		}, nil
	case opSolid:
		c := RGBA{R: v[0], G: v[1], B: v[2], A: v[3]}
		return func(x, y float64) RGBA { return c }, nil
	case opShape:
		sides, radius, smoothing := v[0], v[1], v[2]
		if sides < 2 {
			sides = 2
		}
		if smoothing <= 0 {
			smoothing = 1e-4
		}
		th := 2 * math.Pi / sides
		return func(x, y float64) RGBA {
			dx := x - 0.5
			dy := y - 0.5
			a := math.Atan2(dy, dx) + math.Pi/2
			d := math.Cos(math.Floor(0.5+a/th)*th-a) * math.Hypot(dx, dy)
			vv := 1 - smoothstep(radius, radius+smoothing, d)
			return RGBA{R: vv, G: vv, B: vv, A: vv}
		}, nil
	case opSrc:
		img := n.src.Frame()
		return func(x, y float64) RGBA {
			return sampleFrame(img, x, y)
		}, nil
	default:
		return nil, fmt.Errorf("op %d is not a generator", n.op)
	}
}

func compileOp(n node, inner evalFn, t float64) (evalFn, error) {
	v, err := resolveArgs(n, t)
	if err != nil {
		return nil, err
	}

	var otherFn evalFn
	if n.other != nil {
		otherFn, err = n.other.Compile(t)
		if err != nil {
			return nil, err
		}
	}

	switch n.op {
	case opRotate:
		angle := v[0] + t*v[1]
		sin, cos := math.Sincos(angle)
		return func(x, y float64) RGBA {
			dx := x - 0.5
			dy := y - 0.5
			return inner(0.5+dx*cos-dy*sin, 0.5+dx*sin+dy*cos)
		}, nil
	case opScale:
		amount := v[0]
		if amount == 0 {
			amount = 1e-6
		}
		return func(x, y float64) RGBA {
			return inner(0.5+(x-0.5)/amount, 0.5+(y-0.5)/amount)
		}, nil
	case opTile:
		tx, ty := v[0], v[1]
		return func(x, y float64) RGBA {
			return inner(x*tx, y*ty)
		}, nil
	case opKaleid:
		sides := v[0]
		if sides < 1 {
			sides = 1
		}
		th := 2 * math.Pi / sides
		return func(x, y float64) RGBA {
			dx := x - 0.5
			dy := y - 0.5
			r := math.Hypot(dx, dy)
			a := math.Mod(math.Atan2(dy, dx)+2*math.Pi, th)
			a = math.Abs(a - th/2)
			sin, cos := math.Sincos(a)
			return inner(0.5+r*cos, 0.5+r*sin)
		}, nil
	case opScroll:
		sx, sy := v[0], v[1]
		return func(x, y float64) RGBA {
			return inner(x+sx, y+sy)
		}, nil
	case opBrightness:
		b := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			c.R += b
			c.G += b
			c.B += b
			return c
		}, nil
	case opContrast:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			c.R = (c.R-0.5)*amount + 0.5
			c.G = (c.G-0.5)*amount + 0.5
			c.B = (c.B-0.5)*amount + 0.5
			return c
		}, nil
	case opInvert:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			c.R = lerp(c.R, 1-c.R, amount)
			c.G = lerp(c.G, 1-c.G, amount)
			c.B = lerp(c.B, 1-c.B, amount)
			return c
		}, nil
	case opSaturate:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			l := luminance(c)
			c.R = lerp(l, c.R, amount)
			c.G = lerp(l, c.G, amount)
			c.B = lerp(l, c.B, amount)
			return c
		}, nil
	case opLuma:
		threshold, tolerance := v[0], v[1]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			k := smoothstep(threshold-tolerance, threshold+tolerance, luminance(c))
			c.R *= k
			c.G *= k
			c.B *= k
			c.A *= k
			return c
		}, nil
	case opColorama:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			return rotateHue(c, amount)
		}, nil
	case opAdd:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			o := otherFn(x, y)
			c.R += o.R * amount
			c.G += o.G * amount
			c.B += o.B * amount
			c.A = math.Max(c.A, o.A*amount)
			return c
		}, nil
	case opBlend:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			o := otherFn(x, y)
			return RGBA{
				R: lerp(c.R, o.R, amount),
				G: lerp(c.G, o.G, amount),
				B: lerp(c.B, o.B, amount),
				A: lerp(c.A, o.A, amount),
			}
		}, nil
	case opDiff:
		return func(x, y float64) RGBA {
			c := inner(x, y)
			o := otherFn(x, y)
			return RGBA{
				R: math.Abs(c.R - o.R),
				G: math.Abs(c.G - o.G),
				B: math.Abs(c.B - o.B),
				A: math.Max(c.A, o.A),
			}
		}, nil
	case opMult:
		amount := v[0]
		return func(x, y float64) RGBA {
			c := inner(x, y)
			o := otherFn(x, y)
			c.R *= lerp(1, o.R, amount)
			c.G *= lerp(1, o.G, amount)
			c.B *= lerp(1, o.B, amount)
			return c
		}, nil
	case opMask:
		return func(x, y float64) RGBA {
			c := inner(x, y)
			k := luminance(otherFn(x, y))
			c.R *= k
			c.G *= k
			c.B *= k
			c.A *= k
			return c
		}, nil
	case opModulate:
		amount := v[0]
		return func(x, y float64) RGBA {
			o := otherFn(x, y)
			return inner(x+(o.R-0.5)*amount, y+(o.G-0.5)*amount)
		}, nil
	case opModScale:
		amount := v[0]
		return func(x, y float64) RGBA {
			o := otherFn(x, y)
			k := 1 + (o.R-0.5)*amount
			if k == 0 {
				k = 1e-6
			}
			return inner(0.5+(x-0.5)/k, 0.5+(y-0.5)/k)
		}, nil
	default:
		return nil, fmt.Errorf("op %d is not a transform", n.op)
	}
}

func lerp(a, b, k float64) float64 { return a + (b-a)*k }

func luminance(c RGBA) float64 {
	return 0.299*c.R + 0.587*c.G + 0.114*c.B
}

func smoothstep(edge0, edge1, x float64) float64 {
	if edge1 == edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	k := clamp01((x - edge0) / (edge1 - edge0))
	return k * k * (3 - 2*k)
}

// rotateHue rotates the color around the RGB luminance axis.
func rotateHue(c RGBA, angle float64) RGBA {
	sin, cos := math.Sincos(angle)
	// Rodrigues rotation around (1,1,1)/sqrt(3), constants folded.
	m := 1.0 / 3.0
	oc := 1 - cos
	k := math.Sqrt(1.0 / 3.0)
	a00 := cos + oc*m
	a01 := oc*m - k*sin
	a02 := oc*m + k*sin
	return RGBA{
		R: clamp01(a00*c.R + a01*c.G + a02*c.B),
		G: clamp01(a02*c.R + a00*c.G + a01*c.B),
		B: clamp01(a01*c.R + a02*c.G + a00*c.B),
		A: c.A,
	}
}
