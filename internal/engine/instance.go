package engine

import (
	"errors"
	"fmt"
	"image"
)

// NumOutputs is the number of named output buffers per instance (o0..o3).
const NumOutputs = 4

// NumSlots is the number of external media slots (s0..s3).
const NumSlots = 4

// Context is the per-instance render context. Each instance carries
// its own time and speed so two instances never share clock state.
type Context struct {
	Time   float64
	Speed  float64
	MouseX float64
	MouseY float64
}

// Scheduler is an animated-media decode scheduler bound to one slot of
// one instance. Dispose must be synchronous and idempotent.
type Scheduler interface {
	SetSpeed(speed float64) bool
	Dispose()
}

// Instance is one independent render engine: four output buffers, four
// media slot bindings, the decode scheduler registry for those slots,
// and its own time context. All methods except slot-frame publishing
// must be called from the owning render goroutine.
type Instance struct {
	name     string
	width    int
	height   int
	ctx      Context
	outputs  [NumOutputs]*Surface
	back     [NumOutputs]*image.RGBA
	bound    [NumOutputs]*Chain
	slots    [NumSlots]*SlotBinding
	sched    map[int]Scheduler
	disposed bool
}

// New creates an engine instance with blank slot bindings. Output
// buffers are created lazily on first reference.
func New(name string, width, height int) *Instance {
	in := &Instance{
		name:   name,
		width:  width,
		height: height,
		ctx:    Context{Speed: 1},
		sched:  make(map[int]Scheduler),
	}
	for i := range in.slots {
		in.slots[i] = &SlotBinding{index: i}
	}
	return in
}

// Name returns the instance name ("A", "B", "out").
func (in *Instance) Name() string { return in.name }

// Width returns the render width in pixels.
func (in *Instance) Width() int { return in.width }

// Height returns the render height in pixels.
func (in *Instance) Height() int { return in.height }

// Ctx returns the instance's render context.
func (in *Instance) Ctx() Context { return in.ctx }

// SetSpeed sets the instance's time multiplier.
func (in *Instance) SetSpeed(speed float64) { in.ctx.Speed = speed }

// SetMouse updates the instance's mouse coordinates.
func (in *Instance) SetMouse(x, y float64) {
	in.ctx.MouseX = x
	in.ctx.MouseY = y
}

// Advance moves instance time forward by dt (seconds), scaled by the
// instance speed.
func (in *Instance) Advance(dt float64) {
	in.ctx.Time += dt * in.ctx.Speed
}

// Output returns the named output buffer, creating it on first use.
func (in *Instance) Output(i int) *Surface {
	if i < 0 || i >= NumOutputs {
		i = 0
	}
	if in.outputs[i] == nil {
		in.outputs[i] = NewSurface(fmt.Sprintf("o%d", i), in.width, in.height)
	}
	return in.outputs[i]
}

// Slot returns the slot binding for s0..s3.
func (in *Instance) Slot(i int) *SlotBinding {
	if i < 0 || i >= NumSlots {
		i = 0
	}
	return in.slots[i]
}

// BindOutput attaches a chain to an output buffer. The chain renders
// on every subsequent tick until rebound or reset.
func (in *Instance) BindOutput(i int, c *Chain) {
	if i < 0 || i >= NumOutputs {
		i = 0
	}
	in.Output(i)
	in.bound[i] = c
}

// ResetOutputs unbinds all chains and drives every created output
// buffer to a neutral state. Slot assignments are deliberately left
// untouched: external media persists independently of patch code.
func (in *Instance) ResetOutputs() {
	for i := range in.bound {
		in.bound[i] = nil
	}
	for _, s := range in.outputs {
		if s != nil {
			s.Clear()
		}
	}
}

// Render rasterizes every bound chain into its output buffer. All
// chains are compiled against the previous frame's buffers before any
// swap, so feedback reads (src(oN)) and cross-output reads observe one
// consistent frame. An output whose chain fails to compile keeps its
// previous frame; the error is returned joined with any others.
func (in *Instance) Render() error {
	type job struct {
		idx int
		fn  evalFn
	}
	var jobs []job
	var errs []error

	for i, c := range in.bound {
		if c == nil {
			continue
		}
		fn, err := c.Compile(in.ctx.Time)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/o%d: %w", in.name, i, err))
			continue
		}
		jobs = append(jobs, job{idx: i, fn: fn})
	}

	for _, j := range jobs {
		dst := in.scratch(j.idx)
		w := float64(in.width)
		h := float64(in.height)
		for py := 0; py < in.height; py++ {
			fy := (float64(py) + 0.5) / h
			row := py * dst.Stride
			for px := 0; px < in.width; px++ {
				fx := (float64(px) + 0.5) / w
				c := j.fn(fx, fy)
				o := row + px*4
				dst.Pix[o+0] = uint8(clamp01(c.R)*255 + 0.5)
				dst.Pix[o+1] = uint8(clamp01(c.G)*255 + 0.5)
				dst.Pix[o+2] = uint8(clamp01(c.B)*255 + 0.5)
				dst.Pix[o+3] = uint8(clamp01(c.A)*255 + 0.5)
			}
		}
	}

	// Swap only after every job rendered, keeping this tick atomic.
	for _, j := range jobs {
		surf := in.outputs[j.idx]
		surf.img, in.back[j.idx] = in.back[j.idx], surf.img
	}

	return errors.Join(errs...)
}

func (in *Instance) scratch(i int) *image.RGBA {
	if in.back[i] == nil {
		in.back[i] = image.NewRGBA(image.Rect(0, 0, in.width, in.height))
	}
	return in.back[i]
}

// BindScheduler registers a decode scheduler for a slot, tearing down
// any scheduler already bound there first. At most one scheduler per
// (instance, slot) exists at any time.
func (in *Instance) BindScheduler(slot int, s Scheduler) {
	in.DisposeSlot(slot)
	in.sched[slot] = s
}

// SchedulerFor returns the scheduler bound to a slot, if any.
func (in *Instance) SchedulerFor(slot int) (Scheduler, bool) {
	s, ok := in.sched[slot]
	return s, ok
}

// DisposeSlot cancels and removes the slot's decode scheduler, if any.
func (in *Instance) DisposeSlot(slot int) {
	if s, ok := in.sched[slot]; ok {
		s.Dispose()
		delete(in.sched, slot)
	}
}

// Dispose tears down every decode scheduler bound to this instance.
// Double-dispose is a no-op.
func (in *Instance) Dispose() {
	if in.disposed {
		return
	}
	in.disposed = true
	for slot, s := range in.sched {
		s.Dispose()
		delete(in.sched, slot)
	}
}

// Disposed reports whether Dispose has run.
func (in *Instance) Disposed() bool { return in.disposed }
