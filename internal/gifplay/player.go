// Package gifplay paces frame-based animated media into an engine slot
// independently of the render tick. Each player owns one (instance,
// slot) pair: it fetches the media bytes once, decodes every frame up
// front, and then drives the slot's feeder frame with a self-
// rescheduling timer chain using each frame's authored delay divided
// by the playback speed.
package gifplay

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/patchmix/patchmix/internal/engine"
	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/media"
	"github.com/patchmix/patchmix/internal/metrics"
)

// State is the player lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateDecoding
	StatePlaying
	StatePaused
	StateFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Player animates one slot of one instance. Two instances holding the
// same media URL get two players that decode and pace independently.
type Player struct {
	label string
	slot  *engine.SlotBinding
	log   zerolog.Logger

	mu         sync.Mutex
	state      State
	speed      float64
	frames     []*image.RGBA
	delays     []time.Duration
	frameIndex int
	timer      *time.Timer
	timerGen   uint64
	cancel     context.CancelFunc
}

// New creates an idle player for a slot. The label names the
// (instance, slot) pair in logs and metrics, e.g. "A/s0".
func New(label string, slot *engine.SlotBinding, speed float64) *Player {
	if speed < 0 {
		speed = 0
	}
	return &Player{
		label: label,
		slot:  slot,
		speed: speed,
		log:   log.WithComponent("gifplay").With().Str("slot", label).Logger(),
	}
}

// Start fetches and decodes the media asynchronously, then begins
// playback. Safe to call once per player.
func (p *Player) Start(ctx context.Context, url string, kind engine.MediaKind) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		cancel()
		return
	}
	p.state = StateDecoding
	p.cancel = cancel
	p.mu.Unlock()

	go p.load(ctx, url, kind)
}

func (p *Player) load(ctx context.Context, url string, kind engine.MediaKind) {
	data, err := media.Fetch(ctx, url)
	if err != nil {
		p.fail(fmt.Errorf("fetch %s: %w", url, err), false)
		return
	}

	switch kind {
	case engine.MediaAnimated:
		if err := p.playAnimated(data); err != nil {
			p.fail(err, false)
		}
	case engine.MediaImage:
		if err := p.showStill(data); err != nil {
			p.fail(err, false)
		}
	case engine.MediaVideo:
		// No video codec in the software engine. An animated GIF
		// behind a video assignment still plays; a real video file
		// fails soft and releases the slot.
		if err := p.playAnimated(data); err == nil {
			return
		}
		if err := p.showStill(data); err != nil {
			p.fail(fmt.Errorf("unplayable video media: %w", err), true)
		}
	default:
		p.fail(fmt.Errorf("unknown media kind %q", kind), false)
	}
}

func (p *Player) playAnimated(data []byte) error {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return fmt.Errorf("decode gif: no frames")
	}

	frames, delays := coalesce(g)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateDecoding {
		return nil
	}
	p.frames = frames
	p.delays = delays
	p.frameIndex = 0
	p.slot.SetFrame(frames[0])

	if p.speed > 0 {
		p.state = StatePlaying
		if len(frames) > 1 {
			p.scheduleLocked()
		}
	} else {
		p.state = StatePaused
	}
	return nil
}

func (p *Player) showStill(data []byte) error {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	frame := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(frame, frame.Bounds(), src, b.Min, draw.Src)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateDecoding {
		return nil
	}
	p.frames = []*image.RGBA{frame}
	p.delays = []time.Duration{0}
	p.frameIndex = 0
	p.slot.SetFrame(frame)
	p.state = StatePlaying
	return nil
}

// fail stops the player without touching other slots. clearSlot
// releases the slot binding for media the engine cannot play at all.
func (p *Player) fail(err error, clearSlot bool) {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return
	}
	p.state = StateFailed
	p.stopTimerLocked()
	p.mu.Unlock()

	metrics.DecodeErrorsTotal.WithLabelValues(p.label).Inc()
	p.log.Error().Err(err).Str("event", "decode.error").Msg("media playback failed")
	if clearSlot {
		p.slot.Clear()
	}
}

// step advances one frame and schedules the next advance. It runs on
// the timer goroutine. gen identifies the timer chain that armed this
// callback: a callback that already fired when its timer was stopped
// or replaced still reaches here, and the generation check is what
// keeps exactly one chain alive per player.
func (p *Player) step(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.timerGen {
		return
	}
	if p.state != StatePlaying || len(p.frames) < 2 {
		return
	}
	p.frameIndex = (p.frameIndex + 1) % len(p.frames)
	p.slot.SetFrame(p.frames[p.frameIndex])
	p.scheduleLocked()
}

// scheduleLocked arms the timer for the current frame's adjusted
// display duration under a fresh generation, invalidating any
// callback from an earlier chain. Caller holds p.mu and guarantees
// speed > 0.
func (p *Player) scheduleLocked() {
	d := p.delays[p.frameIndex]
	adjusted := time.Duration(float64(d) / p.speed)
	p.timerGen++
	gen := p.timerGen
	p.timer = time.AfterFunc(adjusted, func() { p.step(gen) })
}

// stopTimerLocked stops the pending timer. Stop returning false means
// the callback already fired and is blocked on p.mu; bumping the
// generation makes that callback a no-op when it gets the lock.
func (p *Player) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
		p.timerGen++
	}
}

// SetSpeed adjusts playback pacing. Zero pauses: the timer chain stops
// and the frame index freezes. A positive value while paused resumes
// immediately from the current frame. Returns false once the player is
// failed or disposed.
func (p *Player) SetSpeed(speed float64) bool {
	if speed < 0 {
		speed = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateFailed, StateDisposed:
		return false
	}

	prev := p.speed
	p.speed = speed

	switch {
	case speed == 0 && p.state == StatePlaying:
		p.state = StatePaused
		p.stopTimerLocked()
	case speed > 0 && p.state == StatePaused && len(p.frames) > 0:
		p.state = StatePlaying
		if len(p.frames) > 1 {
			p.scheduleLocked()
		}
	case speed > 0 && p.state == StatePlaying && speed != prev:
		// Re-arm so the new pacing applies now, not one frame later.
		p.stopTimerLocked()
		if len(p.frames) > 1 {
			p.scheduleLocked()
		}
	}
	return true
}

// Dispose cancels any pending fetch and timer. Synchronous and
// idempotent; a disposed player never publishes another frame.
func (p *Player) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDisposed {
		return
	}
	p.state = StateDisposed
	p.stopTimerLocked()
	if p.cancel != nil {
		p.cancel()
	}
}

// State returns the current lifecycle phase.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FrameIndex returns the index of the frame currently on the slot.
func (p *Player) FrameIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameIndex
}

// FrameCount returns the decoded frame count (0 while decoding).
func (p *Player) FrameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}
