package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/patchmix/patchmix/internal/composite"
	"github.com/patchmix/patchmix/internal/engine"
	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/metrics"
	"github.com/patchmix/patchmix/internal/preview"
	"github.com/patchmix/patchmix/internal/sandbox"
)

// EventSink receives pipeline lifecycle events. The events broadcaster
// implements it; a nil sink disables emission.
type EventSink interface {
	Emit(event string, fields map[string]interface{})
}

// Options sizes the pipeline's surfaces and clocks.
type Options struct {
	Width         int
	Height        int
	FPS           int
	PreviewWidth  int
	PreviewHeight int
	PreviewFPS    int
}

// pendingRun is a runBoth whose composite step and reply are deferred
// to the next tick boundary.
type pendingRun struct {
	result RunResult
	mode   string
	params map[string]float64
	reply  chan RunResult
}

// Pipeline drives the three engine instances (patch A, patch B, and
// the composited output) on a fixed tick. All fields below cmds are
// owned by the loop goroutine.
type Pipeline struct {
	opts Options
	log  zerolog.Logger
	sink EventSink

	transport *preview.Transport
	cmds      chan func()

	instA, instB, instOut *engine.Instance
	sbA, sbB              *sandbox.Sandbox
	comp                  *composite.Engine

	baseCtx   context.Context
	runSeq    uint64
	wantMode  string
	executedA bool
	executedB bool
	pending   *pendingRun
}

// New builds the pipeline and its three engine instances. Run must be
// called before the control methods are useful.
func New(opts Options, sink EventSink) *Pipeline {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}

	instA := engine.New("A", opts.Width, opts.Height)
	instB := engine.New("B", opts.Width, opts.Height)
	instOut := engine.New("out", opts.Width, opts.Height)

	sbA := sandbox.New(instA)
	sbB := sandbox.New(instB)
	comp := composite.NewEngine(sandbox.New(instOut))
	comp.BindSurfaces(instA.Output(0), instB.Output(0))

	return &Pipeline{
		opts:      opts,
		baseCtx:   context.Background(),
		log:       log.WithComponent("pipeline"),
		sink:      sink,
		transport: preview.NewTransport(opts.PreviewWidth, opts.PreviewHeight, opts.PreviewFPS),
		cmds:      make(chan func(), 64),
		instA:     instA,
		instB:     instB,
		instOut:   instOut,
		sbA:       sbA,
		sbB:       sbB,
		comp:      comp,
	}
}

// Transport returns the preview transport for the WebSocket layer to
// attach control-side sinks.
func (p *Pipeline) Transport() *preview.Transport { return p.transport }

// Run drives the tick loop until ctx is cancelled. It owns every
// engine instance and sandbox; no other goroutine touches them.
func (p *Pipeline) Run(ctx context.Context) error {
	p.baseCtx = ctx
	dt := 1.0 / float64(p.opts.FPS)
	ticker := time.NewTicker(time.Second / time.Duration(p.opts.FPS))
	defer ticker.Stop()

	p.log.Info().
		Str("event", "pipeline.start").
		Int("width", p.opts.Width).
		Int("height", p.opts.Height).
		Int("fps", p.opts.FPS).
		Msg("render pipeline running")

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return nil
		case fn := <-p.cmds:
			fn()
		case <-ticker.C:
			p.tick(dt)
		}
	}
}

// tick is one render frame: advance clocks, run per-frame hooks,
// render both patch surfaces, resolve any deferred run, render the
// composited output, then offer a preview pair.
func (p *Pipeline) tick(dt float64) {
	start := time.Now()

	p.instA.Advance(dt)
	p.instB.Advance(dt)
	p.instOut.Advance(dt)

	if err := p.sbA.Tick(dt); err != nil {
		p.log.Debug().Err(err).Str("patch", "A").Msg("update hook failed")
	}
	if err := p.sbB.Tick(dt); err != nil {
		p.log.Debug().Err(err).Str("patch", "B").Msg("update hook failed")
	}

	if err := p.instA.Render(); err != nil {
		p.log.Debug().Err(err).Str("patch", "A").Msg("render error, output frozen")
	}
	if err := p.instB.Render(); err != nil {
		p.log.Debug().Err(err).Str("patch", "B").Msg("render error, output frozen")
	}

	if p.pending != nil {
		p.resolvePending()
	}

	if p.gateOpen() && p.comp.Materialized() != "" {
		if err := p.instOut.Render(); err != nil {
			p.log.Debug().Err(err).Msg("composite render error, output frozen")
		}
	}

	p.offerPreview()
	metrics.ObserveFrameRender(time.Since(start))
}

// gateOpen reports whether compositing may run: both patches must
// have been through at least one execution attempt, successful or not,
// so the output surface never shows a half-initialized pair.
func (p *Pipeline) gateOpen() bool {
	return p.executedA && p.executedB
}

// resolvePending applies the deferred composite step for the last
// runBoth and delivers its result. A composite failure downgrades any
// still-successful patch result; patch errors keep priority.
func (p *Pipeline) resolvePending() {
	pr := p.pending
	p.pending = nil

	if p.gateOpen() {
		if err := p.comp.SetMode(pr.mode); err != nil {
			p.log.Error().Err(err).Str("mode", pr.mode).Msg("composite materialization failed")
			ce := &PatchError{Message: "composite: " + err.Error()}
			if pr.result.A.Success {
				pr.result.A = PatchResult{Success: false, Error: ce}
			}
			if pr.result.B.Success {
				pr.result.B = PatchResult{Success: false, Error: ce}
			}
		}
		p.comp.SetParams(pr.params)
	}

	p.emit("patch.run", map[string]interface{}{
		"runId":    pr.result.RunID,
		"aSuccess": pr.result.A.Success,
		"bSuccess": pr.result.B.Success,
	})
	pr.reply <- pr.result
}

func (p *Pipeline) offerPreview() {
	var a, b preview.Source
	if p.executedA {
		a = p.instA.Output(0)
	}
	if p.executedB {
		b = p.instB.Output(0)
	}
	p.transport.Offer(a, b)
}

// shutdown tears down schedulers and sandboxes on loop exit.
func (p *Pipeline) shutdown() {
	p.instA.Dispose()
	p.instB.Dispose()
	p.instOut.Dispose()
	p.sbA.Close()
	p.sbB.Close()
	p.comp.Close()
	p.log.Info().Str("event", "pipeline.stop").Msg("render pipeline stopped")
}

func (p *Pipeline) emit(event string, fields map[string]interface{}) {
	if p.sink != nil {
		p.sink.Emit(event, fields)
	}
}

// do posts fn onto the loop goroutine and waits for it to finish.
func (p *Pipeline) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case p.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
