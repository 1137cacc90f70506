package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/patchmix/patchmix/internal/engine"
	"github.com/patchmix/patchmix/internal/gifplay"
	"github.com/patchmix/patchmix/internal/metrics"
	"github.com/patchmix/patchmix/internal/sandbox"
)

// RunBoth executes both patch sources on the loop goroutine and waits
// for the deferred composite step to resolve on the next tick. Patch A
// always runs before patch B; a failure in either never prevents the
// other from being attempted.
func (p *Pipeline) RunBoth(ctx context.Context, req RunRequest) (RunResult, error) {
	reply := make(chan RunResult, 1)

	err := p.do(ctx, func() {
		p.runSeq++
		result := RunResult{RunID: p.runSeq}

		result.A = p.executePatch(p.sbA, "A", req.PatchA)
		p.executedA = true
		result.B = p.executePatch(p.sbB, "B", req.PatchB)
		p.executedB = true

		mode := req.CompositeMode
		if mode == "" {
			mode = p.wantMode
		}
		p.wantMode = mode

		p.pending = &pendingRun{
			result: result,
			mode:   mode,
			params: req.CompositeParameters,
			reply:  reply,
		}
	})
	if err != nil {
		return RunResult{}, err
	}

	select {
	case result := <-reply:
		return result, nil
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

func (p *Pipeline) executePatch(sb *sandbox.Sandbox, name, source string) PatchResult {
	err := sb.Execute(source, true)
	metrics.IncPatchRun(name, err == nil)
	if err == nil {
		return PatchResult{Success: true}
	}

	pe := &PatchError{Message: err.Error()}
	var se *sandbox.Error
	if errors.As(err, &se) {
		pe.Stack = se.Stack
		pe.LineNumber = se.Line
	}
	p.emit("patch.error", map[string]interface{}{
		"patch":   name,
		"message": pe.Message,
		"line":    pe.LineNumber,
	})
	return PatchResult{Success: false, Error: pe}
}

// AssignSource binds media to the named slot on both patch instances.
// Each instance gets its own decode scheduler so the two surfaces
// animate on independent clocks; any previous scheduler for the slot
// is torn down first.
func (p *Pipeline) AssignSource(ctx context.Context, req SourceRequest) error {
	idx, err := ParseSlot(req.Slot)
	if err != nil {
		return err
	}
	kind, err := ParseMediaKind(req.MediaKind)
	if err != nil {
		return err
	}
	if req.MediaURL == "" {
		return fmt.Errorf("missing mediaUrl")
	}
	speed := 1.0
	if req.PlaybackSpeed != nil {
		speed = *req.PlaybackSpeed
	}
	if speed < 0 {
		return fmt.Errorf("negative playbackSpeed %v", speed)
	}

	return p.do(ctx, func() {
		for _, inst := range []*engine.Instance{p.instA, p.instB} {
			binding := inst.Slot(idx)
			binding.Assign(req.MediaURL, kind)

			player := gifplay.New(fmt.Sprintf("%s/%s", inst.Name(), req.Slot), binding, speed)
			inst.BindScheduler(idx, player)
			player.Start(p.baseCtx, req.MediaURL, kind)
		}
		p.emit("source.assign", map[string]interface{}{
			"slot": req.Slot,
			"url":  req.MediaURL,
			"kind": string(kind),
		})
	})
}

// ClearSource detaches the slot's media and cancels its schedulers on
// both instances.
func (p *Pipeline) ClearSource(ctx context.Context, slot string) error {
	idx, err := ParseSlot(slot)
	if err != nil {
		return err
	}
	return p.do(ctx, func() {
		for _, inst := range []*engine.Instance{p.instA, p.instB} {
			inst.DisposeSlot(idx)
			inst.Slot(idx).Clear()
		}
		p.emit("source.clear", map[string]interface{}{"slot": slot})
	})
}

// SetSlotSpeed adjusts playback pacing for whatever media is active on
// the slot, without re-resolving its kind. Zero pauses.
func (p *Pipeline) SetSlotSpeed(ctx context.Context, slot string, speed float64) error {
	idx, err := ParseSlot(slot)
	if err != nil {
		return err
	}
	return p.do(ctx, func() {
		for _, inst := range []*engine.Instance{p.instA, p.instB} {
			if sched, ok := inst.SchedulerFor(idx); ok {
				sched.SetSpeed(speed)
			}
		}
		p.emit("source.speed", map[string]interface{}{"slot": slot, "speed": speed})
	})
}

// SetComposite switches the blend template and/or writes parameters.
// Before the first run the selection is remembered and applied once
// compositing is unlocked.
func (p *Pipeline) SetComposite(ctx context.Context, mode string, params map[string]float64) error {
	var modeErr error
	err := p.do(ctx, func() {
		if mode != "" {
			p.wantMode = mode
		}
		if p.gateOpen() {
			if err := p.comp.SetMode(p.wantMode); err != nil {
				modeErr = err
				return
			}
		}
		p.comp.SetParams(params)
		p.emit("composite.set", map[string]interface{}{
			"mode":   p.wantMode,
			"params": len(params),
		})
	})
	if err != nil {
		return err
	}
	return modeErr
}

// DisposeSurface tears down one instance's decode schedulers. The
// window-management collaborator calls this exactly once per surface
// teardown.
func (p *Pipeline) DisposeSurface(ctx context.Context, name string) error {
	return p.do(ctx, func() {
		switch name {
		case "A":
			p.instA.Dispose()
		case "B":
			p.instB.Dispose()
		case "out":
			p.instOut.Dispose()
		}
	})
}

// Status snapshots pipeline state for the health endpoint.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	var st Status
	err := p.do(ctx, func() {
		st = Status{
			Runs:           p.runSeq,
			CompositeMode:  p.comp.Materialized(),
			CompositeBag:   p.comp.Params(),
			PreviewReady:   p.transport.Ready(),
			ExecutedA:      p.executedA,
			ExecutedB:      p.executedB,
			RenderWidth:    p.opts.Width,
			RenderHeight:   p.opts.Height,
			TicksPerSecond: p.opts.FPS,
		}
		for i := 0; i < engine.NumSlots; i++ {
			s := p.instA.Slot(i)
			st.Slots = append(st.Slots, SlotStatus{
				Slot: fmt.Sprintf("s%d", i),
				URL:  s.URL(),
				Kind: string(s.Kind()),
			})
		}
	})
	return st, err
}
