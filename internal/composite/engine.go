package composite

import (
	"github.com/rs/zerolog"

	"github.com/patchmix/patchmix/internal/engine"
	"github.com/patchmix/patchmix/internal/log"
	"github.com/patchmix/patchmix/internal/metrics"
	"github.com/patchmix/patchmix/internal/sandbox"
)

// Engine materializes blend templates onto the output surface. A mode
// switch costs one sandbox execution; parameter changes only write the
// bag, which the materialized template's closures read every frame.
type Engine struct {
	sb  *sandbox.Sandbox
	bag *Bag
	log zerolog.Logger

	mode  string
	execs int
}

// NewEngine wraps the output surface's sandbox. The parameter reader
// p(key) is installed immediately; the a/b surface samplers are bound
// separately once the patch instances exist.
func NewEngine(sb *sandbox.Sandbox) *Engine {
	e := &Engine{
		sb:  sb,
		bag: NewBag(),
		log: log.WithComponent("composite"),
	}
	sb.BindParamReader("p", e.bag.Get)
	return e
}

// BindSurfaces exposes the two patch surfaces to template code as the
// src(a) and src(b) samplers.
func (e *Engine) BindSurfaces(a, b engine.Sampler) {
	e.sb.BindSampler("a", a)
	e.sb.BindSampler("b", b)
}

// SetMode materializes the template for id onto the output surface.
// An unknown id falls back to the default template and logs. When the
// resolved mode is already materialized this is a no-op and the running
// template keeps rendering. Parameter keys not yet present in the bag
// are seeded from the template defaults before execution.
func (e *Engine) SetMode(id string) error {
	if id == "" {
		id = DefaultMode
	}
	tpl, ok := Lookup(id)
	if !ok {
		e.log.Warn().
			Str("event", "composite.fallback").
			Str("mode", id).
			Str("fallback", DefaultMode).
			Msg("unknown composite mode")
		metrics.CompositeFallbackTotal.Inc()
		tpl, _ = Lookup(DefaultMode)
	}
	if tpl.ID == e.mode {
		return nil
	}

	for _, p := range tpl.Params {
		e.bag.Seed(p.Key, p.Default)
	}

	e.execs++
	if err := e.sb.Execute(tpl.Source, true); err != nil {
		metrics.CompositeErrorsTotal.Inc()
		e.mode = ""
		return err
	}
	e.mode = tpl.ID
	e.log.Debug().Str("event", "composite.mode").Str("mode", tpl.ID).Msg("template materialized")
	return nil
}

// SetParam writes one parameter into the live bag. Keys the active
// template does not declare are dropped. No sandbox execution happens
// here; the running template reads the new value on its next frame.
func (e *Engine) SetParam(key string, value float64) {
	if e.mode != "" && !declares(e.mode, key) {
		e.log.Debug().Str("event", "composite.param.ignored").Str("key", key).Msg("unknown parameter key")
		return
	}
	e.bag.Set(key, value)
}

// SetParams applies a batch of parameter writes.
func (e *Engine) SetParams(params map[string]float64) {
	for k, v := range params {
		e.SetParam(k, v)
	}
}

// Materialized returns the id of the currently materialized template,
// or "" when none has been materialized yet.
func (e *Engine) Materialized() string { return e.mode }

// Executions returns how many times a template has been run through
// the sandbox since creation.
func (e *Engine) Executions() int { return e.execs }

// Params returns a copy of the live parameter bag.
func (e *Engine) Params() map[string]float64 { return e.bag.Snapshot() }

// Close releases the wrapped sandbox.
func (e *Engine) Close() { e.sb.Close() }

func declares(mode, key string) bool {
	tpl, ok := Lookup(mode)
	if !ok {
		return false
	}
	for _, p := range tpl.Params {
		if p.Key == key {
			return true
		}
	}
	return false
}
