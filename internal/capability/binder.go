// Package capability enumerates the exact set of names a sandboxed
// patch may reference: source generators, media slots, output buffers,
// time/mouse globals and a back-reference to the engine instance. The
// binder is the sole authority on that surface; the sandbox installs
// exactly what Bind returns, in order, and nothing else.
package capability

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/patchmix/patchmix/internal/engine"
)

// Binding pairs a global name with its sandbox value.
type Binding struct {
	Name  string
	Value lua.LValue
}

// outputRef is the Lua-side handle for an output buffer (o0..o3).
type outputRef struct {
	inst  *engine.Instance
	index int
}

// slotRef is the Lua-side handle for a media slot (s0..s3).
type slotRef struct {
	binding *engine.SlotBinding
}

// samplerRef is an opaque handle for an externally bound sampler, used
// by the composite engine to expose the two patch surfaces.
type samplerRef struct {
	src engine.Sampler
}

// Bind returns the ordered capability set for an instance. The order
// is fixed across calls: generators first, then output buffers, media
// slots, globals, and the instance back-reference.
func Bind(L *lua.LState, inst *engine.Instance) []Binding {
	registerChainType(L)

	bindings := []Binding{
		{Name: "osc", Value: L.NewFunction(genOsc)},
		{Name: "noise", Value: L.NewFunction(genNoise)},
		{Name: "gradient", Value: L.NewFunction(genGradient)},
		{Name: "solid", Value: L.NewFunction(genSolid)},
		{Name: "shape", Value: L.NewFunction(genShape)},
		{Name: "src", Value: L.NewFunction(genSrc)},
		{Name: "out", Value: L.NewFunction(genOut)},
	}

	for i := 0; i < engine.NumOutputs; i++ {
		ud := L.NewUserData()
		ud.Value = &outputRef{inst: inst, index: i}
		bindings = append(bindings, Binding{Name: fmt.Sprintf("o%d", i), Value: ud})
	}

	for i := 0; i < engine.NumSlots; i++ {
		ud := L.NewUserData()
		ud.Value = &slotRef{binding: inst.Slot(i)}
		bindings = append(bindings, Binding{Name: fmt.Sprintf("s%d", i), Value: ud})
	}

	mouse := L.NewTable()
	L.SetField(mouse, "x", lua.LNumber(0))
	L.SetField(mouse, "y", lua.LNumber(0))

	synth := L.NewUserData()
	synth.Value = inst

	bindings = append(bindings,
		Binding{Name: "time", Value: lua.LNumber(0)},
		Binding{Name: "speed", Value: lua.LNumber(1)},
		Binding{Name: "mouse", Value: mouse},
		Binding{Name: "synth", Value: synth},
	)

	return bindings
}

// Names returns the capability names in binding order, without
// constructing values. Useful for documentation and tests.
func Names() []string {
	names := []string{"osc", "noise", "gradient", "solid", "shape", "src", "out"}
	for i := 0; i < engine.NumOutputs; i++ {
		names = append(names, fmt.Sprintf("o%d", i))
	}
	for i := 0; i < engine.NumSlots; i++ {
		names = append(names, fmt.Sprintf("s%d", i))
	}
	return append(names, "time", "speed", "mouse", "synth")
}

// SamplerValue wraps an engine sampler as a Lua value usable with
// src(). The composite engine uses this to expose the patch surfaces.
func SamplerValue(L *lua.LState, src engine.Sampler) lua.LValue {
	ud := L.NewUserData()
	ud.Value = &samplerRef{src: src}
	return ud
}
