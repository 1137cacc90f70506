// Package sandbox compiles and executes patch source against one
// engine instance, exposing only the capability binder's names. It is
// the only place in the pipeline where patch failures propagate as
// errors: recovery belongs to the caller.
package sandbox

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/patchmix/patchmix/internal/capability"
	"github.com/patchmix/patchmix/internal/engine"
)

// ChunkName is the inline-evaluation marker every compiled patch
// carries. Error locations referencing it are mapped back to patch
// source lines.
const ChunkName = "patch"

// Sandbox owns one Lua state scoped to one engine instance. It must
// only be used from the goroutine that drives the instance.
type Sandbox struct {
	L     *lua.LState
	inst  *engine.Instance
	mouse *lua.LTable
}

// New creates a sandbox for the given instance. The Lua state carries
// no standard libraries except math; everything else a patch can touch
// comes from the capability binder.
func New(inst *engine.Instance) *Sandbox {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	L.Push(L.NewFunction(lua.OpenMath))
	L.Push(lua.LString(lua.MathLibName))
	L.Call(1, 0)

	s := &Sandbox{L: L, inst: inst}
	for _, b := range capability.Bind(L, inst) {
		L.SetGlobal(b.Name, b.Value)
		if b.Name == "mouse" {
			s.mouse = b.Value.(*lua.LTable)
		}
	}
	s.refreshGlobals()
	return s
}

// Instance returns the engine instance this sandbox drives.
func (s *Sandbox) Instance() *engine.Instance { return s.inst }

// BindSampler exposes an external pixel source under the given global
// name, usable with src(). The composite engine binds the two patch
// surfaces this way.
func (s *Sandbox) BindSampler(name string, src engine.Sampler) {
	s.L.SetGlobal(name, capability.SamplerValue(s.L, src))
}

// BindParamReader exposes a global function name(key) returning a Lua
// closure that reads the live parameter value for key on every call.
// Composite templates use it so parameter changes take effect without
// re-execution.
func (s *Sandbox) BindParamReader(name string, get func(key string) float64) {
	s.L.SetGlobal(name, s.L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LNumber(get(key)))
			return 1
		}))
		return 1
	}))
}

// Execute compiles source into a callable scoped to the capability set
// and invokes it. With resetFirst, output buffers are driven to a
// neutral state and the per-frame update hook is cleared first; media
// slot assignments persist regardless. Compilation and runtime
// failures propagate to the caller; partial draws are not rolled back.
func (s *Sandbox) Execute(source string, resetFirst bool) error {
	if resetFirst {
		s.inst.ResetOutputs()
		s.L.SetGlobal("update", lua.LNil)
	}
	s.refreshGlobals()

	fn, err := s.L.Load(strings.NewReader(source), ChunkName)
	if err != nil {
		return wrapLuaError(err)
	}

	s.L.Push(fn)
	if err := s.L.PCall(0, lua.MultRet, nil); err != nil {
		return wrapLuaError(err)
	}
	return nil
}

// Tick refreshes the time/mouse globals and runs the patch's update
// hook, if one is set. Hook failures are returned, never panicked.
func (s *Sandbox) Tick(dt float64) error {
	s.refreshGlobals()

	hook := s.L.GetGlobal("update")
	fn, ok := hook.(*lua.LFunction)
	if !ok {
		return nil
	}
	if err := s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, lua.LNumber(dt)); err != nil {
		return wrapLuaError(err)
	}
	return nil
}

func (s *Sandbox) refreshGlobals() {
	ctx := s.inst.Ctx()
	s.L.SetGlobal("time", lua.LNumber(ctx.Time))
	s.L.SetGlobal("speed", lua.LNumber(ctx.Speed))
	if s.mouse != nil {
		s.L.SetField(s.mouse, "x", lua.LNumber(ctx.MouseX))
		s.L.SetField(s.mouse, "y", lua.LNumber(ctx.MouseY))
	}
}

// Close releases the Lua state. The sandbox must not be used after.
func (s *Sandbox) Close() {
	s.L.Close()
}
