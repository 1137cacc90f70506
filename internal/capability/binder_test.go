package capability

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/patchmix/patchmix/internal/engine"
)

func TestNamesCoverSurface(t *testing.T) {
	names := Names()
	want := map[string]bool{}
	for _, n := range []string{
		"osc", "noise", "gradient", "solid", "shape", "src", "out",
		"o0", "o1", "o2", "o3", "s0", "s1", "s2", "s3",
		"time", "speed", "mouse", "synth",
	} {
		want[n] = true
	}
	if len(names) != len(want) {
		t.Fatalf("Names() has %d entries, want %d: %v", len(names), len(want), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected capability %q", n)
		}
	}
}

func TestBindMatchesNames(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	inst := engine.New("A", 8, 8)

	bindings := Bind(L, inst)
	names := Names()
	if len(bindings) != len(names) {
		t.Fatalf("Bind returned %d bindings, Names %d", len(bindings), len(names))
	}
	for i, b := range bindings {
		if b.Name != names[i] {
			t.Errorf("binding %d = %q, Names says %q", i, b.Name, names[i])
		}
		if b.Value == lua.LNil {
			t.Errorf("binding %q has nil value", b.Name)
		}
	}
}

func TestChainBuildsThroughLua(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	inst := engine.New("A", 8, 8)

	for _, b := range Bind(L, inst) {
		L.SetGlobal(b.Name, b.Value)
	}

	if err := L.DoString(`solid(1, 0, 0, 1):brightness(0.2):out(o0)`); err != nil {
		t.Fatalf("chain build failed: %v", err)
	}
	if err := inst.Render(); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	px := inst.Output(0).Frame().RGBAAt(4, 4)
	if px.R == 0 {
		t.Error("bound chain did not render into o0")
	}
}

func TestBareOutWithoutChainIsNoop(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	inst := engine.New("A", 8, 8)

	for _, b := range Bind(L, inst) {
		L.SetGlobal(b.Name, b.Value)
	}

	if err := L.DoString(`out()`); err != nil {
		t.Fatalf("bare out() should succeed: %v", err)
	}
}
