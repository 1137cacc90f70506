package capability

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/patchmix/patchmix/internal/engine"
)

const chainTypeName = "patchmix.chain"

func registerChainType(L *lua.LState) {
	if L.GetTypeMetatable(chainTypeName) != lua.LNil {
		return
	}
	mt := L.NewTypeMetatable(chainTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), chainMethods))
}

var chainMethods = map[string]lua.LGFunction{
	"rotate":     chainRotate,
	"scale":      chainScale,
	"tile":       chainTile,
	"kaleid":     chainKaleid,
	"scroll":     chainScroll,
	"brightness": chainBrightness,
	"contrast":   chainContrast,
	"invert":     chainInvert,
	"saturate":   chainSaturate,
	"luma":       chainLuma,
	"colorama":   chainColorama,
	"add":        chainAdd,
	"blend":      chainBlend,
	"diff":       chainDiff,
	"mult":       chainMult,
	"mask":       chainMask,
	"modulate":   chainModulate,
	"modscale":   chainModScale,
	"out":        chainOut,
}

func pushChain(L *lua.LState, c *engine.Chain) int {
	ud := L.NewUserData()
	ud.Value = c
	L.SetMetatable(ud, L.GetTypeMetatable(chainTypeName))
	L.Push(ud)
	return 1
}

func checkChain(L *lua.LState, n int) *engine.Chain {
	ud := L.CheckUserData(n)
	if c, ok := ud.Value.(*engine.Chain); ok {
		return c
	}
	L.ArgError(n, "chain expected")
	return nil
}

// funcArg adapts a patch-supplied Lua function into a chain argument
// re-resolved once per frame with the current instance time.
type funcArg struct {
	L  *lua.LState
	fn *lua.LFunction
}

func (a *funcArg) Resolve(t float64) (float64, error) {
	if err := a.L.CallByParam(lua.P{Fn: a.fn, NRet: 1, Protect: true}, lua.LNumber(t)); err != nil {
		return 0, err
	}
	ret := a.L.Get(-1)
	a.L.Pop(1)
	if n, ok := ret.(lua.LNumber); ok {
		return float64(n), nil
	}
	return 0, fmt.Errorf("dynamic argument returned %s, want number", ret.Type())
}

// arg converts the value at stack position n into a chain argument,
// using def when absent. Numbers become constants; functions are
// re-resolved per frame.
func arg(L *lua.LState, n int, def float64) engine.Arg {
	v := L.Get(n)
	switch val := v.(type) {
	case *lua.LNilType:
		return engine.Const(def)
	case lua.LNumber:
		return engine.Const(float64(val))
	case *lua.LFunction:
		return &funcArg{L: L, fn: val}
	default:
		L.ArgError(n, "number or function expected")
		return engine.Const(def)
	}
}

func genOsc(L *lua.LState) int {
	return pushChain(L, engine.Osc(arg(L, 1, 60), arg(L, 2, 0.1), arg(L, 3, 0)))
}

func genNoise(L *lua.LState) int {
	return pushChain(L, engine.Noise(arg(L, 1, 10), arg(L, 2, 0.1)))
}

func genGradient(L *lua.LState) int {
	return pushChain(L, engine.Gradient(arg(L, 1, 0)))
}

func genSolid(L *lua.LState) int {
	return pushChain(L, engine.Solid(arg(L, 1, 0), arg(L, 2, 0), arg(L, 3, 0), arg(L, 4, 1)))
}

func genShape(L *lua.LState) int {
	return pushChain(L, engine.Shape(arg(L, 1, 3), arg(L, 2, 0.3), arg(L, 3, 0.01)))
}

func genSrc(L *lua.LState) int {
	ud := L.CheckUserData(1)
	switch ref := ud.Value.(type) {
	case *outputRef:
		return pushChain(L, engine.Src(ref.inst.Output(ref.index)))
	case *slotRef:
		return pushChain(L, engine.Src(ref.binding))
	case *samplerRef:
		return pushChain(L, engine.Src(ref.src))
	default:
		L.ArgError(1, "source expected (o0..o3, s0..s3)")
		return 0
	}
}

func chainRotate(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Rotate(arg(L, 2, 0), arg(L, 3, 0)))
}

func chainScale(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Scale(arg(L, 2, 1.5)))
}

func chainTile(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Tile(arg(L, 2, 3), arg(L, 3, 3)))
}

func chainKaleid(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Kaleid(arg(L, 2, 4)))
}

func chainScroll(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Scroll(arg(L, 2, 0.5), arg(L, 3, 0.5)))
}

func chainBrightness(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Brightness(arg(L, 2, 0.4)))
}

func chainContrast(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Contrast(arg(L, 2, 1.6)))
}

func chainInvert(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Invert(arg(L, 2, 1)))
}

func chainSaturate(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Saturate(arg(L, 2, 2)))
}

func chainLuma(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Luma(arg(L, 2, 0.5), arg(L, 3, 0.1)))
}

func chainColorama(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Colorama(arg(L, 2, 0.005)))
}

func otherChain(L *lua.LState, n int) *engine.Chain {
	ud := L.CheckUserData(n)
	if c, ok := ud.Value.(*engine.Chain); ok {
		return c
	}
	L.ArgError(n, "chain expected")
	return nil
}

func chainAdd(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Add(otherChain(L, 2), arg(L, 3, 1)))
}

func chainBlend(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Blend(otherChain(L, 2), arg(L, 3, 0.5)))
}

func chainDiff(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Diff(otherChain(L, 2)))
}

func chainMult(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Mult(otherChain(L, 2), arg(L, 3, 1)))
}

func chainMask(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Mask(otherChain(L, 2)))
}

func chainModulate(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).Modulate(otherChain(L, 2), arg(L, 3, 0.1)))
}

func chainModScale(L *lua.LState) int {
	return pushChain(L, checkChain(L, 1).ModScale(otherChain(L, 2), arg(L, 3, 1)))
}

// genOut is the global out(chain, target) form. Called with no chain
// it does nothing, so a patch that only calls out() still succeeds.
func genOut(L *lua.LState) int {
	v := L.Get(1)
	if v == lua.LNil {
		return 0
	}
	ud, ok := v.(*lua.LUserData)
	if !ok {
		L.ArgError(1, "chain expected")
		return 0
	}
	c, ok := ud.Value.(*engine.Chain)
	if !ok {
		L.ArgError(1, "chain expected")
		return 0
	}
	return bindOut(L, c, 2)
}

// chainOut binds the chain to an output buffer (o0 by default). The
// chain then renders on every engine tick until rebound or reset.
func chainOut(L *lua.LState) int {
	return bindOut(L, checkChain(L, 1), 2)
}

func bindOut(L *lua.LState, c *engine.Chain, targetPos int) int {
	target := L.Get(targetPos)
	if target == lua.LNil {
		target = L.GetGlobal("o0")
	}
	ud, ok := target.(*lua.LUserData)
	if !ok {
		L.ArgError(targetPos, "output buffer expected")
		return 0
	}
	ref, ok := ud.Value.(*outputRef)
	if !ok {
		L.ArgError(targetPos, "output buffer expected")
		return 0
	}

	ref.inst.BindOutput(ref.index, c)
	return 0
}
