// Package composite merges the two patch surfaces onto the output
// surface using a selectable, parameterized blend template. Templates
// are small patch-language snippets executed through the sandbox; their
// parameters are read live out of a shared bag so value changes never
// trigger a re-execution.
package composite

// DefaultMode is the template used when no mode is requested or the
// requested mode is unknown.
const DefaultMode = "blend"

// ParamSpec declares one numeric template parameter and its range.
type ParamSpec struct {
	Key     string  `json:"key"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
}

// Template is one built-in composite mode. Source references the two
// patch surfaces as src(a) and src(b), and reads live parameter values
// through p(key).
type Template struct {
	ID     string      `json:"id"`
	Params []ParamSpec `json:"params"`
	Source string      `json:"-"`
}

var templates = []Template{
	{
		ID:     "add",
		Params: []ParamSpec{{Key: "amount", Min: 0, Max: 2, Default: 1, Step: 0.01}},
		Source: `src(a):add(src(b), p("amount")):out(o0)`,
	},
	{
		ID:     "blend",
		Params: []ParamSpec{{Key: "mix", Min: 0, Max: 1, Default: 0.5, Step: 0.01}},
		Source: `src(a):blend(src(b), p("mix")):out(o0)`,
	},
	{
		ID:     "diff",
		Source: `src(a):diff(src(b)):out(o0)`,
	},
	{
		ID:     "mult",
		Params: []ParamSpec{{Key: "amount", Min: 0, Max: 1, Default: 1, Step: 0.01}},
		Source: `src(a):mult(src(b), p("amount")):out(o0)`,
	},
	{
		ID:     "modulate",
		Params: []ParamSpec{{Key: "amount", Min: 0, Max: 1, Default: 0.1, Step: 0.005}},
		Source: `src(a):modulate(src(b), p("amount")):out(o0)`,
	},
	{
		ID: "luma",
		Params: []ParamSpec{
			{Key: "threshold", Min: 0, Max: 1, Default: 0.5, Step: 0.01},
			{Key: "tolerance", Min: 0, Max: 1, Default: 0.1, Step: 0.01},
		},
		Source: `src(a):mask(src(b):luma(p("threshold"), p("tolerance"))):out(o0)`,
	},
}

// Lookup returns the template for id.
func Lookup(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Modes lists the built-in template descriptors in declaration order.
func Modes() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}
