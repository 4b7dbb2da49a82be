package texttemplar

import (
	"strconv"
	"strings"

	expro "github.com/expr-lang/expr"
)

// evalCond decides a conditional occurrence. The NAME form is plain
// truthiness of the stored value; the COND form hands the expression to
// expr-lang with the current parameter values as its environment.
func (d *Document) evalCond(site *condSite) (bool, error) {
	if site.cond == "" {
		pv, ok := d.store.values[site.name]
		if !ok {
			return false, nil
		}
		switch pv.kind {
		case paramScalar:
			return truthy(pv.scalar), nil
		case paramLoop:
			return len(pv.loop) > 0, nil
		default:
			return false, nil
		}
	}
	return d.evalExpr(site.cond)
}

// evalExpr compiles and runs a COND expression against a snapshot of the
// store. Compilation happens per evaluation because the environment is a
// plain value map that changes between renders. Scalars arrive as text, so
// expressions compare against strings or convert with num().
func (d *Document) evalExpr(src string) (bool, error) {
	env := d.store.snapshot()
	env["num"] = func(v any) float64 { return toFloat(v) }
	env["exists"] = func(v any) bool { return v != nil }
	env["length"] = func(v any) int {
		switch vv := v.(type) {
		case string:
			return len(vv)
		case []Params:
			return len(vv)
		case []any:
			return len(vv)
		case map[string]any:
			return len(vv)
		default:
			return 0
		}
	}

	program, err := expro.Compile(src, expro.Env(env), expro.AllowUndefinedVariables())
	if err != nil {
		return false, &EvalError{Expression: src, Cause: err}
	}
	out, err := expro.Run(program, env)
	if err != nil {
		return false, &EvalError{Expression: src, Cause: err}
	}
	if b, ok := out.(bool); ok {
		return b, nil
	}
	return truthy(out), nil
}

func toFloat(v any) float64 {
	switch vv := v.(type) {
	case float64:
		return vv
	case int:
		return float64(vv)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		return f
	default:
		return 0
	}
}
