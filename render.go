package texttemplar

import (
	"sort"
	"strings"
)

// Render produces the final text. The Document's structural fields are only
// read; per-render state lives in an overlay keyed by line index, so two
// successive calls with an unchanged parameter store produce byte-identical
// output. Unset scalars render as empty text and unset loops as zero
// repetitions; the only render-time failures are condition evaluation
// errors and, in strict mode, unknown keys inside loop iteration mappings.
func (d *Document) Render() (string, error) {
	overlay := make(map[int]string)
	current := func(i int) string {
		if t, ok := overlay[i]; ok {
			return t
		}
		return d.lines[i].text
	}

	// Scalar substitution, sorted by name for deterministic output when one
	// value happens to contain another name's tag text.
	names := make([]string, 0, len(d.placeholders))
	for name := range d.placeholders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ph := d.placeholders[name]
		val := d.store.scalarText(name)
		for _, li := range ph.lines {
			overlay[li] = ph.rx.ReplaceAllLiteralString(current(li), val)
		}
	}

	// Loop expansion: each occurrence renders the whole iteration sequence
	// and replaces exactly its own marker.
	for _, name := range d.blockNames {
		iterations := d.store.loopValue(name)
		for _, site := range d.blocks[name] {
			out, err := renderIterations(site.body, iterations)
			if err != nil {
				return "", err
			}
			overlay[site.line] = strings.Replace(current(site.line), site.marker, out, 1)
		}
	}

	// Conditionals: the chosen branch renders once with the enclosing
	// values in scope.
	for _, site := range d.conds {
		truth, err := d.evalCond(site)
		if err != nil {
			return "", err
		}
		branch := site.then
		if !truth {
			branch = site.els
		}
		out := ""
		if branch != nil {
			out, err = renderBranch(branch, d.store)
			if err != nil {
				return "", err
			}
		}
		overlay[site.line] = strings.Replace(current(site.line), site.marker, out, 1)
	}

	parts := make([]string, 0, len(d.lines))
	for i, ln := range d.lines {
		if ln.skipped {
			continue
		}
		parts = append(parts, current(i))
	}
	return strings.Join(parts, "\n"), nil
}

// renderIterations renders one loop occurrence: the body once per
// iteration mapping, clearing the body's store between iterations so no
// value leaks into the next repetition or a later render.
func renderIterations(body *Document, iterations []Params) (string, error) {
	var b strings.Builder
	for _, it := range iterations {
		if err := applyIteration(body, it); err != nil {
			body.store.clearAll()
			return "", err
		}
		out, err := body.Render()
		body.store.clearAll()
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

func applyIteration(body *Document, it Params) error {
	for k, v := range it {
		if err := body.store.set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// renderBranch renders a conditional branch once, propagating the parent's
// current values for every name the branch declares.
func renderBranch(branch *Document, parent *paramStore) (string, error) {
	for name := range branch.store.known {
		pv, ok := parent.values[name]
		if !ok || pv.kind == paramUnset {
			continue
		}
		switch pv.kind {
		case paramScalar:
			if err := branch.store.set(name, pv.scalar); err != nil {
				return "", err
			}
		case paramLoop:
			if err := branch.store.set(name, pv.loop); err != nil {
				return "", err
			}
		}
	}
	out, err := branch.Render()
	branch.store.clearAll()
	return out, err
}

// truthy decides TMPL_IF NAME=... and non-boolean condition results. Empty
// text and the literal "0" are false, matching the engine's text-only view
// of scalars.
func truthy(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != "" && vv != "0"
	case []Params:
		return len(vv) > 0
	case []any:
		return len(vv) > 0
	case map[string]any:
		return len(vv) > 0
	case float64:
		return vv != 0
	case int:
		return vv != 0
	default:
		return true
	}
}
