package texttemplar

import (
	"fmt"
	"sort"
	"strings"
)

// Params is one repetition of a loop block: inner parameter name to value.
// Values may themselves be sequences of Params for nested loops.
type Params map[string]any

type paramKind int

const (
	paramUnset paramKind = iota
	paramScalar
	paramLoop
)

type paramValue struct {
	kind   paramKind
	scalar string
	loop   []Params
}

// paramStore holds the pending values of one Document. Names are declared
// during parsing; strict mode rejects everything else.
type paramStore struct {
	strict bool
	known  map[string]struct{}
	values map[string]*paramValue
}

func newParamStore(strict bool) *paramStore {
	return &paramStore{
		strict: strict,
		known:  map[string]struct{}{},
		values: map[string]*paramValue{},
	}
}

// declare registers a name found in the template, initially unset.
func (s *paramStore) declare(name string) {
	if _, ok := s.known[name]; ok {
		return
	}
	s.known[name] = struct{}{}
	s.values[name] = &paramValue{}
}

func (s *paramStore) set(name string, value any) error {
	lower := strings.ToLower(name)
	if _, ok := s.known[lower]; !ok {
		if s.strict {
			return &UnknownParamError{Name: name}
		}
		// Relaxed mode: accept the value; nothing in the template will
		// ever read it.
		s.values[lower] = &paramValue{}
	}
	pv := s.values[lower]
	switch v := value.(type) {
	case nil:
		pv.kind = paramUnset
		pv.scalar = ""
		pv.loop = nil
	case []Params:
		pv.kind = paramLoop
		pv.scalar = ""
		pv.loop = copyLoop(v)
	case []map[string]any:
		rows := make([]Params, len(v))
		for i, m := range v {
			rows[i] = Params(m)
		}
		pv.kind = paramLoop
		pv.scalar = ""
		pv.loop = copyLoop(rows)
	case []any:
		if rows, ok := loopRows(v); ok {
			pv.kind = paramLoop
			pv.scalar = ""
			pv.loop = copyLoop(rows)
			break
		}
		pv.kind = paramScalar
		pv.scalar = toString(v)
		pv.loop = nil
	default:
		pv.kind = paramScalar
		pv.scalar = toString(v)
		pv.loop = nil
	}
	return nil
}

func (s *paramStore) get(name string) (any, error) {
	lower := strings.ToLower(name)
	pv, ok := s.values[lower]
	if !ok {
		if s.strict {
			return nil, &UnknownParamError{Name: name}
		}
		return nil, nil
	}
	switch pv.kind {
	case paramScalar:
		return pv.scalar, nil
	case paramLoop:
		return copyLoop(pv.loop), nil
	default:
		return nil, nil
	}
}

func (s *paramStore) names() []string {
	out := make([]string, 0, len(s.known))
	for name := range s.known {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *paramStore) clearAll() {
	for name := range s.values {
		if _, ok := s.known[name]; !ok {
			delete(s.values, name)
			continue
		}
		s.values[name] = &paramValue{}
	}
}

// fresh returns an empty store with the same declared names.
func (s *paramStore) fresh() *paramStore {
	ns := newParamStore(s.strict)
	for name := range s.known {
		ns.declare(name)
	}
	return ns
}

func (s *paramStore) scalarText(name string) string {
	if pv, ok := s.values[name]; ok && pv.kind == paramScalar {
		return pv.scalar
	}
	return ""
}

func (s *paramStore) loopValue(name string) []Params {
	if pv, ok := s.values[name]; ok && pv.kind == paramLoop {
		return pv.loop
	}
	return nil
}

// snapshot exposes the current values by name, for condition expressions.
// Unset names map to nil.
func (s *paramStore) snapshot() map[string]any {
	env := make(map[string]any, len(s.values))
	for name, pv := range s.values {
		switch pv.kind {
		case paramScalar:
			env[name] = pv.scalar
		case paramLoop:
			env[name] = pv.loop
		default:
			env[name] = nil
		}
	}
	return env
}

// loopRows interprets a []any as loop data when every element is a mapping.
func loopRows(v []any) ([]Params, bool) {
	if len(v) == 0 {
		return nil, true
	}
	rows := make([]Params, len(v))
	for i, el := range v {
		switch m := el.(type) {
		case Params:
			rows[i] = m
		case map[string]any:
			rows[i] = Params(m)
		default:
			return nil, false
		}
	}
	return rows, true
}

// copyLoop deep-copies loop data so later mutation of the caller's maps and
// slices cannot reach the stored state.
func copyLoop(rows []Params) []Params {
	out := make([]Params, len(rows))
	for i, row := range rows {
		out[i] = copyParams(row)
	}
	return out
}

func copyParams(p Params) Params {
	np := make(Params, len(p))
	for k, v := range p {
		np[k] = copyValue(v)
	}
	return np
}

func copyValue(v any) any {
	switch vv := v.(type) {
	case Params:
		return copyParams(vv)
	case map[string]any:
		return copyParams(Params(vv))
	case []Params:
		return copyLoop(vv)
	case []map[string]any:
		rows := make([]Params, len(vv))
		for i, m := range vv {
			rows[i] = Params(m)
		}
		return copyLoop(rows)
	case []any:
		out := make([]any, len(vv))
		for i, el := range vv {
			out[i] = copyValue(el)
		}
		return out
	default:
		return vv
	}
}

// -----------------------------
// Public parameter API
// -----------------------------

// Set stores a pending value. Scalars may be strings, booleans or numbers
// and are kept as text; a sequence of mappings is loop data, one mapping
// per repetition, and is defensively copied. Setting nil resets the name to
// unset. A name used by both a TMPL_VAR and a TMPL_LOOP shares one slot: a
// scalar value feeds the var occurrences, a sequence feeds the loop
// occurrences, never both at once.
func (d *Document) Set(name string, value any) error {
	return d.store.set(name, value)
}

// Get returns the stored value: a string for scalars, a []Params for loop
// data, nil when unset.
func (d *Document) Get(name string) (any, error) {
	return d.store.get(name)
}

// Names returns every parameter name the template declares, sorted.
func (d *Document) Names() []string {
	return d.store.names()
}

// ClearAll resets every parameter to unset.
func (d *Document) ClearAll() {
	d.store.clearAll()
}

// toString renders a scalar parameter value as text.
func toString(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		if vv == float64(int64(vv)) {
			return fmt.Sprintf("%d", int64(vv))
		}
		return fmt.Sprintf("%v", vv)
	case bool:
		if vv {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", vv)
	}
}
