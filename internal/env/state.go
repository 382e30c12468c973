package env

import (
	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// State is a detached copy of an environment: its bindings and their
// origins. Values shared between bindings stay shared inside one State.
//
// Aliased lists the bindings that held something Clone could not copy, such
// as a function. Those parts are shared with the live environment.
type State struct {
	Values  map[string]starlark.Value
	Origins map[string]string
	Aliased []string
}

// Snapshot returns the sorted string view of the state.
func (s State) Snapshot() ir.Snapshot {
	return buildSnapshot(s.Values, s.Origins)
}

// Capture deep-copies every binding with one clone table, so two names that
// refer to the same list still do in the copy.
func (e *Environment) Capture() State {
	c := newCloner()
	st := State{
		Values:  make(map[string]starlark.Value, len(e.vars)),
		Origins: make(map[string]string, len(e.origins)),
	}
	for _, name := range sortedNames(e.vars) {
		c.aliased = false
		st.Values[name] = c.clone(e.vars[name])
		if c.aliased {
			st.Aliased = append(st.Aliased, name)
		}
		if origin, ok := e.origins[name]; ok {
			st.Origins[name] = origin
		}
	}
	return st
}

// Apply brings every binding named in s to its saved display. Bindings that
// already display the same keep their live value; the rest are replaced by
// fresh copies cloned together, so s can be applied any number of times.
// Names absent from s are left alone.
func (e *Environment) Apply(s State) {
	c := newCloner()
	for _, name := range sortedNames(s.Values) {
		if IsReserved(name) || s.Values[name] == nil {
			continue
		}
		origin := s.Origins[name]
		if e.displaysAs(name, s.Values[name], origin) {
			continue
		}
		e.vars[name] = c.clone(s.Values[name])
		if origin == "" {
			delete(e.origins, name)
		} else {
			e.origins[name] = origin
		}
	}
}

// Restore makes the environment match s exactly: names absent from s are
// removed, then s is applied.
func (e *Environment) Restore(s State) {
	for name := range e.vars {
		if _, ok := s.Values[name]; !ok {
			e.Delete(name)
		}
	}
	e.Apply(s)
}

func (e *Environment) displaysAs(name string, want starlark.Value, origin string) bool {
	cur, ok := e.vars[name]
	if !ok || e.origins[name] != origin {
		return false
	}
	have, ok := Stringify(cur)
	if !ok {
		return false
	}
	saved, ok := Stringify(want)
	return ok && have == saved
}
