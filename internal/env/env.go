// Package env holds the document-scoped variable environment and the
// snapshot codec that turns it into hashing input.
//
// An Environment maps binding names to Starlark values. It is owned by exactly
// one engine and is not safe for concurrent use.
package env

import (
	"fmt"
	"slices"
	"strings"

	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// ReservedPrefix marks internal names that never enter the environment.
const ReservedPrefix = "__"

// IsReserved reports whether name is internal and must not be persisted.
func IsReserved(name string) bool {
	return name == "" || strings.HasPrefix(name, ReservedPrefix)
}

// Environment is the shared, mutable set of named bindings.
//
// Values whose display form does not identify them, such as functions and
// builtins, carry an origin next to their display string in snapshots. The
// origin names whoever last bound the value: the short key of a block run, or
// a host sequence number for Set.
type Environment struct {
	vars    map[string]starlark.Value
	origins map[string]string
	hostSeq int
}

// New creates an empty environment.
func New() *Environment {
	return &Environment{
		vars:    make(map[string]starlark.Value),
		origins: make(map[string]string),
	}
}

// Get returns the value bound to name.
func (e *Environment) Get(name string) (starlark.Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Origin returns the origin recorded for name, or "" for values that
// identify themselves.
func (e *Environment) Origin(name string) string {
	return e.origins[name]
}

// Set binds name to v. Reserved names and nil values are rejected.
func (e *Environment) Set(name string, v starlark.Value) error {
	if IsReserved(name) {
		return fmt.Errorf("env: %q is a reserved name", name)
	}
	if v == nil {
		return fmt.Errorf("env: nil value for %q", name)
	}
	e.vars[name] = v
	if Identifies(v) {
		delete(e.origins, name)
		return nil
	}
	e.hostSeq++
	e.origins[name] = fmt.Sprintf("host:%d", e.hostSeq)
	return nil
}

// Bind applies the bindings left by one block run, by name-union. Opaque
// values that are new or rebound take origin; opaque values passed through
// unchanged keep the origin they had. Reserved names and nil values are
// skipped.
func (e *Environment) Bind(vars map[string]starlark.Value, origin string) {
	for name, v := range vars {
		if IsReserved(name) || v == nil {
			continue
		}
		prev, had := e.vars[name]
		e.vars[name] = v
		if Identifies(v) {
			delete(e.origins, name)
			continue
		}
		if _, stamped := e.origins[name]; !had || !stamped || !identical(prev, v) {
			e.origins[name] = origin
		}
	}
}

// Delete removes a binding. Missing names are ignored.
func (e *Environment) Delete(name string) {
	delete(e.vars, name)
	delete(e.origins, name)
}

// Len returns the number of bindings.
func (e *Environment) Len() int {
	return len(e.vars)
}

// Names returns the bound names in sorted order.
func (e *Environment) Names() []string {
	return sortedNames(e.vars)
}

// Clear removes every binding.
func (e *Environment) Clear() {
	clear(e.vars)
	clear(e.origins)
}

// Values returns a shallow copy of the bindings.
func (e *Environment) Values() map[string]starlark.Value {
	out := make(map[string]starlark.Value, len(e.vars))
	for name, v := range e.vars {
		out[name] = v
	}
	return out
}

// Snapshot builds the sorted string view of the current bindings.
func (e *Environment) Snapshot() ir.Snapshot {
	return buildSnapshot(e.vars, e.origins)
}

// buildSnapshot converts bindings into a snapshot sorted by name. Values that
// fail to stringify are dropped.
func buildSnapshot(vars map[string]starlark.Value, origins map[string]string) ir.Snapshot {
	snap := make(ir.Snapshot, 0, len(vars))
	for name, v := range vars {
		if IsReserved(name) {
			continue
		}
		repr, ok := display(v, origins[name])
		if !ok {
			continue
		}
		snap = append(snap, ir.Binding{Name: name, Repr: repr})
	}
	slices.SortFunc(snap, func(a, b ir.Binding) int {
		return strings.Compare(a.Name, b.Name)
	})
	return snap
}

// display is the snapshot string of one binding.
func display(v starlark.Value, origin string) (string, bool) {
	repr, ok := Stringify(v)
	if !ok {
		return "", false
	}
	if origin != "" {
		repr += " @" + origin
	}
	return repr, true
}

func sortedNames(vars map[string]starlark.Value) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Stringifier lets host values report that they have no stable display form.
type Stringifier interface {
	SnapshotString() (string, error)
}

// Stringify returns the display string of v, or false when v cannot be
// converted. A panicking String method counts as a failure.
func Stringify(v starlark.Value) (repr string, ok bool) {
	if v == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			repr, ok = "", false
		}
	}()
	if s, isStringifier := v.(Stringifier); isStringifier {
		out, err := s.SnapshotString()
		if err != nil {
			return "", false
		}
		return out, true
	}
	return v.String(), true
}
