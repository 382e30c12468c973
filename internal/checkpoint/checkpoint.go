// Package checkpoint stores explicit copies of the environment keyed by
// block index, for later rollback by the host.
package checkpoint

import (
	"slices"

	"github.com/treeleaves30760/PyMD/internal/env"
)

// Checkpoint is one saved environment. Parts listed in State.Aliased could
// not be cloned and stay shared with the live environment.
type Checkpoint struct {
	BlockIndex int
	State      env.State
}

// Store maps block index to checkpoint. Not safe for concurrent use.
type Store struct {
	points map[int]*Checkpoint
}

// New creates an empty store.
func New() *Store {
	return &Store{points: make(map[int]*Checkpoint)}
}

// Save captures e and stores it under index, replacing any checkpoint
// already saved there.
func (s *Store) Save(index int, e *env.Environment) *Checkpoint {
	cp := &Checkpoint{BlockIndex: index, State: e.Capture()}
	s.points[index] = cp
	return cp
}

// Restore makes e match the checkpoint at index. It returns false, leaving e
// untouched, when no checkpoint exists. The saved state is never handed out
// directly, so one checkpoint can be restored any number of times.
func (s *Store) Restore(index int, e *env.Environment) bool {
	cp, ok := s.points[index]
	if !ok {
		return false
	}
	e.Restore(cp.State)
	return true
}

// Get returns the checkpoint at index.
func (s *Store) Get(index int) (*Checkpoint, bool) {
	cp, ok := s.points[index]
	return cp, ok
}

// Has reports whether a checkpoint exists at index.
func (s *Store) Has(index int) bool {
	_, ok := s.points[index]
	return ok
}

// Indices returns the saved indices in ascending order.
func (s *Store) Indices() []int {
	out := make([]int, 0, len(s.points))
	for i := range s.points {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of checkpoints.
func (s *Store) Len() int {
	return len(s.points)
}

// DropFrom removes every checkpoint at or after index.
func (s *Store) DropFrom(index int) {
	for i := range s.points {
		if i >= index {
			delete(s.points, i)
		}
	}
}

// Clear removes every checkpoint.
func (s *Store) Clear() {
	clear(s.points)
}
