// Package statemachine holds explicit transition tables for state stored as
// column values. Every write of such a column is checked against its table.
package statemachine

import (
	"fmt"
	"slices"
	"sync"
)

// TransitionError is returned for a transition missing from the table
type TransitionError[T comparable] struct {
	Machine string
	From    T
	To      T
}

func (e *TransitionError[T]) Error() string {
	return fmt.Sprintf("%s: invalid transition %v → %v", e.Machine, e.From, e.To)
}

// StateMachine is a table of allowed transitions. It is immutable after
// construction in practice and safe for concurrent readers.
type StateMachine[T comparable] struct {
	mu   sync.RWMutex
	name string

	validTransitions map[T][]T
}

// New creates an empty table named name
func New[T comparable](name string) *StateMachine[T] {
	return &StateMachine[T]{
		name:             name,
		validTransitions: make(map[T][]T),
	}
}

// Allow registers valid transitions from a source state
func (sm *StateMachine[T]) Allow(from T, to ...T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, target := range to {
		if !slices.Contains(sm.validTransitions[from], target) {
			sm.validTransitions[from] = append(sm.validTransitions[from], target)
		}
	}
	return sm
}

// CanTransition checks if a transition from one state to another is valid
func (sm *StateMachine[T]) CanTransition(from, to T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Contains(sm.validTransitions[from], to)
}

// Validate returns a *TransitionError when from → to is not allowed
func (sm *StateMachine[T]) Validate(from, to T) error {
	if sm.CanTransition(from, to) {
		return nil
	}
	return &TransitionError[T]{Machine: sm.name, From: from, To: to}
}

// NextStates returns all valid next states from the given state
func (sm *StateMachine[T]) NextStates(from T) []T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Clone(sm.validTransitions[from])
}

// IsTerminal reports a state with no outgoing transitions
func (sm *StateMachine[T]) IsTerminal(state T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.validTransitions[state]) == 0
}
