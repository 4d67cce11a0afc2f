// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import "time"

// State is a step of the per-entry state machine.
type State int

const (
	Idle State = iota
	Fetching
	Extracting
	Resolving
	Persisting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Extracting:
		return "extracting"
	case Resolving:
		return "resolving"
	case Persisting:
		return "persisting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether s ends an entry.
func (s State) Terminal() bool { return s == Done || s == Failed }

// next lists the legal successors of each state. Failed is reachable from
// every state but Idle; an empty extraction goes from Resolving straight
// to Done.
var next = map[State][]State{
	Idle:       {Fetching},
	Fetching:   {Extracting, Failed},
	Extracting: {Resolving, Failed},
	Resolving:  {Persisting, Done, Failed},
	Persisting: {Done, Failed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the history of one queue entry within a run.
type Outcome struct {
	SourceID string
	States   []State
	Err      error

	// Parked is set when the entry left the queue for manual review.
	Parked bool
	// Empty is set when no rule matched; nothing was persisted.
	Empty bool

	Facts    int
	Minted   []string
	Duration time.Duration
}

// State returns the last state reached.
func (o *Outcome) State() State {
	if len(o.States) == 0 {
		return Idle
	}
	return o.States[len(o.States)-1]
}

// enter moves o to s. Illegal moves panic: they are programming errors.
func (o *Outcome) enter(s State) {
	if from := o.State(); !CanTransition(from, s) {
		panic("pipeline: illegal transition " + from.String() + " -> " + s.String())
	}
	o.States = append(o.States, s)
}
