package core

import "fmt"

// State is the lifecycle state of a Task.
//
// Transitions (source -> operation -> destination):
//
//	IDLE     run -> RUNNING, stop -> STOPPED, reset -> IDLE
//	RUNNING  run (no-op), stop -> STOPPED, pause -> PAUSED
//	PAUSED   stop -> STOPPED, pause (no-op), resume -> RUNNING
//	STOPPED  run -> RUNNING, stop (no-op), reset -> IDLE
//	ERROR    stop -> STOPPED, reset -> IDLE
//
// Every other combination fails with ErrNotSupported. A Task only enters
// ERROR from RUNNING, when a job fails.
type State int32

const (
	StateUninitialized State = iota
	StateIdle
	StateRunning
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Op is a control operation accepted by a Task.
type Op int

const (
	OpRun Op = iota
	OpStop
	OpPause
	OpResume
	OpReset
)

func (o Op) String() string {
	switch o {
	case OpRun:
		return "run"
	case OpStop:
		return "stop"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpReset:
		return "reset"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// ParseOp returns the Op named by s, as printed by Op.String.
func ParseOp(s string) (Op, error) {
	for op := OpRun; op <= OpReset; op++ {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown op %q: %w", s, ErrInvalidArgument)
}

// transition describes how an operation applies to a source state.
type transition struct {
	to   State
	ok   bool // operation allowed
	noop bool // allowed, but nothing changes and no request is posted
}

// transitionTable is indexed by [State][Op].
var transitionTable = map[State]map[Op]transition{
	StateIdle: {
		OpRun:   {to: StateRunning, ok: true},
		OpStop:  {to: StateStopped, ok: true},
		OpReset: {to: StateIdle, ok: true},
	},
	StateRunning: {
		OpRun:   {to: StateRunning, ok: true, noop: true},
		OpStop:  {to: StateStopped, ok: true},
		OpPause: {to: StatePaused, ok: true},
	},
	StatePaused: {
		OpStop:   {to: StateStopped, ok: true},
		OpPause:  {to: StatePaused, ok: true, noop: true},
		OpResume: {to: StateRunning, ok: true},
	},
	StateStopped: {
		OpRun:   {to: StateRunning, ok: true},
		OpStop:  {to: StateStopped, ok: true, noop: true},
		OpReset: {to: StateIdle, ok: true},
	},
	StateError: {
		OpStop:  {to: StateStopped, ok: true},
		OpReset: {to: StateIdle, ok: true},
	},
}

// lookupTransition returns the transition for op applied in state s.
// ok is false when the table has no entry.
func lookupTransition(s State, op Op) transition {
	return transitionTable[s][op]
}

// NextState reports the state op would produce from s, and whether op is allowed.
func NextState(s State, op Op) (State, bool) {
	tr := lookupTransition(s, op)
	if !tr.ok {
		return s, false
	}
	return tr.to, true
}
