// Package engine orchestrates the six-operator kernel contract over a
// tree: P2M at the leaves, M2M up to the root, M2L and L2L back down,
// then P2P and L2P at the leaves. Several execution strategies share this
// contract — sequential, thread-parallel, task-parallel, and
// distributed — differing only in how work within and across levels is
// scheduled.
package engine

import (
	"context"

	"github.com/scalfmm-go/fmm/internal/errors"
)

// Engine is the contract every execution strategy satisfies: prepare
// allocates/validates kernel state, Run executes the full pass schedule
// once. Neither is safe to call twice; construct a new engine per run.
type Engine interface {
	Prepare() error
	Run(ctx context.Context) error
}

// State is the lifecycle of one engine run.
type State int

const (
	StateNew State = iota
	StatePrepared
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Stats accumulates per-run counters reported after Run completes.
type Stats struct {
	Leaves          int
	P2MCalls        int
	M2MCalls        int
	M2LCalls        int
	L2LCalls        int
	P2PCalls        int
	L2PCalls        int
	Interactions    int // total near-field particle-container pairs evaluated
	CrossGroupEdges int // cross-group cell-pair records left after reduceOutOfBlock (Task engine only)
}

// lifecycle is embedded by every concrete engine to share the
// New → Prepared → Running → Completed transition checks.
type lifecycle struct {
	state State
}

func (l *lifecycle) prepare() error {
	if l.state != StateNew {
		return errors.NewLifecycleError(l.state.String(), StateNew.String())
	}
	l.state = StatePrepared
	return nil
}

func (l *lifecycle) start() error {
	if l.state != StatePrepared {
		return errors.NewLifecycleError(l.state.String(), StatePrepared.String())
	}
	l.state = StateRunning
	return nil
}

func (l *lifecycle) complete() {
	l.state = StateCompleted
}

func (l *lifecycle) State() State { return l.state }
