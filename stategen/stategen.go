// Package stategen winds a beacon state forward to a target slot by
// replaying empty-slot state transitions one slot at a time.
package stategen

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/prysmaticlabs/attestpipe/primitives"
)

var log = logrus.WithField("prefix", "stategen")

// ErrFutureSlot is returned when the requested target slot is ahead of
// the best slot currently known to the chain.
var ErrFutureSlot = errors.New("requested target slot is ahead of the best known slot")

// State is the minimal surface the regenerator needs from a beacon
// state; the state's internal representation is an external
// collaborator.
type State interface {
	Slot() primitives.Slot
}

// Transitioner advances a state by exactly one slot, running the
// epoch-boundary transition when the new slot crosses one. This is the
// state-transition function itself, out of scope here; Regenerate only
// drives it one step at a time.
type Transitioner interface {
	ProcessSlot(ctx context.Context, state State) (State, error)
}

// Regenerator winds a pre-state forward to a target slot.
type Regenerator struct {
	transition Transitioner
}

// New builds a Regenerator over the given state-transition
// collaborator.
func New(transition Transitioner) *Regenerator {
	return &Regenerator{transition: transition}
}

// Regenerate advances preState to targetSlot, one slot transition at a
// time, checking ctx between each step so a long replay can be
// cancelled. It short-circuits if preState is already at targetSlot,
// and fails with ErrFutureSlot if targetSlot is beyond bestSlot (the
// most advanced slot the chain has actually reached). A transition
// error partway through is reported rather than silently discarded,
// leaving the caller to decide whether to treat it as "no such state."
func (r *Regenerator) Regenerate(ctx context.Context, preState State, targetSlot, bestSlot primitives.Slot) (State, error) {
	ctx, span := trace.StartSpan(ctx, "stategen.Regenerate")
	defer span.End()

	if preState.Slot() == targetSlot {
		return preState, nil
	}
	if targetSlot > bestSlot {
		log.WithField("targetSlot", targetSlot).Debug("Attempted to wind forward to a future state")
		return nil, ErrFutureSlot
	}
	if preState.Slot() > targetSlot {
		return nil, errors.Errorf("state slot %d is already past target slot %d", preState.Slot(), targetSlot)
	}

	state := preState
	for state.Slot() < targetSlot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		state, err = r.transition.ProcessSlot(ctx, state)
		if err != nil {
			return nil, errors.Wrap(err, "could not process slot")
		}
	}
	return state, nil
}
