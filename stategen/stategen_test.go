package stategen

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/prysmaticlabs/attestpipe/primitives"
)

type fakeState struct{ slot primitives.Slot }

func (s fakeState) Slot() primitives.Slot { return s.slot }

type stepTransitioner struct {
	failAt primitives.Slot
}

func (t stepTransitioner) ProcessSlot(ctx context.Context, state State) (State, error) {
	next := state.Slot() + 1
	if t.failAt != 0 && next == t.failAt {
		return nil, errors.New("simulated transition failure")
	}
	return fakeState{slot: next}, nil
}

func TestRegenerate_ShortCircuitsAtSameSlot(t *testing.T) {
	r := New(stepTransitioner{})
	got, err := r.Regenerate(context.Background(), fakeState{slot: 5}, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slot() != 5 {
		t.Fatalf("expected slot 5, got %d", got.Slot())
	}
}

func TestRegenerate_RejectsFutureSlot(t *testing.T) {
	r := New(stepTransitioner{})
	_, err := r.Regenerate(context.Background(), fakeState{slot: 5}, 20, 10)
	if !errors.Is(err, ErrFutureSlot) {
		t.Fatalf("expected ErrFutureSlot, got %v", err)
	}
}

func TestRegenerate_AdvancesOneSlotAtATime(t *testing.T) {
	r := New(stepTransitioner{})
	got, err := r.Regenerate(context.Background(), fakeState{slot: 5}, 8, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slot() != 8 {
		t.Fatalf("expected slot 8, got %d", got.Slot())
	}
}

func TestRegenerate_PropagatesTransitionError(t *testing.T) {
	r := New(stepTransitioner{failAt: 7})
	_, err := r.Regenerate(context.Background(), fakeState{slot: 5}, 8, 10)
	if err == nil {
		t.Fatalf("expected transition error to propagate")
	}
}

func TestRegenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(stepTransitioner{})
	_, err := r.Regenerate(ctx, fakeState{slot: 5}, 8, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
