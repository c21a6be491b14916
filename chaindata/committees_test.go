package chaindata

import (
	"testing"

	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/stategen"
)

type fakeShuffler struct {
	countPerSlot uint64
}

func (f fakeShuffler) CommitteeCountPerSlot(state stategen.State, epoch primitives.Epoch) (uint64, error) {
	return f.countPerSlot, nil
}

func (f fakeShuffler) BeaconCommittee(state stategen.State, slot primitives.Slot, committeeIndex uint64) ([]primitives.ValidatorIndex, error) {
	return []primitives.ValidatorIndex{primitives.ValidatorIndex(slot), primitives.ValidatorIndex(committeeIndex)}, nil
}

func TestGetCommitteesFromState_EnumeratesEverySlotAndIndex(t *testing.T) {
	params.SetActive(params.MinimalTestConfig())
	defer params.SetActive(params.MainnetConfig())

	cfg := params.BeaconConfig()
	shuffler := fakeShuffler{countPerSlot: 2}

	assignments, err := GetCommitteesFromState(shuffler, fakeState{slot: 0}, 0)
	if err != nil {
		t.Fatalf("GetCommitteesFromState() error = %v", err)
	}

	want := int(cfg.SlotsPerEpoch) * 2
	if len(assignments) != want {
		t.Fatalf("len(assignments) = %d, want %d", len(assignments), want)
	}

	first := assignments[0]
	if first.Slot != 0 || first.Index != 0 {
		t.Errorf("assignments[0] = %+v, want slot 0 index 0", first)
	}
	last := assignments[len(assignments)-1]
	if last.Slot != primitives.Slot(cfg.SlotsPerEpoch-1) || last.Index != 1 {
		t.Errorf("assignments[last] = %+v, want slot %d index 1", last, cfg.SlotsPerEpoch-1)
	}
}
