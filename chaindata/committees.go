package chaindata

import (
	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/stategen"
)

// CommitteeAssignment names the validator indices assigned to one
// committee at one slot.
type CommitteeAssignment struct {
	Committee []primitives.ValidatorIndex
	Index     uint64
	Slot      primitives.Slot
}

// CommitteeShuffler computes the shuffled committee membership for a
// state; the shuffling algorithm itself is an external collaborator
// (it depends on the full validator registry and seed randomness
// carried in the state).
type CommitteeShuffler interface {
	CommitteeCountPerSlot(state stategen.State, epoch primitives.Epoch) (uint64, error)
	BeaconCommittee(state stategen.State, slot primitives.Slot, committeeIndex uint64) ([]primitives.ValidatorIndex, error)
}

// GetCommitteesFromState enumerates every committee assignment for
// every slot in epoch, using shuffler to compute membership.
func GetCommitteesFromState(shuffler CommitteeShuffler, state stategen.State, epoch primitives.Epoch) ([]CommitteeAssignment, error) {
	cfg := params.BeaconConfig()
	startingSlot := primitives.EpochStart(epoch, cfg.SlotsPerEpoch)

	count, err := shuffler.CommitteeCountPerSlot(state, epoch)
	if err != nil {
		return nil, err
	}

	var out []CommitteeAssignment
	for i := uint64(0); i < cfg.SlotsPerEpoch; i++ {
		slot := startingSlot + primitives.Slot(i)
		for j := uint64(0); j < count; j++ {
			committee, err := shuffler.BeaconCommittee(state, slot, j)
			if err != nil {
				return nil, err
			}
			out = append(out, CommitteeAssignment{Committee: committee, Index: j, Slot: slot})
		}
	}
	return out, nil
}
