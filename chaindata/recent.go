package chaindata

import (
	"sync"

	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/stategen"
)

// RecentChainData holds the in-memory view of the chain around the
// head: the canonical block-root-by-slot index, every block and state
// still reachable from the head, and the handful of chain-wide flags
// the combined data service consults before ever reaching for
// historical storage.
type RecentChainData struct {
	mu sync.RWMutex

	rootsBySlot map[primitives.Slot]primitives.Root
	blocks      map[primitives.Root]*Block
	states      map[primitives.Root]stategen.State

	bestSlot primitives.Slot
	bestRoot primitives.Root

	finalizedEpoch           primitives.Epoch
	latestFinalizedBlockSlot primitives.Slot

	preGenesis    bool
	preForkChoice bool
}

// NewRecentChainData builds an empty store, starting in the
// pre-genesis state until SetGenesisReceived is called.
func NewRecentChainData() *RecentChainData {
	return &RecentChainData{
		rootsBySlot:   make(map[primitives.Slot]primitives.Root),
		blocks:        make(map[primitives.Root]*Block),
		states:        make(map[primitives.Root]stategen.State),
		preGenesis:    true,
		preForkChoice: true,
	}
}

// SetGenesisReceived flips the store out of the pre-genesis state.
func (r *RecentChainData) SetGenesisReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preGenesis = false
}

// SaveBlock records block and, if it is the new head, advances the
// canonical root-by-slot index and best-block pointers. state may be
// nil if the block's post-state isn't being cached.
func (r *RecentChainData) SaveBlock(block *Block, state stategen.State, isHead bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocks[block.Root] = block
	if state != nil {
		r.states[block.Root] = state
	}
	if isHead {
		r.preForkChoice = false
		r.rootsBySlot[block.Slot] = block.Root
		if block.Slot >= r.bestSlot || r.bestRoot.IsZero() {
			r.bestSlot = block.Slot
			r.bestRoot = block.Root
		}
	}
}

// SetFinalized records the slot of the most recent finalized block and
// the epoch it finalizes.
func (r *RecentChainData) SetFinalized(epoch primitives.Epoch, blockSlot primitives.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalizedEpoch = epoch
	r.latestFinalizedBlockSlot = blockSlot
}

// BlockRootBySlot returns the canonical block root occupying slot, if
// any (an empty slot has no entry).
func (r *RecentChainData) BlockRootBySlot(slot primitives.Slot) (primitives.Root, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	root, ok := r.rootsBySlot[slot]
	return root, ok
}

// BestBlockRoot returns the head block's root.
func (r *RecentChainData) BestBlockRoot() (primitives.Root, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bestRoot.IsZero() {
		return primitives.Root{}, false
	}
	return r.bestRoot, true
}

// BestBlock returns the head block.
func (r *RecentChainData) BestBlock() (*Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bestRoot.IsZero() {
		return nil, false
	}
	block, ok := r.blocks[r.bestRoot]
	return block, ok
}

// BestSlot returns the head block's slot.
func (r *RecentChainData) BestSlot() primitives.Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bestSlot
}

// BestState returns the cached post-state of the head block, if any is
// held.
func (r *RecentChainData) BestState() (stategen.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.bestRoot.IsZero() {
		return nil, false
	}
	state, ok := r.states[r.bestRoot]
	return state, ok
}

// RetrieveBlockState returns the cached post-state for blockRoot, if
// it is still held in memory.
func (r *RecentChainData) RetrieveBlockState(blockRoot primitives.Root) (stategen.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[blockRoot]
	return state, ok
}

// RetrieveStateInEffectAtSlot returns the cached state for the
// canonical block at or most recently before slot, searching back no
// further than the latest finalized block slot (callers fall through to
// historical storage otherwise).
func (r *RecentChainData) RetrieveStateInEffectAtSlot(slot primitives.Slot) (stategen.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for s := slot; ; s-- {
		if root, ok := r.rootsBySlot[s]; ok {
			state, ok := r.states[root]
			return state, ok
		}
		if s <= r.latestFinalizedBlockSlot {
			return nil, false
		}
	}
}

// RetrieveSignedBlockByRoot returns the in-memory block for root.
func (r *RecentChainData) RetrieveSignedBlockByRoot(root primitives.Root) (*Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	block, ok := r.blocks[root]
	return block, ok
}

// FinalizedEpoch returns the most recently finalized epoch.
func (r *RecentChainData) FinalizedEpoch() primitives.Epoch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalizedEpoch
}

// LatestFinalizedBlockSlot returns the slot of the most recently
// finalized block.
func (r *RecentChainData) LatestFinalizedBlockSlot() primitives.Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestFinalizedBlockSlot
}

// IsPreGenesis reports whether genesis has not yet been received.
func (r *RecentChainData) IsPreGenesis() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preGenesis
}

// IsPreForkChoice reports whether fork choice has not yet processed
// any block.
func (r *RecentChainData) IsPreForkChoice() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.preForkChoice
}

// AncestorRoots walks back count steps of step slots each, starting at
// startSlot, returning every canonical root found along the way.
func (r *RecentChainData) AncestorRoots(startSlot, step primitives.Slot, count uint64) map[primitives.Slot]primitives.Root {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[primitives.Slot]primitives.Root)
	slot := startSlot
	for i := uint64(0); i < count; i++ {
		if root, ok := r.rootsBySlot[slot]; ok {
			out[slot] = root
		}
		if slot < step {
			break
		}
		slot -= step
	}
	return out
}
