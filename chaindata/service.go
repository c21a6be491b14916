// Package chaindata implements the combined chain data service: a
// single read API that checks the in-memory recent view of the chain
// first and falls through to historical storage (and, where
// necessary, state regeneration) only when the recent view can't
// answer.
package chaindata

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/stategen"
)

var log = logrus.WithField("prefix", "chaindata")

// regenCacheSize bounds the number of regenerated states kept around
// for repeat historical queries against the same slot.
const regenCacheSize = 128

// Service composes the recent and historical views of the chain with
// the state regenerator, presenting one query surface regardless of
// where the answer ultimately comes from.
type Service struct {
	recent     *RecentChainData
	historical HistoricalChainData
	regen      *stategen.Regenerator

	// regenCache holds states already wound forward to an exact slot, so
	// repeated queries against the same historical slot don't replay the
	// same transitions.
	regenCache *lru.Cache
}

// New builds a Service over its three collaborators.
func New(recent *RecentChainData, historical HistoricalChainData, regen *stategen.Regenerator) *Service {
	cache, err := lru.New(regenCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// regenCacheSize never is.
		panic(err)
	}
	return &Service{recent: recent, historical: historical, regen: regen, regenCache: cache}
}

func regenCacheKey(root primitives.Root, slot primitives.Slot) string {
	return fmt.Sprintf("%x:%d", root, slot)
}

// IsStoreAvailable reports whether the recent-data store has anything
// at all to answer with.
func (s *Service) IsStoreAvailable() bool {
	return s.recent != nil
}

// IsChainDataFullyAvailable reports whether the chain has both
// received genesis and processed at least one block through fork
// choice.
func (s *Service) IsChainDataFullyAvailable() bool {
	return !s.recent.IsPreGenesis() && !s.recent.IsPreForkChoice()
}

// GetBlockInEffectAtSlot returns the block proposed in or most
// recently before slot: the canonical root for slot if recent data has
// it, otherwise whatever historical storage considers finalized and
// effective at slot.
func (s *Service) GetBlockInEffectAtSlot(ctx context.Context, slot primitives.Slot) (*Block, bool, error) {
	if !s.IsChainDataFullyAvailable() {
		return nil, false, nil
	}
	if root, ok := s.recent.BlockRootBySlot(slot); ok {
		block, ok := s.recent.RetrieveSignedBlockByRoot(root)
		return block, ok, nil
	}
	return s.historical.GetLatestFinalizedBlockAtSlot(ctx, slot)
}

// GetBlockAtSlotExact returns the block proposed exactly at slot, or
// false if that slot was empty.
func (s *Service) GetBlockAtSlotExact(ctx context.Context, slot primitives.Slot) (*Block, bool, error) {
	block, ok, err := s.GetBlockInEffectAtSlot(ctx, slot)
	if err != nil || !ok || block.Slot != slot {
		return nil, false, err
	}
	return block, true, nil
}

// GetBlockAndStateInEffectAtSlot resolves the effective block at slot,
// then its post-state.
func (s *Service) GetBlockAndStateInEffectAtSlot(ctx context.Context, slot primitives.Slot) (*Block, stategen.State, bool, error) {
	block, ok, err := s.GetBlockInEffectAtSlot(ctx, slot)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	state, ok, err := s.GetStateByBlockRoot(ctx, block.Root)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	return block, state, true, nil
}

// GetStateAtSlotExact resolves the effective block at slot, then winds
// its post-state forward to slot exactly (a no-op when the block
// itself occupies slot).
func (s *Service) GetStateAtSlotExact(ctx context.Context, slot primitives.Slot) (stategen.State, bool, error) {
	block, state, ok, err := s.GetBlockAndStateInEffectAtSlot(ctx, slot)
	if err != nil || !ok {
		return nil, false, err
	}

	key := regenCacheKey(block.Root, slot)
	if cached, ok := s.regenCache.Get(key); ok {
		return cached.(stategen.State), true, nil
	}

	regenerated, err := s.regen.Regenerate(ctx, state, slot, s.recent.BestSlot())
	if err != nil {
		log.WithError(err).WithField("slot", slot).Debug("Could not regenerate state to exact slot")
		return nil, false, nil
	}
	s.regenCache.Add(key, regenerated)
	return regenerated, true, nil
}

// IsFinalized reports whether slot is at or before the start of the
// most recently finalized epoch.
func (s *Service) IsFinalized(slot primitives.Slot) bool {
	cfg := params.BeaconConfig()
	finalizedSlot := primitives.EpochStart(s.recent.FinalizedEpoch(), cfg.SlotsPerEpoch)
	return finalizedSlot >= slot
}

// IsFinalizedEpoch reports whether epoch is at or before the most
// recently finalized epoch.
func (s *Service) IsFinalizedEpoch(epoch primitives.Epoch) bool {
	return s.recent.FinalizedEpoch() >= epoch
}

// GetLatestStateAtSlot returns the latest state at or before slot on
// the canonical chain, preferring the recent store and falling through
// to historical storage if the recent store no longer has it (or never
// had it, outside the recent window).
func (s *Service) GetLatestStateAtSlot(ctx context.Context, slot primitives.Slot) (stategen.State, bool, error) {
	if !s.IsChainDataFullyAvailable() {
		return nil, false, nil
	}
	if s.isRecentSlot(slot) {
		if state, ok := s.recent.RetrieveStateInEffectAtSlot(slot); ok {
			return state, true, nil
		}
	}
	return s.historical.GetLatestFinalizedStateAtSlot(ctx, slot)
}

func (s *Service) isRecentSlot(slot primitives.Slot) bool {
	if s.recent.IsPreGenesis() {
		return false
	}
	return slot >= s.recent.LatestFinalizedBlockSlot()
}

// GetStateByBlockRoot returns the post-state of the block at root,
// preferring the in-memory cache and falling through to historical
// storage.
func (s *Service) GetStateByBlockRoot(ctx context.Context, root primitives.Root) (stategen.State, bool, error) {
	if !s.IsStoreAvailable() {
		return nil, false, nil
	}
	if state, ok := s.recent.RetrieveBlockState(root); ok {
		return state, true, nil
	}
	return s.historical.GetFinalizedStateByBlockRoot(ctx, root)
}

// GetStateByStateRoot resolves a state root to its owning
// slot-and-block-root via historical storage, then regenerates the
// state to that exact slot.
func (s *Service) GetStateByStateRoot(ctx context.Context, stateRoot primitives.Root) (stategen.State, bool, error) {
	if !s.IsStoreAvailable() {
		return nil, false, nil
	}

	slot, blockRoot, ok, err := s.historical.GetSlotAndBlockRootByStateRoot(ctx, stateRoot)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		finalizedSlot, ok, err := s.historical.GetFinalizedSlotByStateRoot(ctx, stateRoot)
		if err != nil || !ok {
			return nil, false, err
		}
		return s.GetStateAtSlotExact(ctx, finalizedSlot)
	}

	key := regenCacheKey(blockRoot, slot)
	if cached, ok := s.regenCache.Get(key); ok {
		return cached.(stategen.State), true, nil
	}

	preState, ok, err := s.GetStateByBlockRoot(ctx, blockRoot)
	if err != nil || !ok {
		return nil, false, err
	}
	regenerated, err := s.regen.Regenerate(ctx, preState, slot, s.recent.BestSlot())
	if err != nil {
		return nil, false, nil
	}
	s.regenCache.Add(key, regenerated)
	return regenerated, true, nil
}

// GetHeadStateFromStore returns the cached post-state of the head
// block.
func (s *Service) GetHeadStateFromStore() (stategen.State, bool) {
	return s.recent.BestState()
}

// GetBestBlockRoot returns the head block's root.
func (s *Service) GetBestBlockRoot() (primitives.Root, bool) {
	return s.recent.BestBlockRoot()
}

// GetBestBlock returns the head block.
func (s *Service) GetBestBlock() (*Block, bool) {
	return s.recent.BestBlock()
}

// GetBestSlot returns the head block's slot.
func (s *Service) GetBestSlot() primitives.Slot {
	return s.recent.BestSlot()
}

// GetAncestorRoots walks the canonical chain backward from startSlot,
// step slots at a time, for count steps.
func (s *Service) GetAncestorRoots(startSlot, step primitives.Slot, count uint64) map[primitives.Slot]primitives.Root {
	return s.recent.AncestorRoots(startSlot, step, count)
}

// GetBlockByBlockRoot returns the block for root, preferring the
// in-memory cache and falling through to historical storage.
func (s *Service) GetBlockByBlockRoot(ctx context.Context, root primitives.Root) (*Block, bool, error) {
	if block, ok := s.recent.RetrieveSignedBlockByRoot(root); ok {
		return block, true, nil
	}
	return s.historical.GetBlockByBlockRoot(ctx, root)
}
