package chaindata

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/stategen"
)

// HistoricalChainData is the external collaborator that answers
// queries the in-memory RecentChainData can no longer serve because
// the data has rotated out of the recent window. A production binary
// backs it with the node's long-term storage engine.
type HistoricalChainData interface {
	GetLatestFinalizedBlockAtSlot(ctx context.Context, slot primitives.Slot) (*Block, bool, error)
	GetFinalizedStateByBlockRoot(ctx context.Context, root primitives.Root) (stategen.State, bool, error)
	GetLatestFinalizedStateAtSlot(ctx context.Context, slot primitives.Slot) (stategen.State, bool, error)
	GetBlockByBlockRoot(ctx context.Context, root primitives.Root) (*Block, bool, error)
	GetSlotAndBlockRootByStateRoot(ctx context.Context, stateRoot primitives.Root) (primitives.Slot, primitives.Root, bool, error)
	GetFinalizedSlotByStateRoot(ctx context.Context, stateRoot primitives.Root) (primitives.Slot, bool, error)
}

// StateCodec (de)serializes the state type for storage, since the
// concrete state representation is itself an external collaborator to
// this pipeline.
type StateCodec interface {
	Marshal(stategen.State) ([]byte, error)
	Unmarshal([]byte) (stategen.State, error)
}

var (
	blockByRootPrefix     = []byte("b/")
	blockRootBySlotPrefix = []byte("s/")
	stateByRootPrefix     = []byte("st/")
)

// PebbleHistoricalChainData backs HistoricalChainData with an on-disk
// pebble key-value store, indexing blocks by root and by slot and
// states by their owning block root.
type PebbleHistoricalChainData struct {
	db    *pebble.DB
	codec StateCodec
}

// NewPebbleHistoricalChainData opens (or creates) a pebble store at
// dir for historical chain data.
func NewPebbleHistoricalChainData(dir string, codec StateCodec) (*PebbleHistoricalChainData, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "could not open historical chain data store")
	}
	return &PebbleHistoricalChainData{db: db, codec: codec}, nil
}

// Close releases the underlying pebble handles.
func (p *PebbleHistoricalChainData) Close() error {
	return p.db.Close()
}

func slotKey(slot primitives.Slot) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(slot))
	return append(append([]byte(nil), blockRootBySlotPrefix...), buf...)
}

func rootKey(prefix []byte, root primitives.Root) []byte {
	return append(append([]byte(nil), prefix...), root[:]...)
}

// SaveBlock persists block under both its root and its slot.
func (p *PebbleHistoricalChainData) SaveBlock(block *Block) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(block); err != nil {
		return errors.Wrap(err, "could not encode block")
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(rootKey(blockByRootPrefix, block.Root), buf.Bytes(), nil); err != nil {
		return err
	}
	if err := batch.Set(slotKey(block.Slot), block.Root[:], nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// SaveState persists state, associated with the block root it was
// computed for.
func (p *PebbleHistoricalChainData) SaveState(blockRoot primitives.Root, state stategen.State) error {
	encoded, err := p.codec.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "could not encode state")
	}
	return p.db.Set(rootKey(stateByRootPrefix, blockRoot), encoded, pebble.Sync)
}

// GetBlockByBlockRoot returns the persisted block for root.
func (p *PebbleHistoricalChainData) GetBlockByBlockRoot(ctx context.Context, root primitives.Root) (*Block, bool, error) {
	value, closer, err := p.db.Get(rootKey(blockByRootPrefix, root))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var block Block
	if err := gob.NewDecoder(bytes.NewReader(value)).Decode(&block); err != nil {
		return nil, false, errors.Wrap(err, "could not decode block")
	}
	return &block, true, nil
}

// GetLatestFinalizedBlockAtSlot scans backward from slot for the most
// recent block at or before it, the historical-storage analogue of
// RecentChainData.RetrieveStateInEffectAtSlot's "in effect at slot"
// semantics.
func (p *PebbleHistoricalChainData) GetLatestFinalizedBlockAtSlot(ctx context.Context, slot primitives.Slot) (*Block, bool, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: blockRootBySlotPrefix,
		UpperBound: append(append([]byte(nil), blockRootBySlotPrefix...), 0xff),
	})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	if !iter.SeekLT(append(slotKey(slot), 0xff)) {
		return nil, false, nil
	}
	var root primitives.Root
	copy(root[:], iter.Value())
	return p.GetBlockByBlockRoot(ctx, root)
}

// GetFinalizedStateByBlockRoot returns the persisted state for root.
func (p *PebbleHistoricalChainData) GetFinalizedStateByBlockRoot(ctx context.Context, root primitives.Root) (stategen.State, bool, error) {
	value, closer, err := p.db.Get(rootKey(stateByRootPrefix, root))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	state, err := p.codec.Unmarshal(value)
	if err != nil {
		return nil, false, errors.Wrap(err, "could not decode state")
	}
	return state, true, nil
}

// GetLatestFinalizedStateAtSlot finds the effective block at slot and
// returns its state.
func (p *PebbleHistoricalChainData) GetLatestFinalizedStateAtSlot(ctx context.Context, slot primitives.Slot) (stategen.State, bool, error) {
	block, ok, err := p.GetLatestFinalizedBlockAtSlot(ctx, slot)
	if err != nil || !ok {
		return nil, ok, err
	}
	return p.GetFinalizedStateByBlockRoot(ctx, block.Root)
}

// GetSlotAndBlockRootByStateRoot always reports not found: SaveState
// keeps no state-root index, so Service.GetStateByStateRoot finds
// nothing through this store.
func (p *PebbleHistoricalChainData) GetSlotAndBlockRootByStateRoot(ctx context.Context, stateRoot primitives.Root) (primitives.Slot, primitives.Root, bool, error) {
	return 0, primitives.Root{}, false, nil
}

// GetFinalizedSlotByStateRoot mirrors the same limitation as
// GetSlotAndBlockRootByStateRoot.
func (p *PebbleHistoricalChainData) GetFinalizedSlotByStateRoot(ctx context.Context, stateRoot primitives.Root) (primitives.Slot, bool, error) {
	return 0, false, nil
}
