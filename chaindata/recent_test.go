package chaindata

import (
	"testing"

	"github.com/prysmaticlabs/attestpipe/primitives"
)

type fakeState struct {
	slot primitives.Slot
}

func (f fakeState) Slot() primitives.Slot { return f.slot }

func root(b byte) primitives.Root {
	var r primitives.Root
	r[0] = b
	return r
}

func TestRecentChainData_SaveBlockAdvancesHead(t *testing.T) {
	r := NewRecentChainData()
	r.SetGenesisReceived()

	block1 := &Block{Slot: 1, Root: root(1)}
	r.SaveBlock(block1, fakeState{slot: 1}, true)

	if got, ok := r.BestBlockRoot(); !ok || got != root(1) {
		t.Fatalf("BestBlockRoot() = %v, %v, want root(1), true", got, ok)
	}
	if got := r.BestSlot(); got != 1 {
		t.Fatalf("BestSlot() = %d, want 1", got)
	}
	if r.IsPreForkChoice() {
		t.Fatal("IsPreForkChoice() = true after saving a head block")
	}

	block2 := &Block{Slot: 2, Root: root(2)}
	r.SaveBlock(block2, fakeState{slot: 2}, true)
	if got := r.BestSlot(); got != 2 {
		t.Fatalf("BestSlot() = %d, want 2", got)
	}
	if got, ok := r.BlockRootBySlot(1); !ok || got != root(1) {
		t.Fatalf("BlockRootBySlot(1) = %v, %v, want root(1), true", got, ok)
	}
}

func TestRecentChainData_NonHeadBlockDoesNotAdvanceBest(t *testing.T) {
	r := NewRecentChainData()
	r.SetGenesisReceived()

	r.SaveBlock(&Block{Slot: 5, Root: root(5)}, nil, true)
	r.SaveBlock(&Block{Slot: 3, Root: root(3)}, nil, false)

	if got := r.BestSlot(); got != 5 {
		t.Fatalf("BestSlot() = %d, want 5 (non-head save must not move it)", got)
	}
	if _, ok := r.BlockRootBySlot(3); ok {
		t.Fatal("BlockRootBySlot(3) found an entry for a non-canonical save")
	}
	if block, ok := r.RetrieveSignedBlockByRoot(root(3)); !ok || block.Slot != 3 {
		t.Fatalf("RetrieveSignedBlockByRoot(root(3)) = %v, %v, want slot 3 block, true", block, ok)
	}
}

func TestRecentChainData_AncestorRoots(t *testing.T) {
	r := NewRecentChainData()
	r.SetGenesisReceived()

	for slot := primitives.Slot(0); slot <= 6; slot += 2 {
		r.SaveBlock(&Block{Slot: slot, Root: root(byte(slot))}, nil, true)
	}

	got := r.AncestorRoots(6, 2, 3)
	want := map[primitives.Slot]primitives.Root{
		6: root(6),
		4: root(4),
		2: root(2),
	}
	if len(got) != len(want) {
		t.Fatalf("AncestorRoots() = %v, want %v", got, want)
	}
	for slot, wantRoot := range want {
		if got[slot] != wantRoot {
			t.Errorf("AncestorRoots()[%d] = %v, want %v", slot, got[slot], wantRoot)
		}
	}
}

func TestRecentChainData_PreGenesisUntilSet(t *testing.T) {
	r := NewRecentChainData()
	if !r.IsPreGenesis() {
		t.Fatal("IsPreGenesis() = false before SetGenesisReceived")
	}
	r.SetGenesisReceived()
	if r.IsPreGenesis() {
		t.Fatal("IsPreGenesis() = true after SetGenesisReceived")
	}
}
