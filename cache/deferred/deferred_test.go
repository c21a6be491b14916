package deferred

import (
	"testing"

	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/primitives"
)

func TestPool_AddAttestationCollapsesDuplicateVotes(t *testing.T) {
	p := New()

	data := attestation.Data{Slot: 10}
	ia := &attestation.IndexedAttestation{
		AttestingIndices: []primitives.ValidatorIndex{1, 2, 3},
		Data:             data,
	}
	p.AddAttestation(ia)
	// A second vote from validator 2 for the same slot collapses rather
	// than creating a duplicate entry.
	p.AddAttestation(&attestation.IndexedAttestation{
		AttestingIndices: []primitives.ValidatorIndex{2},
		Data:             data,
	})

	if p.NumSlots() != 1 {
		t.Fatalf("expected 1 bucket (slot+1), got %d", p.NumSlots())
	}

	drained := p.Prune(11)
	if len(drained) != 1 {
		t.Fatalf("expected 1 bucket drained, got %d", len(drained))
	}
	if len(drained[0].ByValidator) != 3 {
		t.Fatalf("expected 3 distinct validators, got %d", len(drained[0].ByValidator))
	}
}

func TestPool_PruneOnlyDrainsAtOrBeforeSlot(t *testing.T) {
	p := New()
	p.AddAttestation(&attestation.IndexedAttestation{
		AttestingIndices: []primitives.ValidatorIndex{1},
		Data:             attestation.Data{Slot: 5}, // bucket at slot 6
	})

	if got := p.Prune(5); len(got) != 0 {
		t.Fatalf("expected nothing drained before bucket's slot, got %d", len(got))
	}
	if got := p.Prune(6); len(got) != 1 {
		t.Fatalf("expected bucket drained at slot 6, got %d", len(got))
	}
}
