// Package attestation defines the wire-independent attestation types the
// pipeline validates, applies, and parks, along with the sum-typed
// results that flow between its stages.
package attestation

import (
	"sync"

	"github.com/prysmaticlabs/go-bitfield"

	"github.com/prysmaticlabs/attestpipe/primitives"
)

// Data is the common vote content shared by every copy of an
// attestation for a given committee/slot/target — the part that gets
// hashed to group duplicate votes together.
type Data struct {
	Slot            primitives.Slot
	CommitteeIndex  uint64
	BeaconBlockRoot primitives.Root
	Source          primitives.Checkpoint
	Target          primitives.Checkpoint
}

// Attestation is the validateable form: slot, committee index,
// signature, aggregation bits, the block root voted for, and the
// lifecycle flags the manager tracks as it moves the attestation
// through validation, apply, and subscriber notification.
type Attestation struct {
	Data            Data
	AggregationBits bitfield.Bitlist
	Signature       []byte

	mu             sync.Mutex
	producedLocally bool
	gossiped        bool
	aggregate       bool
	indexed         *IndexedAttestation
}

// NewAttestation wraps raw attestation content for pipeline processing.
func NewAttestation(data Data, bits bitfield.Bitlist, sig []byte, producedLocally, aggregate bool) *Attestation {
	return &Attestation{
		Data:            data,
		AggregationBits: bits,
		Signature:       sig,
		producedLocally: producedLocally,
		aggregate:       aggregate,
	}
}

// IsProducedLocally reports whether this attestation originated from a
// validator managed by this node, as opposed to arriving over gossip.
func (a *Attestation) IsProducedLocally() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.producedLocally
}

// IsAggregate reports whether this is an aggregate (committee-wide)
// attestation rather than an individual one.
func (a *Attestation) IsAggregate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aggregate
}

// IsGossiped reports whether this attestation has already been handed
// to the "attestations to send" subscribers.
func (a *Attestation) IsGossiped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gossiped
}

// MarkGossiped flips the gossiped flag. A single attestation transitions
// to gossiped at most once; callers must check IsGossiped first if they
// need to avoid a duplicate send.
func (a *Attestation) MarkGossiped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gossiped = true
}

// IndexedAttestation expands an attestation to the validator indices of
// the committee members who contributed to its aggregation bits.
type IndexedAttestation struct {
	AttestingIndices []primitives.ValidatorIndex
	Data             Data
	Signature        []byte
}

// SetIndexed attaches the expanded indexed form once it is computed
// during validation, so that a later deferral can hand it to the
// deferred-votes bucket without recomputing it.
func (a *Attestation) SetIndexed(ia *IndexedAttestation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indexed = ia
}

// IndexedForm returns the previously attached indexed attestation, if
// any.
func (a *Attestation) IndexedForm() (*IndexedAttestation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.indexed == nil {
		return nil, false
	}
	return a.indexed, true
}
