// Package deferred implements the "wait-one-tick" waiting area for
// indexed attestations that fork choice asked to re-evaluate next slot,
// aggregated per validator index so duplicate votes collapse.
package deferred

import (
	"sync"

	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/primitives"
)

const defaultMaxSlots = 4096

// Votes is the aggregated set of indexed-attestation votes for a
// single slot, one entry per validator index so repeated deferrals of
// the same vote collapse into one.
type Votes struct {
	Slot primitives.Slot
	// ByValidator maps validator index to its last-seen vote data for
	// this slot.
	ByValidator map[primitives.ValidatorIndex]attestation.Data
}

func newVotes(slot primitives.Slot) *Votes {
	return &Votes{
		Slot:        slot,
		ByValidator: make(map[primitives.ValidatorIndex]attestation.Data),
	}
}

// Pool holds DeferredVotes buckets keyed by slot, single-writer by
// contract.
type Pool struct {
	mu       sync.Mutex
	bySlot   map[primitives.Slot]*Votes
	order    []primitives.Slot
	maxSlots int
}

// New creates an empty pool with the default bound.
func New() *Pool {
	return &Pool{
		bySlot:   make(map[primitives.Slot]*Votes),
		maxSlots: defaultMaxSlots,
	}
}

// AddAttestation folds ia's attesting indices into the bucket for
// slot+1 (the next tick), collapsing duplicate per-validator votes.
func (p *Pool) AddAttestation(ia *attestation.IndexedAttestation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	targetSlot := ia.Data.Slot + 1
	bucket, ok := p.bySlot[targetSlot]
	if !ok {
		p.evictIfFullLocked()
		bucket = newVotes(targetSlot)
		p.bySlot[targetSlot] = bucket
		p.order = append(p.order, targetSlot)
	}
	for _, idx := range ia.AttestingIndices {
		bucket.ByValidator[idx] = ia.Data
	}
}

func (p *Pool) evictIfFullLocked() {
	for len(p.order) >= p.maxSlots && len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.bySlot, oldest)
	}
}

// Prune returns and removes every bucket with slot <= currentSlot.
func (p *Pool) Prune(currentSlot primitives.Slot) []*Votes {
	p.mu.Lock()
	defer p.mu.Unlock()

	var drained []*Votes
	var remainingOrder []primitives.Slot
	for _, slot := range p.order {
		if slot <= currentSlot {
			drained = append(drained, p.bySlot[slot])
			delete(p.bySlot, slot)
			continue
		}
		remainingOrder = append(remainingOrder, slot)
	}
	p.order = remainingOrder
	return drained
}

// NumSlots returns the number of distinct slot buckets currently held.
func (p *Pool) NumSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bySlot)
}
