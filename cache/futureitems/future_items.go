// Package futureitems implements the "depends-on-slot" waiting area:
// items whose slot is ahead of the local clock are parked until OnSlot
// advances the watermark past them.
package futureitems

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/prysmaticlabs/attestpipe/primitives"
)

var log = logrus.WithField("prefix", "futureitems")

const defaultMaxSlots = 4096

// Pool holds items keyed by the slot they become eligible at,
// single-writer by contract.
type Pool[T any] struct {
	mu        sync.Mutex
	bySlot    map[primitives.Slot][]T
	order     []primitives.Slot
	watermark primitives.Slot
	maxSlots  int
}

// New creates an empty pool with the default bound.
func New[T any]() *Pool[T] {
	return NewWithCapacity[T](defaultMaxSlots)
}

// NewWithCapacity creates an empty pool bounded at maxSlots distinct
// slot keys.
func NewWithCapacity[T any](maxSlots int) *Pool[T] {
	if maxSlots <= 0 {
		maxSlots = defaultMaxSlots
	}
	return &Pool[T]{
		bySlot:   make(map[primitives.Slot][]T),
		maxSlots: maxSlots,
	}
}

// Add parks item under its slot. Every parked element is expected to
// satisfy slot > watermark; Add itself does not check this (IsStale
// reports it).
func (p *Pool[T]) Add(slot primitives.Slot, item T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.bySlot[slot]; !ok {
		p.evictIfFullLocked()
		p.order = append(p.order, slot)
	}
	p.bySlot[slot] = append(p.bySlot[slot], item)
}

func (p *Pool[T]) evictIfFullLocked() {
	for len(p.order) >= p.maxSlots && len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		n := len(p.bySlot[oldest])
		delete(p.bySlot, oldest)
		log.WithFields(logrus.Fields{
			"slot":    oldest,
			"dropped": n,
		}).Debug("Evicting oldest future bucket, pool at capacity")
	}
}

// OnSlot advances the watermark. IsStale checks made after this call
// reject items at or before slot as stale.
func (p *Pool[T]) OnSlot(slot primitives.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot > p.watermark {
		p.watermark = slot
	}
}

// Watermark returns the current slot watermark.
func (p *Pool[T]) Watermark() primitives.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// IsStale reports whether slot is at or before the current watermark,
// meaning it should no longer be parked here.
func (p *Pool[T]) IsStale(slot primitives.Slot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slot <= p.watermark
}

// Prune returns and removes every item with slot <= currentSlot.
func (p *Pool[T]) Prune(currentSlot primitives.Slot) []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	var drained []T
	var remainingOrder []primitives.Slot
	for _, slot := range p.order {
		if slot <= currentSlot {
			drained = append(drained, p.bySlot[slot]...)
			delete(p.bySlot, slot)
			continue
		}
		remainingOrder = append(remainingOrder, slot)
	}
	p.order = remainingOrder
	return drained
}

// NumSlots returns the number of distinct slot buckets currently
// tracked.
func (p *Pool[T]) NumSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bySlot)
}
