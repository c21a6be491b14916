// Package pendingpool implements the "depends-on-block" waiting area:
// items are parked under the block root they depend on until that
// block is imported, at which point the caller drains and resubmits
// them.
package pendingpool

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/prysmaticlabs/attestpipe/primitives"
)

var log = logrus.WithField("prefix", "pendingpool")

// defaultMaxRoots bounds the number of distinct block roots the pool
// will track before evicting the oldest one.
const defaultMaxRoots = 4096

// Item is anything that can be parked on a missing block root.
type Item interface {
	comparable
}

// Pool is a map from block root to the set of items awaiting that
// block, single-writer by contract (the orchestrator owns it
// exclusively).
type Pool[T Item] struct {
	mu       sync.RWMutex
	byRoot   map[primitives.Root]map[T]struct{}
	rootOf   map[T]primitives.Root // reverse index for O(1) Contains/Remove
	order    []primitives.Root    // insertion order, oldest first, for eviction
	maxRoots int
}

// New creates an empty pool with the default bound.
func New[T Item]() *Pool[T] {
	return NewWithCapacity[T](defaultMaxRoots)
}

// NewWithCapacity creates an empty pool bounded at maxRoots distinct
// keys.
func NewWithCapacity[T Item](maxRoots int) *Pool[T] {
	if maxRoots <= 0 {
		maxRoots = defaultMaxRoots
	}
	return &Pool[T]{
		byRoot:   make(map[primitives.Root]map[T]struct{}),
		rootOf:   make(map[T]primitives.Root),
		maxRoots: maxRoots,
	}
}

// Add parks item under root. An attestation sits here iff the block it
// depends on is unknown locally.
func (p *Pool[T]) Add(root primitives.Root, item T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.byRoot[root]
	if !ok {
		p.evictIfFullLocked()
		set = make(map[T]struct{})
		p.byRoot[root] = set
		p.order = append(p.order, root)
	}
	set[item] = struct{}{}
	p.rootOf[item] = root
}

// evictIfFullLocked drops the oldest root bucket when the pool is at
// capacity. Must be called with mu held.
func (p *Pool[T]) evictIfFullLocked() {
	for len(p.order) >= p.maxRoots && len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		n := len(p.byRoot[oldest])
		for item := range p.byRoot[oldest] {
			delete(p.rootOf, item)
		}
		delete(p.byRoot, oldest)
		log.WithFields(logrus.Fields{
			"root":    oldest,
			"dropped": n,
		}).Debug("Evicting oldest pending bucket, pool at capacity")
	}
}

// Contains reports whether item is parked under any root, used by
// callers to short-circuit duplicate submissions.
func (p *Pool[T]) Contains(item T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rootOf[item]
	return ok
}

// GetItemsDependingOn removes and returns every item parked under
// root. Called on block-import events; the caller then resubmits each
// item to fork choice without validating it again, since it was
// validated before it was parked.
func (p *Pool[T]) GetItemsDependingOn(root primitives.Root) []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.byRoot[root]
	if !ok {
		return nil
	}
	items := make([]T, 0, len(set))
	for item := range set {
		items = append(items, item)
		delete(p.rootOf, item)
	}
	delete(p.byRoot, root)
	for i, r := range p.order {
		if r == root {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return items
}

// Remove drops a single item from whichever root bucket holds it,
// pruning the bucket entirely if it becomes empty.
func (p *Pool[T]) Remove(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	root, ok := p.rootOf[item]
	if !ok {
		return
	}
	delete(p.rootOf, item)
	set := p.byRoot[root]
	delete(set, item)
	if len(set) == 0 {
		delete(p.byRoot, root)
		for i, r := range p.order {
			if r == root {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
}

// NumRoots returns the number of distinct block roots currently
// tracked, used to feed the pool-size metric.
func (p *Pool[T]) NumRoots() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byRoot)
}
