// Package aggregation holds the attestation pool that the fork-choice
// gateway and block production draw from: per-attestation-data buckets
// of unaggregated and aggregated attestations, trimmed as the chain
// finalizes.
package aggregation

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/primitives"
)

var log = logrus.WithField("prefix", "aggregation")

// dataKey is a fixed-size digest of an attestation's vote content, used
// to group copies of the same vote together regardless of who produced
// them.
type dataKey [32]byte

func keyForData(d attestation.Data) dataKey {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(d.Slot))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], d.CommitteeIndex)
	h.Write(buf[:])
	h.Write(d.BeaconBlockRoot[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(d.Source.Epoch))
	h.Write(buf[:])
	h.Write(d.Source.Root[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(d.Target.Epoch))
	h.Write(buf[:])
	h.Write(d.Target.Root[:])
	var out dataKey
	copy(out[:], h.Sum(nil))
	return out
}

// Pool holds the unaggregated, aggregated, and fork-choice-applied
// attestations the node currently knows about, each keyed by vote
// content. The unaggregated and fork-choice-applied maps keep one copy
// per vote; the aggregated map keeps every aggregate saved for it.
type Pool struct {
	unaggregatedLock sync.RWMutex
	unaggregated     map[dataKey]*attestation.Attestation

	aggregatedLock sync.RWMutex
	aggregated     map[dataKey][]*attestation.Attestation

	forkchoiceLock sync.RWMutex
	forkchoiceAtt  map[dataKey]*attestation.Attestation

	// seen deduplicates gossip re-delivery of the same aggregate within
	// roughly one epoch, after which the entry naturally expires.
	seen *cache.Cache
}

// New builds an empty pool. The seen-cache TTL is derived from the
// active chain config so it tracks epoch length.
func New() *Pool {
	cfg := params.BeaconConfig()
	epochDuration := time.Duration(cfg.SlotsPerEpoch*cfg.SecondsPerSlot) * time.Second
	return &Pool{
		unaggregated:  make(map[dataKey]*attestation.Attestation),
		aggregated:    make(map[dataKey][]*attestation.Attestation),
		forkchoiceAtt: make(map[dataKey]*attestation.Attestation),
		seen:          cache.New(epochDuration, 2*epochDuration),
	}
}

// SaveUnaggregated stores att, keyed by its vote content, overwriting
// any earlier unaggregated copy of the same vote.
func (p *Pool) SaveUnaggregated(att *attestation.Attestation) {
	p.unaggregatedLock.Lock()
	defer p.unaggregatedLock.Unlock()
	p.unaggregated[keyForData(att.Data)] = att
	unaggregatedCount.Set(float64(len(p.unaggregated)))
}

// UnaggregatedCount returns the number of distinct votes currently held
// unaggregated.
func (p *Pool) UnaggregatedCount() int {
	p.unaggregatedLock.RLock()
	defer p.unaggregatedLock.RUnlock()
	return len(p.unaggregated)
}

// SaveAggregate appends att to the bucket for its vote content. Callers
// are expected to have already checked HasSeenAggregate to avoid
// storing bitlist-redundant copies.
func (p *Pool) SaveAggregate(att *attestation.Attestation) {
	key := keyForData(att.Data)

	p.aggregatedLock.Lock()
	p.aggregated[key] = append(p.aggregated[key], att)
	aggregatedBucketCount.Set(float64(len(p.aggregated)))
	p.aggregatedLock.Unlock()

	p.seen.SetDefault(string(key[:])+seenSuffix(att), struct{}{})
}

// seenSuffix distinguishes aggregates with different aggregation bits
// for the same vote content, so the seen cache dedups per bitlist
// rather than collapsing every aggregate of a given vote into one.
func seenSuffix(att *attestation.Attestation) string {
	return string(att.AggregationBits)
}

// HasSeenAggregate reports whether an aggregate with this exact vote
// content and bitlist has already been recorded.
func (p *Pool) HasSeenAggregate(att *attestation.Attestation) bool {
	key := keyForData(att.Data)
	_, ok := p.seen.Get(string(key[:]) + seenSuffix(att))
	return ok
}

// AggregatedForData returns every aggregate currently held for d.
func (p *Pool) AggregatedForData(d attestation.Data) []*attestation.Attestation {
	p.aggregatedLock.RLock()
	defer p.aggregatedLock.RUnlock()
	return append([]*attestation.Attestation(nil), p.aggregated[keyForData(d)]...)
}

// SaveForkchoiceAttestation records att as the copy that was applied to
// the fork-choice vote store for its vote content, replacing any
// earlier copy.
func (p *Pool) SaveForkchoiceAttestation(att *attestation.Attestation) {
	p.forkchoiceLock.Lock()
	defer p.forkchoiceLock.Unlock()
	p.forkchoiceAtt[keyForData(att.Data)] = att
}

// TrimBefore drops every unaggregated and aggregated entry whose slot
// is strictly before finalizedSlot; fork-choice-applied attestations
// are retained since the vote store itself owns their lifetime.
func (p *Pool) TrimBefore(finalizedSlot primitives.Slot) {
	p.unaggregatedLock.Lock()
	before := len(p.unaggregated)
	for key, att := range p.unaggregated {
		if att.Data.Slot < finalizedSlot {
			delete(p.unaggregated, key)
		}
	}
	trimmedUnagg := before - len(p.unaggregated)
	p.unaggregatedLock.Unlock()

	p.aggregatedLock.Lock()
	before = len(p.aggregated)
	for key, atts := range p.aggregated {
		if len(atts) == 0 || atts[0].Data.Slot < finalizedSlot {
			delete(p.aggregated, key)
		}
	}
	trimmedAgg := before - len(p.aggregated)
	p.aggregatedLock.Unlock()

	if trimmedUnagg > 0 || trimmedAgg > 0 {
		trimmedTotal.WithLabelValues("unaggregated").Add(float64(trimmedUnagg))
		trimmedTotal.WithLabelValues("aggregated").Add(float64(trimmedAgg))
		unaggregatedCount.Set(float64(len(p.unaggregated)))
		aggregatedBucketCount.Set(float64(len(p.aggregated)))
		log.WithFields(logrus.Fields{
			"finalizedSlot":       finalizedSlot,
			"unaggregatedTrimmed": trimmedUnagg,
			"aggregatedTrimmed":   trimmedAgg,
		}).Debug("Trimmed attestation pool at finality")
	}
}
