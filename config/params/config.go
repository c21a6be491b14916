// Package params holds the small set of chain-timing constants the
// attestation pipeline and chain data layer need, exposed as a
// singleton with an override so tests can swap in a fast-moving
// configuration without touching call sites.
package params

import (
	"sync"
	"time"
)

// BeaconChainConfig mirrors the subset of consensus parameters this
// module depends on. It does not carry fork schedules or deposit
// parameters; those belong to components outside this pipeline.
type BeaconChainConfig struct {
	SlotsPerEpoch  uint64
	SecondsPerSlot uint64
	// MaximumGossipClockDisparity bounds how far into the future a slot
	// is still considered current, to absorb clock skew between peers.
	MaximumGossipClockDisparity time.Duration
	// SignatureBatchDeadline bounds how long the signature verification
	// service waits to coalesce a batch before flushing it anyway.
	SignatureBatchDeadline time.Duration
	// SignatureBatchSize is the number of pending verifications that
	// triggers an immediate batch flush.
	SignatureBatchSize int
}

// Copy returns a value copy of c.
func (c *BeaconChainConfig) Copy() *BeaconChainConfig {
	copied := *c
	return &copied
}

func mainnetConfig() *BeaconChainConfig {
	return &BeaconChainConfig{
		SlotsPerEpoch:               32,
		SecondsPerSlot:              12,
		MaximumGossipClockDisparity: 500 * time.Millisecond,
		SignatureBatchDeadline:      50 * time.Millisecond,
		SignatureBatchSize:          64,
	}
}

var (
	activeConfigLock sync.RWMutex
	activeConfig     = mainnetConfig()
)

// BeaconConfig returns the currently active configuration.
func BeaconConfig() *BeaconChainConfig {
	activeConfigLock.RLock()
	defer activeConfigLock.RUnlock()
	return activeConfig
}

// MainnetConfig returns a fresh copy of the production configuration.
func MainnetConfig() *BeaconChainConfig {
	return mainnetConfig()
}

// MinimalTestConfig returns a configuration with a short epoch length,
// convenient for exercising epoch-boundary logic in tests.
func MinimalTestConfig() *BeaconChainConfig {
	cfg := mainnetConfig()
	cfg.SlotsPerEpoch = 8
	cfg.SecondsPerSlot = 6
	return cfg
}

// SetActive overrides the active configuration, returning the previous
// one so callers (usually tests) can restore it on cleanup.
func SetActive(cfg *BeaconChainConfig) *BeaconChainConfig {
	activeConfigLock.Lock()
	defer activeConfigLock.Unlock()
	prev := activeConfig
	activeConfig = cfg
	return prev
}
