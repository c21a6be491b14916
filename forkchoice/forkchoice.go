// Package forkchoice implements the gateway between the attestation
// pipeline and the fork-choice vote store. It decides, per incoming
// attestation, whether the vote applies now, needs to wait on a block,
// needs to wait on fork choice's own bookkeeping, or belongs to a slot
// that has not arrived yet.
package forkchoice

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/cache/deferred"
	"github.com/prysmaticlabs/attestpipe/primitives"
)

var log = logrus.WithField("prefix", "forkchoice")

// ErrDeferProcessing is returned by a VoteStore when it recognizes the
// vote but cannot settle it until the next slot tick (for example, its
// target checkpoint's state has not been justified yet). The gateway
// translates this into DeferForkChoiceProcessing rather than treating
// it as a failure.
var ErrDeferProcessing = errors.New("fork choice must defer processing this attestation to the next slot")

// BlockFinder answers whether a beacon block root has been imported
// locally, the signal that decides between applying an attestation
// now and parking it in the pending pool.
type BlockFinder interface {
	HasBlock(root primitives.Root) bool
}

// ClockReader exposes the current slot so the gateway can tell a
// future-dated attestation from a current one.
type ClockReader interface {
	CurrentSlot() primitives.Slot
}

// VoteStore is the minimal fork-choice surface the gateway drives: an
// idempotent per-validator-index vote ledger. A production binary
// backs this with its actual fork-choice tree; anything that merely
// records "validator v's latest vote is (block, target epoch)"
// satisfies it.
type VoteStore interface {
	// ProcessAttestation records or overwrites vote for each attesting
	// index. It returns an error only for conditions the gateway cannot
	// itself detect (e.g. an unknown target checkpoint); a malformed or
	// stale vote is not an error here; ForkChoicer.OnAttestation is
	// responsible for classifying those before ever calling this.
	ProcessAttestation(ctx context.Context, indices []primitives.ValidatorIndex, blockRoot primitives.Root, targetEpoch primitives.Epoch) error
}

// ForkchoiceAttestationRecorder records the exact attestation copy that
// was just applied to the vote store for its vote content, so the
// aggregating pool can serve it back for block production. Grounded on
// the aggregating pool's forkchoiceAtt map.
type ForkchoiceAttestationRecorder interface {
	SaveForkchoiceAttestation(att *attestation.Attestation)
}

// ForkChoicer is the interface the attestation manager depends on; it
// is satisfied by *Gateway.
type ForkChoicer interface {
	OnAttestation(ctx context.Context, att *attestation.Attestation) (attestation.ProcessingResult, error)
	ApplyIndexedAttestations(ctx context.Context, atts []*attestation.Attestation) error
	ApplyDeferredAttestations(ctx context.Context, votes []*deferred.Votes) error
}

// Gateway serializes every fork-choice mutation behind a single mutex,
// matching the single-writer contract the rest of the pipeline
// assumes of fork choice.
type Gateway struct {
	mu sync.Mutex

	votes    VoteStore
	blocks   BlockFinder
	clock    ClockReader
	recorder ForkchoiceAttestationRecorder
}

// New builds a Gateway over the given collaborators. recorder may be
// nil if nothing needs to observe the exact attestation applied per
// vote.
func New(votes VoteStore, blocks BlockFinder, clock ClockReader, recorder ForkchoiceAttestationRecorder) *Gateway {
	return &Gateway{votes: votes, blocks: blocks, clock: clock, recorder: recorder}
}

// OnAttestation classifies att and, where applicable, applies it to
// the vote store. The returned status tells the caller which waiting
// area (if any) the attestation belongs in.
func (g *Gateway) OnAttestation(ctx context.Context, att *attestation.Attestation) (attestation.ProcessingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if att.Data.Slot > g.clock.CurrentSlot() {
		return attestation.ProcessingResult{Status: attestation.SavedForFuture}, nil
	}

	if !g.blocks.HasBlock(att.Data.BeaconBlockRoot) {
		return attestation.ProcessingResult{Status: attestation.UnknownBlock}, nil
	}

	indexed, ok := att.IndexedForm()
	if !ok {
		return attestation.ProcessingResult{
			Status: attestation.Invalid,
			Reason: "attestation has no indexed form",
		}, nil
	}

	if err := g.votes.ProcessAttestation(ctx, indexed.AttestingIndices, att.Data.BeaconBlockRoot, att.Data.Target.Epoch); err != nil {
		if errors.Is(err, ErrDeferProcessing) {
			return attestation.ProcessingResult{Status: attestation.DeferForkChoiceProcessing}, nil
		}
		return attestation.ProcessingResult{Status: attestation.Invalid, Reason: err.Error()}, nil
	}

	if g.recorder != nil {
		g.recorder.SaveForkchoiceAttestation(att)
	}
	return attestation.ProcessingResult{Status: attestation.Successful}, nil
}

// ApplyIndexedAttestations applies every attestation in atts directly,
// used when the future-items pool drains a batch whose slot has
// finally arrived; each must already carry its indexed form.
func (g *Gateway) ApplyIndexedAttestations(ctx context.Context, atts []*attestation.Attestation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, att := range atts {
		indexed, ok := att.IndexedForm()
		if !ok {
			log.WithField("slot", att.Data.Slot).Warn("Skipping drained attestation with no indexed form")
			continue
		}
		if err := g.votes.ProcessAttestation(ctx, indexed.AttestingIndices, att.Data.BeaconBlockRoot, att.Data.Target.Epoch); err != nil {
			log.WithError(err).Warn("Could not apply drained attestation to fork choice")
		}
	}
	return nil
}

// ApplyDeferredAttestations applies a batch of per-slot vote buckets
// drained from the deferred-votes pool, one ProcessAttestation call
// per distinct validator vote in each bucket.
func (g *Gateway) ApplyDeferredAttestations(ctx context.Context, votes []*deferred.Votes) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, bucket := range votes {
		for idx, data := range bucket.ByValidator {
			if err := g.votes.ProcessAttestation(ctx, []primitives.ValidatorIndex{idx}, data.BeaconBlockRoot, data.Target.Epoch); err != nil {
				log.WithError(err).WithField("validatorIndex", idx).Warn("Could not apply deferred vote to fork choice")
			}
		}
	}
	return nil
}
