// Package manager implements the orchestrator that ties the waiting
// areas, the validators, the signature verification service, and the
// fork-choice gateway into the single entry point the rest of the node
// calls to submit attestations and report new blocks and slots.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/prysmaticlabs/attestpipe/aggregation"
	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/cache/deferred"
	"github.com/prysmaticlabs/attestpipe/cache/futureitems"
	"github.com/prysmaticlabs/attestpipe/cache/pendingpool"
	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/forkchoice"
	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/validation/sigverify"
)

var log = logrus.WithField("prefix", "manager")

// AttestationValidator classifies an individual attestation before it
// ever touches fork choice.
type AttestationValidator interface {
	Validate(ctx context.Context, att *attestation.Attestation) (attestation.InternalValidationResult, error)
}

// AggregateValidator classifies an aggregate attestation and records
// aggregates the node itself produced, so that a later re-broadcast of
// the same aggregate is recognized as a duplicate.
type AggregateValidator interface {
	Validate(ctx context.Context, att *attestation.Attestation) (attestation.InternalValidationResult, error)
	AddSeenAggregate(att *attestation.Attestation)
}

// Clock exposes the current slot to drive the manager's slot ticker.
type Clock interface {
	CurrentSlot() primitives.Slot
}

// Listener receives every attestation the manager has finished
// processing for a given purpose (gossip re-send, or general
// bookkeeping).
type Listener func(att *attestation.Attestation)

// ActiveValidatorChannel notifies the active-validator tracker of the
// two events it needs to decide which validators are still live: an
// attestation clearing fork-choice classification, and a block being
// imported. The manager calls OnBlockImported for every imported block
// and OnAttestation after every fork-choice classification; an
// attestation short-circuited as already pending does not reach fork
// choice and is not reported. A no-op implementation is valid when
// nothing tracks validator liveness.
type ActiveValidatorChannel interface {
	OnAttestation(att *attestation.Attestation)
	OnBlockImported(blockRoot primitives.Root)
}

// Config wires the manager's collaborators together. All fields are
// required except ActiveValidators, which may be nil.
type Config struct {
	ForkChoice       forkchoice.ForkChoicer
	AttPool          *aggregation.Pool
	AttValidator     AttestationValidator
	AggValidator     AggregateValidator
	SigVerif         *sigverify.Service
	Clock            Clock
	ActiveValidators ActiveValidatorChannel
}

// Manager is the single entry point for attestations flowing into the
// pipeline, whether from gossip or produced locally.
type Manager struct {
	forkChoice       forkchoice.ForkChoicer
	attPool          *aggregation.Pool
	attValidator     AttestationValidator
	aggValidator     AggregateValidator
	sigVerif         *sigverify.Service
	clock            Clock
	activeValidators ActiveValidatorChannel

	pending  *pendingpool.Pool[*attestation.Attestation]
	future   *futureitems.Pool[*attestation.Attestation]
	deferred *deferred.Pool

	sendLock      sync.Mutex
	sendListeners []Listener

	validLock      sync.Mutex
	validListeners []Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Manager over cfg's collaborators.
func New(cfg Config) *Manager {
	return &Manager{
		forkChoice:       cfg.ForkChoice,
		attPool:          cfg.AttPool,
		attValidator:     cfg.AttValidator,
		aggValidator:     cfg.AggValidator,
		sigVerif:         cfg.SigVerif,
		clock:            cfg.Clock,
		activeValidators: cfg.ActiveValidators,
		pending:          pendingpool.New[*attestation.Attestation](),
		future:           futureitems.New[*attestation.Attestation](),
		deferred:         deferred.New(),
	}
}

// SubscribeToAttestationsToSend registers fn to be called for every
// attestation the manager decides is worth (re-)gossiping.
func (m *Manager) SubscribeToAttestationsToSend(fn Listener) {
	m.sendLock.Lock()
	defer m.sendLock.Unlock()
	m.sendListeners = append(m.sendListeners, fn)
}

// SubscribeToAllValidAttestations registers fn to be called for every
// attestation the manager accepts, gossip-bound or not.
func (m *Manager) SubscribeToAllValidAttestations(fn Listener) {
	m.validLock.Lock()
	defer m.validLock.Unlock()
	m.validListeners = append(m.validListeners, fn)
}

func (m *Manager) notifySend(att *attestation.Attestation) {
	m.sendLock.Lock()
	listeners := append([]Listener(nil), m.sendListeners...)
	m.sendLock.Unlock()
	for _, fn := range listeners {
		fn(att)
	}
}

func (m *Manager) notifyValid(att *attestation.Attestation) {
	m.validLock.Lock()
	listeners := append([]Listener(nil), m.validListeners...)
	m.validLock.Unlock()
	for _, fn := range listeners {
		fn(att)
	}
}

// Start launches the signature verification service and the internal
// slot ticker that drives deferred and future-item draining.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.sigVerif.Start(m.ctx); err != nil {
		return err
	}

	cfg := params.BeaconConfig()
	m.wg.Add(1)
	go m.runSlotTicker(time.Duration(cfg.SecondsPerSlot) * time.Second)
	return nil
}

// Stop tears down the slot ticker and the signature verification
// service it owns.
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return m.sigVerif.Stop()
}

func (m *Manager) runSlotTicker(slotDuration time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(slotDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.OnSlot(m.clock.CurrentSlot())
		case <-m.ctx.Done():
			return
		}
	}
}

// AddAttestation validates att as an individual attestation and, if
// accepted or saved for future, forwards it to fork choice.
func (m *Manager) AddAttestation(ctx context.Context, att *attestation.Attestation) (attestation.InternalValidationResult, error) {
	ctx, span := trace.StartSpan(ctx, "manager.AddAttestation")
	defer span.End()

	result, err := m.attValidator.Validate(ctx, att)
	if err != nil {
		return result, err
	}
	m.processInternallyValidated(ctx, result, att)
	return result, nil
}

// AddAggregate validates att as a committee aggregate and, if accepted
// or saved for future, forwards it to fork choice.
func (m *Manager) AddAggregate(ctx context.Context, att *attestation.Attestation) (attestation.InternalValidationResult, error) {
	ctx, span := trace.StartSpan(ctx, "manager.AddAggregate")
	defer span.End()

	result, err := m.aggValidator.Validate(ctx, att)
	if err != nil {
		return result, err
	}
	m.processInternallyValidated(ctx, result, att)
	return result, nil
}

func (m *Manager) processInternallyValidated(ctx context.Context, result attestation.InternalValidationResult, att *attestation.Attestation) {
	if !result.IsAcceptOrSaveForFuture() {
		return
	}
	procResult, err := m.OnAttestation(ctx, att)
	if err != nil {
		log.WithError(err).Error("Failed to process received attestation")
		return
	}
	procResult.IfInvalid(func(reason string) {
		log.WithField("reason", reason).Debug("Rejected received attestation")
	})
	m.notifyValid(att)
}

// OnAttestation is the core state machine step: it short-circuits
// attestations already parked on a missing block, otherwise asks fork
// choice to classify att and routes it to the matching waiting area.
func (m *Manager) OnAttestation(ctx context.Context, att *attestation.Attestation) (attestation.ProcessingResult, error) {
	if m.pending.Contains(att) {
		return attestation.ProcessingResult{Status: attestation.SavedForFuture}, nil
	}

	result, err := m.forkChoice.OnAttestation(ctx, att)
	if err != nil {
		return result, err
	}

	if m.activeValidators != nil {
		m.activeValidators.OnAttestation(att)
	}

	switch result.Status {
	case attestation.Successful:
		m.saveToPool(att)
		m.sendIfProducedLocally(att)
	case attestation.UnknownBlock:
		m.pending.Add(att.Data.BeaconBlockRoot, att)
	case attestation.DeferForkChoiceProcessing:
		m.sendIfProducedLocally(att)
		m.saveToPool(att)
		if indexed, ok := att.IndexedForm(); ok {
			m.deferred.AddAttestation(indexed)
		}
	case attestation.SavedForFuture:
		m.saveToPool(att)
		m.future.Add(att.Data.Slot, att)
	case attestation.Invalid:
		// Nothing to route; the caller logs the reason.
	}
	return result, nil
}

// saveToPool stores att in whichever of the pool's two maps matches
// its shape, so remote aggregates accepted by fork choice end up
// alongside locally-produced ones instead of only in the unaggregated
// map.
func (m *Manager) saveToPool(att *attestation.Attestation) {
	if att.IsAggregate() {
		m.attPool.SaveAggregate(att)
		return
	}
	m.attPool.SaveUnaggregated(att)
}

func (m *Manager) sendIfProducedLocally(att *attestation.Attestation) {
	if !att.IsProducedLocally() {
		return
	}
	if att.IsAggregate() {
		m.aggValidator.AddSeenAggregate(att)
	}
	m.notifySend(att)
	m.notifyValid(att)
	att.MarkGossiped()
}

// OnBlockImported drains every attestation parked on blockRoot and
// resubmits each through OnAttestation directly, bypassing validation
// since these attestations were already validated before being parked.
func (m *Manager) OnBlockImported(ctx context.Context, blockRoot primitives.Root) {
	if m.activeValidators != nil {
		m.activeValidators.OnBlockImported(blockRoot)
	}

	pendingAtts := m.pending.GetItemsDependingOn(blockRoot)
	for _, att := range pendingAtts {
		if _, err := m.OnAttestation(ctx, att); err != nil {
			log.WithError(err).WithField("blockRoot", blockRoot).Error("Failed to process pending attestation dependent on imported block")
		}
	}
}

// OnSlot advances slot-dependent state: it applies deferred votes for
// the slot that just started and drains any future-items attestations
// that have now become current.
func (m *Manager) OnSlot(slot primitives.Slot) {
	m.applyDeferredAttestations(slot)
	m.applyFutureAttestations(slot)
}

func (m *Manager) applyDeferredAttestations(slot primitives.Slot) {
	drained := m.deferred.Prune(slot)
	if len(drained) == 0 {
		return
	}
	if err := m.forkChoice.ApplyDeferredAttestations(m.ctx, drained); err != nil {
		log.WithError(err).Error("Could not apply deferred attestations")
	}
}

func (m *Manager) applyFutureAttestations(slot primitives.Slot) {
	m.future.OnSlot(slot)
	atts := m.future.Prune(slot)
	if len(atts) == 0 {
		return
	}
	if err := m.forkChoice.ApplyIndexedAttestations(m.ctx, atts); err != nil {
		log.WithError(err).Error("Could not apply future attestations")
	}
	for _, att := range atts {
		if !att.IsProducedLocally() || att.IsGossiped() {
			continue
		}
		m.notifySend(att)
		m.notifyValid(att)
	}
}
