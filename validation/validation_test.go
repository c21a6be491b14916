package validation

import (
	"context"
	"testing"
	"time"

	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/prysmaticlabs/attestpipe/aggregation"
	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/primitives"
	"github.com/prysmaticlabs/attestpipe/validation/sigverify"
)

type fixedClock struct{ slot primitives.Slot }

func (f fixedClock) CurrentSlot() primitives.Slot { return f.slot }

type alwaysValidVerifier struct{}

func (alwaysValidVerifier) VerifyBatch(sets []sigverify.SignatureSet) (bool, error) { return true, nil }
func (alwaysValidVerifier) VerifyOne(set sigverify.SignatureSet) (bool, error)       { return true, nil }

func newSigVerif(t *testing.T) *sigverify.Service {
	t.Helper()
	s := sigverify.New(sigverify.Config{Verifier: alwaysValidVerifier{}, BatchSize: 4, BatchDeadline: 5 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start sigverify: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestAttestationValidator_AcceptsCurrentSlot(t *testing.T) {
	params.SetActive(params.MainnetConfig())
	v := NewAttestationValidator(fixedClock{slot: 10}, newSigVerif(t))

	att := attestation.NewAttestation(attestation.Data{Slot: 10}, bitfield.NewBitlist(8), []byte{1}, false, false)
	res, err := v.Validate(context.Background(), att)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != attestation.Accept {
		t.Fatalf("expected Accept, got %v (%s)", res.Code, res.Reason)
	}
}

func TestAttestationValidator_SavesForFutureSlot(t *testing.T) {
	params.SetActive(params.MainnetConfig())
	v := NewAttestationValidator(fixedClock{slot: 10}, newSigVerif(t))

	att := attestation.NewAttestation(attestation.Data{Slot: 11}, bitfield.NewBitlist(8), []byte{1}, false, false)
	res, err := v.Validate(context.Background(), att)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != attestation.SaveForFuture {
		t.Fatalf("expected SaveForFuture, got %v", res.Code)
	}
}

func TestAttestationValidator_RejectsMissingSignature(t *testing.T) {
	params.SetActive(params.MainnetConfig())
	v := NewAttestationValidator(fixedClock{slot: 10}, newSigVerif(t))

	att := attestation.NewAttestation(attestation.Data{Slot: 10}, bitfield.NewBitlist(8), nil, false, false)
	res, err := v.Validate(context.Background(), att)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != attestation.Reject {
		t.Fatalf("expected Reject, got %v", res.Code)
	}
}

func TestAggregateAttestationValidator_IgnoresDuplicateAggregate(t *testing.T) {
	params.SetActive(params.MainnetConfig())
	pool := aggregation.New()
	v := NewAggregateAttestationValidator(fixedClock{slot: 10}, newSigVerif(t), pool)

	bits := bitfield.NewBitlist(8)
	att := attestation.NewAttestation(attestation.Data{Slot: 10}, bits, []byte{1}, false, true)
	pool.SaveAggregate(att)

	res, err := v.Validate(context.Background(), att)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != attestation.Ignore {
		t.Fatalf("expected Ignore for duplicate aggregate, got %v", res.Code)
	}
}
