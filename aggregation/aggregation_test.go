package aggregation

import (
	"testing"

	bitfield "github.com/prysmaticlabs/go-bitfield"

	"github.com/prysmaticlabs/attestpipe/attestation"
	"github.com/prysmaticlabs/attestpipe/config/params"
	"github.com/prysmaticlabs/attestpipe/primitives"
)

func init() {
	params.SetActive(params.MinimalTestConfig())
}

func newAtt(slot primitives.Slot, bits bitfield.Bitlist) *attestation.Attestation {
	data := attestation.Data{Slot: slot}
	return attestation.NewAttestation(data, bits, nil, false, true)
}

func TestPool_SaveUnaggregatedOverwritesSameVote(t *testing.T) {
	p := New()
	bits := bitfield.NewBitlist(8)

	p.SaveUnaggregated(newAtt(1, bits))
	p.SaveUnaggregated(newAtt(1, bits))

	if got := p.UnaggregatedCount(); got != 1 {
		t.Fatalf("expected 1 distinct vote, got %d", got)
	}
}

func TestPool_SaveAggregateAndSeen(t *testing.T) {
	p := New()
	bits := bitfield.NewBitlist(8)
	bits.SetBitAt(0, true)
	att := newAtt(3, bits)

	if p.HasSeenAggregate(att) {
		t.Fatalf("expected fresh aggregate to be unseen")
	}
	p.SaveAggregate(att)
	if !p.HasSeenAggregate(att) {
		t.Fatalf("expected aggregate to be marked seen")
	}

	got := p.AggregatedForData(att.Data)
	if len(got) != 1 {
		t.Fatalf("expected 1 aggregate stored, got %d", len(got))
	}
}

func TestPool_TrimBeforeFinality(t *testing.T) {
	p := New()
	bits := bitfield.NewBitlist(8)

	p.SaveUnaggregated(newAtt(1, bits))
	p.SaveUnaggregated(newAtt(10, bits))
	p.SaveAggregate(newAtt(1, bits))

	p.TrimBefore(5)

	if got := p.UnaggregatedCount(); got != 1 {
		t.Fatalf("expected only the slot-10 vote to survive trimming, got %d", got)
	}
	if got := p.AggregatedForData(attestation.Data{Slot: 1}); len(got) != 0 {
		t.Fatalf("expected aggregated bucket for slot 1 trimmed, got %d", len(got))
	}
}
