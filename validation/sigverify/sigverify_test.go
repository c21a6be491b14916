package sigverify

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeVerifier struct {
	mu          sync.Mutex
	batchCalls  int
	invalidMsg  [32]byte
	hasInvalid  bool
}

func (f *fakeVerifier) VerifyBatch(sets []SignatureSet) (bool, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	for _, s := range sets {
		if f.hasInvalid && s.Message == f.invalidMsg {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeVerifier) VerifyOne(set SignatureSet) (bool, error) {
	return set.Message != f.invalidMsg, nil
}

func TestService_VerifyBatchAllValid(t *testing.T) {
	v := &fakeVerifier{}
	s := New(Config{Verifier: v, BatchSize: 4, BatchDeadline: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i byte) {
			defer wg.Done()
			set := SignatureSet{Message: [32]byte{i}}
			ok, err := s.Verify(context.Background(), set)
			if err != nil || !ok {
				t.Errorf("expected valid verification, got ok=%v err=%v", ok, err)
			}
		}(byte(i))
	}
	wg.Wait()
}

func TestService_BisectsFailedBatch(t *testing.T) {
	v := &fakeVerifier{hasInvalid: true, invalidMsg: [32]byte{9}}
	s := New(Config{Verifier: v, BatchSize: 2, BatchDeadline: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	// Submit both concurrently so they can share one batch of size 2,
	// whose batch check fails and falls back to individual checks.
	var good, bad bool
	var goodErr, badErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		good, goodErr = s.Verify(context.Background(), SignatureSet{Message: [32]byte{1}})
	}()
	go func() {
		defer wg.Done()
		bad, badErr = s.Verify(context.Background(), SignatureSet{Message: [32]byte{9}})
	}()
	wg.Wait()

	if goodErr != nil {
		t.Fatalf("unexpected error: %v", goodErr)
	}
	if badErr != nil {
		t.Fatalf("unexpected error: %v", badErr)
	}

	if !good {
		t.Fatalf("expected valid set to pass after bisection")
	}
	if bad {
		t.Fatalf("expected invalid set to fail after bisection")
	}
}

func TestService_DeadlineFlushesPartialBatch(t *testing.T) {
	v := &fakeVerifier{}
	s := New(Config{Verifier: v, BatchSize: 100, BatchDeadline: 15 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	ok, err := s.Verify(context.Background(), SignatureSet{Message: [32]byte{5}})
	if err != nil || !ok {
		t.Fatalf("expected single request to flush on deadline, got ok=%v err=%v", ok, err)
	}
}
