// Package sigverify batches signature verification requests from the
// attestation pipeline so that expensive pairing checks run a handful
// at a time rather than once per attestation.
package sigverify

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("prefix", "sigverify")

// SignatureSet is an opaque (public keys, message, signature) triple.
// Constructing one from a raw attestation and verifying it are both
// out of scope here; the pipeline's validators build sets and hand
// them to the service.
type SignatureSet struct {
	PublicKeys [][]byte
	Message    [32]byte
	Signature  []byte
}

// Verifier is the external collaborator that actually runs pairing
// checks. A production binary wires this to a BLS implementation; for
// anything in this package, it is supplied by the caller.
type Verifier interface {
	// VerifyBatch reports whether every set in the batch verifies. A
	// false result with a nil error means at least one set is invalid,
	// not that verification itself failed.
	VerifyBatch(sets []SignatureSet) (bool, error)
	// VerifyOne checks a single set, used to bisect a failed batch.
	VerifyOne(set SignatureSet) (bool, error)
}

const (
	defaultBatchSize     = 64
	defaultBatchDeadline = 50 * time.Millisecond
)

type request struct {
	set    SignatureSet
	result chan result
}

type result struct {
	ok  bool
	err error
}

// Service coalesces concurrent Verify calls into batches, flushing
// whichever comes first of a size threshold or a deadline timer.
type Service struct {
	verifier      Verifier
	batchSize     int
	batchDeadline time.Duration

	incoming chan request

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config configures a Service.
type Config struct {
	Verifier      Verifier
	BatchSize     int
	BatchDeadline time.Duration
}

// New builds a Service in the stopped state; call Start to begin
// draining.
func New(cfg Config) *Service {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	deadline := cfg.BatchDeadline
	if deadline <= 0 {
		deadline = defaultBatchDeadline
	}
	return &Service{
		verifier:      cfg.Verifier,
		batchSize:     batchSize,
		batchDeadline: deadline,
		incoming:      make(chan request, batchSize*4),
	}
}

// Start launches the batch-draining loop. The attestation manager
// controls this lifecycle directly, starting it alongside its own
// Start and stopping it before its own Stop completes.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop drains no further requests and waits for the run loop to exit.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// Verify enqueues set and blocks until its batch has been checked.
func (s *Service) Verify(ctx context.Context, set SignatureSet) (bool, error) {
	req := request{set: set, result: make(chan result, 1)}
	select {
	case s.incoming <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.ctx.Done():
		return false, errors.New("signature verification service stopped")
	}

	select {
	case res := <-req.result:
		return res.ok, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.batchDeadline)
	defer ticker.Stop()

	batch := make([]request, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.verifyBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case req := <-s.incoming:
			batch = append(batch, req)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.ctx.Done():
			flush()
			return
		}
	}
}

// verifyBatch runs the batch check; on failure it bisects by verifying
// each set individually so a single bad signature does not fail every
// other attestation sharing the batch.
func (s *Service) verifyBatch(batch []request) {
	sets := make([]SignatureSet, len(batch))
	for i, req := range batch {
		sets[i] = req.set
	}

	ok, err := s.verifier.VerifyBatch(sets)
	if err != nil {
		for _, req := range batch {
			req.result <- result{err: err}
		}
		return
	}
	if ok {
		for _, req := range batch {
			req.result <- result{ok: true}
		}
		return
	}

	log.WithField("batchSize", len(batch)).Debug("Batch verification failed, falling back to individual checks")

	g, _ := errgroup.WithContext(s.ctx)
	for _, req := range batch {
		req := req
		g.Go(func() error {
			ok, err := s.verifier.VerifyOne(req.set)
			req.result <- result{ok: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()
}
