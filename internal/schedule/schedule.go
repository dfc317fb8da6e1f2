// Package schedule implements the work queue and thread pool (§4.G): a
// fixed-size pool of workers drains a bounded entropy queue, and after each
// subband decode opportunistically scans a transform queue for wavelets
// whose four bands have all gone valid, reconstructing them inline.
//
// The reference decoder drives workers with explicit START/MORE_WORK/STOP
// thread messages over a condition variable. Go's buffered channels already
// give a worker both of its blocking points — "await a message" and "await
// a work item" collapse into one select — so Pool uses a channel in place
// of the message queue; ControlMessage is kept as a named type so the
// mapping from the threading model stays legible rather than for its own
// sake.
package schedule

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gopro-cineform/decoder/internal/diag"
	"github.com/gopro-cineform/decoder/internal/transform"
)

// ControlMessage names the lifecycle signals a worker can receive.
type ControlMessage int

const (
	MsgStart ControlMessage = iota
	MsgMoreWork
	MsgStop
)

// DefaultQueueLength is DECODING_QUEUE_LENGTH: the default bound on the
// entropy queue's capacity. The sample parser blocks on submission once the
// queue is full, which is the pool's only backpressure mechanism.
const DefaultQueueLength = 64

// EntropyJob is one subband descriptor (§4.G's entropy_data[] entry): the
// work a single worker performs is decode, dequantize, optional difference
// coding, and then reporting the band valid.
type EntropyJob struct {
	Wavelet  transform.WaveletHandle
	Band     transform.BandIndex
	Decode   func() error // runs §4.B/§4.C/difference coding against the pre-bound Subband
	OnFailed func(error)  // optional: called with the decode error, in addition to latching it
}

// transformEntry is one transform_queue[] entry: a pending reconstruction
// request plus the claim flag that lets exactly one worker execute it.
type transformEntry struct {
	wavelet transform.WaveletHandle
	run     func(w *transform.Wavelet) error
	claimed bool
}

// Pool is the fixed-size worker pool sharing the entropy and transform
// queues (§4.G).
type Pool struct {
	arena *transform.Arena
	log   diag.Logger

	entropyQueue chan EntropyJob
	workerCount  int

	transformMu sync.Mutex
	transformQ  []*transformEntry

	work sync.WaitGroup
	wg   sync.WaitGroup

	stopCh   chan struct{}
	stopOnce sync.Once

	errMu sync.Mutex
	err   error

	stopped atomic.Bool
}

// NewPool builds a pool of workerCount goroutines sharing arena for band
// validity bookkeeping. queueLength <= 0 selects DefaultQueueLength.
// A nil logger is replaced with diag.Discard.
func NewPool(workerCount, queueLength int, arena *transform.Arena, log diag.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueLength <= 0 {
		queueLength = DefaultQueueLength
	}
	if log == nil {
		log = diag.Discard
	}
	return &Pool{
		arena:        arena,
		log:          log,
		entropyQueue: make(chan EntropyJob, queueLength),
		workerCount:  workerCount,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the worker goroutines. Call once per decode.
func (p *Pool) Start() {
	p.wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go p.workerLoop(i)
	}
	p.log.Log(diag.Debug, "pool started", "workers", p.workerCount)
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case job, ok := <-p.entropyQueue:
			if !ok {
				return
			}
			if p.stopped.Load() {
				p.work.Done()
				return
			}
			p.runEntropy(job)
		}
	}
}

// RegisterTransform adds a reconstruction request to the transform queue
// (§4.G's transform_queue[] entry). It may be called before or after the
// wavelet's bands are submitted as entropy jobs: the readiness check and
// the queue append happen under the same lock the opportunistic scan
// takes. If the wavelet is already reconstructible (every band already
// valid) the entry is claimed and run immediately, inline on the caller's
// goroutine.
func (p *Pool) RegisterTransform(h transform.WaveletHandle, run func(w *transform.Wavelet) error) {
	entry := &transformEntry{wavelet: h, run: run}

	p.transformMu.Lock()
	w := p.arena.Get(h)
	ready := w.Reconstructible()
	if ready {
		entry.claimed = true
	} else {
		p.transformQ = append(p.transformQ, entry)
	}
	p.transformMu.Unlock()

	if ready {
		p.runTransformEntry(entry)
	}
}

// SubmitEntropy enqueues one subband decode. It blocks if the queue is at
// DECODING_QUEUE_LENGTH capacity (§4.G's backpressure requirement) and
// returns an error once the pool has been stopped.
func (p *Pool) SubmitEntropy(job EntropyJob) error {
	if p.stopped.Load() {
		return errors.New("schedule: pool stopped, rejecting submission")
	}
	p.work.Add(1)
	select {
	case p.entropyQueue <- job:
		return nil
	case <-p.stopCh:
		p.work.Done()
		return errors.New("schedule: pool stopped while submission was blocked on backpressure")
	}
}

func (p *Pool) runEntropy(job EntropyJob) {
	defer p.work.Done()
	if err := job.Decode(); err != nil {
		if job.OnFailed != nil {
			job.OnFailed(err)
		}
		p.latchError(errors.Wrapf(err, "entropy decode for wavelet %d band %d", job.Wavelet, job.Band))
		return
	}
	p.markBandAndCascade(job.Wavelet, job.Band)
}

// markBandAndCascade sets one band valid and, while holding transformMu,
// claims every transform queue entry that is now reconstructible. Claimed
// entries are executed after the mutex is released: "no worker holds a
// mutex across an entropy decode or a reconstruction" (§4.G).
func (p *Pool) markBandAndCascade(h transform.WaveletHandle, band transform.BandIndex) {
	p.transformMu.Lock()
	p.arena.Get(h).MarkBandValid(band)
	ready := p.claimReadyLocked()
	p.transformMu.Unlock()

	for _, entry := range ready {
		p.runTransformEntry(entry)
	}
}

// MarkBandValid records one band as valid without an entropy job, for
// bands the half-resolution knob elides entirely (§4.E): the caller has
// already zeroed the band's destination and just needs the cascade to
// proceed as if a worker had decoded it.
func (p *Pool) MarkBandValid(h transform.WaveletHandle, band transform.BandIndex) {
	p.markBandAndCascade(h, band)
}

func (p *Pool) claimReadyLocked() []*transformEntry {
	var ready []*transformEntry
	remaining := p.transformQ[:0]
	for _, entry := range p.transformQ {
		if !entry.claimed && p.arena.Get(entry.wavelet).Reconstructible() {
			entry.claimed = true
			ready = append(ready, entry)
			continue
		}
		remaining = append(remaining, entry)
	}
	p.transformQ = remaining
	return ready
}

// runTransformEntry executes one reconstruction and, if it produced the
// parent's LL band, cascades the parent's validity bit through the same
// claim path. Each wavelet is reconstructed exactly once per sample: once
// claimed here, an entry is removed from the queue and never reconsidered.
func (p *Pool) runTransformEntry(entry *transformEntry) {
	w := p.arena.Get(entry.wavelet)
	if err := entry.run(w); err != nil {
		p.latchError(errors.Wrapf(err, "reconstructing wavelet %d", entry.wavelet))
		return
	}
	if w.Parent != transform.NoParent {
		p.markBandAndCascade(w.Parent, transform.BandLL)
	}
}

func (p *Pool) latchError(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
		p.log.Log(diag.Error, "decode worker failed", "err", err)
	}
}

// Err returns the first error latched by any worker, or nil.
func (p *Pool) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Wait blocks until every submitted entropy job, and every reconstruction
// it cascaded into, has completed, then returns the first latched error.
func (p *Pool) Wait() error {
	p.work.Wait()
	return p.Err()
}

// Stop sends STOP: in-flight items finish, no new item is drawn from the
// queue, and Stop blocks until every worker has exited.
func (p *Pool) Stop() {
	p.stopped.Store(true)
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.log.Log(diag.Debug, "pool stopped")
}
