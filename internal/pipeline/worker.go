package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hablalabs/habla-core/internal/audio"
)

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = errors.New("pipeline worker closed")

// Outcome is the completion value of one submitted segment.
type Outcome struct {
	Result Result
	Err    error
}

type job struct {
	segment audio.Segment
	done    chan Outcome
}

// Worker owns the execution context for pipeline runs so that capture never
// blocks on model inference. Submissions queue in order; the exclusive model
// lock inside the orchestrator keeps runs strictly sequential even if the
// queue is drained by more than one goroutine.
type Worker struct {
	orch   *Orchestrator
	logger *slog.Logger
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewWorker(parent context.Context, orch *Orchestrator, queueDepth int, logger *slog.Logger) *Worker {
	if queueDepth < 1 {
		queueDepth = 1
	}
	ctx, cancel := context.WithCancel(parent)
	w := &Worker{
		orch:   orch,
		logger: logger.With(slog.String("component", "pipeline-worker")),
		jobs:   make(chan job, queueDepth),
		ctx:    ctx,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues a segment and returns its completion channel. The channel
// receives exactly one Outcome and is never closed without a send.
func (w *Worker) Submit(seg audio.Segment) (<-chan Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWorkerClosed
	}
	j := job{segment: seg, done: make(chan Outcome, 1)}
	select {
	case w.jobs <- j:
		return j.done, nil
	case <-w.ctx.Done():
		return nil, ErrWorkerClosed
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case j := <-w.jobs:
			result, err := w.orch.Process(w.ctx, j.segment)
			j.done <- Outcome{Result: result, Err: err}
		}
	}
}

// drain fails any jobs still queued at shutdown so no submitter blocks on a
// completion that will never arrive.
func (w *Worker) drain() {
	for {
		select {
		case j := <-w.jobs:
			j.done <- Outcome{Err: ErrWorkerClosed}
		default:
			return
		}
	}
}

func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
