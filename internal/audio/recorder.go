package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hablalabs/habla-core/internal/config"
)

var (
	// ErrAlreadyCapturing is returned by Start while a capture is active.
	ErrAlreadyCapturing = errors.New("already capturing")
	// ErrNotCapturing is returned by Stop when no capture is active.
	ErrNotCapturing = errors.New("not capturing")
	// ErrNoAudioCaptured is returned by Stop when the buffer is empty.
	ErrNoAudioCaptured = errors.New("no audio captured")
	// ErrCaptureDevice wraps failures opening or reading the input stream.
	ErrCaptureDevice = errors.New("capture device error")
)

// pollInterval is how often the capture loop checks the silence gate,
// independent of chunk arrival.
const pollInterval = 100 * time.Millisecond

// Recorder owns the ring buffer and silence gate for one input source and
// runs the capture loop on its own goroutine. A completed segment is handed
// to the completion callback when the silence gate fires; manual Stop
// returns the segment directly.
type Recorder struct {
	cfg    config.AudioConfig
	source Source
	logger *slog.Logger

	mu        sync.Mutex
	capturing bool
	ring      *RingCapture
	gate      *SilenceGate
	cancel    context.CancelFunc

	onComplete func(Segment)
	onError    func(error)
}

func NewRecorder(cfg config.AudioConfig, source Source, logger *slog.Logger) *Recorder {
	capacity := int(float64(cfg.SampleRate) * cfg.BufferDuration)
	return &Recorder{
		cfg:    cfg,
		source: source,
		logger: logger.With(slog.String("component", "recorder")),
		ring:   NewRingCapture(capacity),
		gate: NewSilenceGate(cfg.SilenceThreshold,
			time.Duration(cfg.SilenceDuration*float64(time.Second))),
	}
}

// SetCallbacks installs the completion and error callbacks. Must be called
// before Start.
func (r *Recorder) SetCallbacks(onComplete func(Segment), onError func(error)) {
	r.onComplete = onComplete
	r.onError = onError
}

func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// Start transitions Idle to Capturing, clearing any stale buffer contents
// and the silence timer. The Capturing reservation is taken in one critical
// section before the input stream opens, so a concurrent Start gets
// ErrAlreadyCapturing instead of racing the unlocked Open. An open failure
// rolls the state back to Idle.
func (r *Recorder) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.capturing {
		r.mu.Unlock()
		cancel()
		return ErrAlreadyCapturing
	}
	r.capturing = true
	r.ring.Clear()
	r.gate.Reset()
	r.cancel = cancel
	r.mu.Unlock()

	if err := r.source.Open(loopCtx); err != nil {
		r.mu.Lock()
		r.capturing = false
		r.cancel = nil
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %v", ErrCaptureDevice, err)
	}

	go r.captureLoop(loopCtx)
	r.logger.Info("capture started",
		slog.Int("sample_rate", r.cfg.SampleRate),
		slog.Float64("silence_threshold", r.cfg.SilenceThreshold))
	return nil
}

// Stop transitions Capturing to Idle and returns the accumulated segment.
// It is safe to call from any goroutine, including the capture loop itself:
// it signals cancellation instead of joining the loop.
func (r *Recorder) Stop() (Segment, error) {
	r.mu.Lock()
	if !r.capturing {
		r.mu.Unlock()
		return Segment{}, ErrNotCapturing
	}
	r.capturing = false
	cancel := r.cancel
	r.cancel = nil
	samples := r.ring.Snapshot()
	r.mu.Unlock()

	cancel()

	if len(samples) == 0 {
		r.logger.Warn("capture stopped with empty buffer")
		return Segment{}, ErrNoAudioCaptured
	}
	seg := Segment{Samples: samples, SampleRate: r.cfg.SampleRate}
	r.logger.Info("capture stopped", slog.Duration("duration", seg.Duration()))
	return seg, nil
}

func (r *Recorder) captureLoop(ctx context.Context) {
	defer func() {
		if err := r.source.Close(); err != nil {
			r.logger.Warn("failed to close source", slogError(err))
		}
	}()

	chunks := make(chan []float32)
	readErr := make(chan error, 1)
	go func() {
		for {
			chunk, err := r.source.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("capture read failed", slogError(err))
			if _, stopErr := r.Stop(); stopErr != nil && !errors.Is(stopErr, ErrNoAudioCaptured) {
				r.logger.Warn("stop after read failure", slogError(stopErr))
			}
			if r.onError != nil {
				r.onError(fmt.Errorf("%w: %v", ErrCaptureDevice, err))
			}
			return
		case chunk := <-chunks:
			r.mu.Lock()
			if r.capturing {
				r.ring.Append(chunk)
				r.gate.Observe(RMS(chunk), time.Now())
			}
			r.mu.Unlock()
		case now := <-ticker.C:
			r.mu.Lock()
			expired := r.capturing && r.gate.Expired(now)
			r.mu.Unlock()
			if !expired {
				continue
			}
			r.logger.Info("auto-stopping after sustained silence")
			seg, err := r.Stop()
			if err != nil {
				if !errors.Is(err, ErrNoAudioCaptured) {
					r.logger.Warn("auto-stop failed", slogError(err))
				}
				return
			}
			if r.onComplete != nil {
				r.onComplete(seg)
			}
			return
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
