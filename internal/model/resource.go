package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrLoadTimeout indicates the transcription model did not become ready
	// within the load deadline.
	ErrLoadTimeout = errors.New("model load timed out")
	// ErrModelLoadFailed wraps any other initialization failure.
	ErrModelLoadFailed = errors.New("model load failed")
	// ErrNotInitialized is returned when the resource is used before a
	// successful Initialize.
	ErrNotInitialized = errors.New("models not initialized")
)

// transcriberLoadTimeout bounds the slowest and most failure-prone load step.
const transcriberLoadTimeout = 30 * time.Second

// Loader prepares a backend before first use. Backends that need no warmup
// simply do not implement it.
type Loader interface {
	Load(ctx context.Context) error
}

// Handles is the loaded model set exposed to a pipeline run while it holds
// exclusive access.
type Handles struct {
	Transcriber Transcriber
	Translator  Translator
	Enhancer    Enhancer
}

// Resource is the exclusive-access wrapper around the model set. A single
// mutex covers the whole set so that pipeline runs and configuration-driven
// enhancer swaps are strictly serialized.
type Resource struct {
	mu          sync.Mutex
	transcriber Transcriber
	translator  Translator
	enhancer    Enhancer
	initialized bool
	logger      *slog.Logger
}

func NewResource(transcriber Transcriber, translator Translator, enhancer Enhancer, logger *slog.Logger) *Resource {
	return &Resource{
		transcriber: transcriber,
		translator:  translator,
		enhancer:    enhancer,
		logger:      logger.With(slog.String("component", "model-resource")),
	}
}

// Initialize warms up the model set. The transcriber load is bounded by a
// hard timeout; on expiry the load is abandoned and surfaced as
// ErrLoadTimeout, never retried automatically.
func (r *Resource) Initialize(ctx context.Context, progress Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		report(progress, "models ready", 100)
		return nil
	}

	report(progress, "loading transcription model", 0)
	if err := r.loadWithTimeout(ctx, r.transcriber); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: transcriber load interrupted by caller deadline: %v", ErrLoadTimeout, ctxErr)
			}
			return fmt.Errorf("%w: transcriber not ready after %s", ErrLoadTimeout, transcriberLoadTimeout)
		}
		return fmt.Errorf("%w: transcriber: %v", ErrModelLoadFailed, err)
	}

	report(progress, "loading translation model", 50)
	if err := load(ctx, r.translator); err != nil {
		return fmt.Errorf("%w: translator: %v", ErrModelLoadFailed, err)
	}

	if r.enhancer != nil {
		report(progress, "loading enhancement model", 75)
		if err := load(ctx, r.enhancer); err != nil {
			// enhancement is optional: degrade instead of failing startup
			r.logger.Warn("enhancement model unavailable, falling back to deterministic processing",
				slog.String("error", err.Error()))
			r.enhancer = nil
		}
	}

	report(progress, "models ready", 100)
	r.initialized = true
	r.logger.Info("model set initialized", slog.Bool("enhancer_loaded", r.enhancer != nil))
	return nil
}

func (r *Resource) loadWithTimeout(ctx context.Context, target any) error {
	loadCtx, cancel := context.WithTimeout(ctx, transcriberLoadTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- load(loadCtx, target) }()

	select {
	case err := <-done:
		return err
	case <-loadCtx.Done():
		return loadCtx.Err()
	}
}

func load(ctx context.Context, target any) error {
	if loader, ok := target.(Loader); ok {
		return loader.Load(ctx)
	}
	return nil
}

// Initialized reports whether Initialize completed successfully.
func (r *Resource) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

// WithExclusiveAccess runs fn while holding the sole lock over the model
// set. The lock is released on every exit path. Callers block until any
// in-flight run or swap finishes; there is no queue bound.
func (r *Resource) WithExclusiveAccess(ctx context.Context, fn func(Handles) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(Handles{
		Transcriber: r.transcriber,
		Translator:  r.translator,
		Enhancer:    r.enhancer,
	})
}

// SwapEnhancer releases the previous enhancement handle and installs the
// replacement. Passing nil uninstalls the enhancer and reclaims its memory.
// The swap takes the same exclusive lock as pipeline runs, so it can never
// interrupt a transcribe or translate call already in flight.
func (r *Resource) SwapEnhancer(enhancer Enhancer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enhancer != nil {
		if closer, ok := r.enhancer.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				r.logger.Warn("failed to release enhancement model", slog.String("error", err.Error()))
			}
		}
	}
	r.enhancer = enhancer
	r.logger.Info("enhancement model swapped", slog.Bool("installed", enhancer != nil))
}

// EnhancerLoaded reports whether an enhancement model is currently installed.
func (r *Resource) EnhancerLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enhancer != nil
}

func report(progress Progress, message string, percent int) {
	if progress != nil {
		progress(message, percent)
	}
}
