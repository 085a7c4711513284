package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hablalabs/habla-core/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedSource replays chunks at a fixed interval, then blocks until the
// capture context is cancelled.
type scriptedSource struct {
	chunks   [][]float32
	interval time.Duration
	openErr  error
	next     int
}

func (s *scriptedSource) Open(context.Context) error { return s.openErr }
func (s *scriptedSource) Close() error               { return nil }

func (s *scriptedSource) Read(ctx context.Context) ([]float32, error) {
	if s.next >= len(s.chunks) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.interval):
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:       16000,
		Channels:         1,
		BufferDuration:   2,
		ChunkDurationMS:  20,
		SilenceThreshold: 0.01,
		SilenceDuration:  0.15,
	}
}

func loudChunk(n int) []float32 {
	chunk := make([]float32, n)
	for i := range chunk {
		chunk[i] = 0.5
	}
	return chunk
}

func quietChunk(n int) []float32 {
	return make([]float32, n)
}

func TestStartWhileCapturing(t *testing.T) {
	src := &scriptedSource{interval: 5 * time.Millisecond}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	t.Cleanup(func() { _, _ = r.Stop() })

	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("expected ErrAlreadyCapturing, got %v", err)
	}
}

func TestStopEmptyBuffer(t *testing.T) {
	src := &scriptedSource{interval: 5 * time.Millisecond}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNoAudioCaptured) {
		t.Fatalf("expected ErrNoAudioCaptured, got %v", err)
	}
	if r.Capturing() {
		t.Fatal("recorder must return to idle after stop")
	}
	// idle again: a fresh start must succeed
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	_, _ = r.Stop()
}

func TestStopWhileIdle(t *testing.T) {
	r := NewRecorder(testAudioConfig(), &scriptedSource{}, newTestLogger())
	if _, err := r.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("expected ErrNotCapturing, got %v", err)
	}
}

func TestManualStopReturnsSegment(t *testing.T) {
	src := &scriptedSource{
		chunks:   [][]float32{loudChunk(320), loudChunk(320)},
		interval: 5 * time.Millisecond,
	}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	seg, err := r.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(seg.Samples) != 640 {
		t.Fatalf("expected 640 samples, got %d", len(seg.Samples))
	}
	if seg.SampleRate != 16000 {
		t.Fatalf("unexpected sample rate %d", seg.SampleRate)
	}
}

func TestAutoStopOnSilence(t *testing.T) {
	chunks := [][]float32{loudChunk(320)}
	for i := 0; i < 30; i++ {
		chunks = append(chunks, quietChunk(320))
	}
	src := &scriptedSource{chunks: chunks, interval: 10 * time.Millisecond}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	done := make(chan Segment, 2)
	r.SetCallbacks(func(seg Segment) { done <- seg }, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case seg := <-done:
		if len(seg.Samples) == 0 {
			t.Fatal("auto-stop emitted an empty segment")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("recorder did not auto-stop on silence")
	}

	if r.Capturing() {
		t.Fatal("recorder must be idle after auto-stop")
	}

	// the gate fires exactly once
	select {
	case <-done:
		t.Fatal("completion callback fired more than once")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStartFailsWhenSourceCannotOpen(t *testing.T) {
	src := &scriptedSource{openErr: errors.New("device busy")}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	err := r.Start(context.Background())
	if !errors.Is(err, ErrCaptureDevice) {
		t.Fatalf("expected ErrCaptureDevice, got %v", err)
	}
	if r.Capturing() {
		t.Fatal("failed start must leave recorder idle")
	}
}

func TestStaleBufferClearedOnRestart(t *testing.T) {
	src := &scriptedSource{
		chunks:   [][]float32{loudChunk(320)},
		interval: 5 * time.Millisecond,
	}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// second run captures nothing; stale samples must not leak through
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNoAudioCaptured) {
		t.Fatalf("expected ErrNoAudioCaptured on clean restart, got %v", err)
	}
}

// slowOpenSource parks inside Open until released, exposing the window
// between the state reservation and the stream opening.
type slowOpenSource struct {
	opened  chan struct{}
	release chan struct{}
}

func (s *slowOpenSource) Open(context.Context) error {
	close(s.opened)
	<-s.release
	return nil
}

func (s *slowOpenSource) Close() error { return nil }

func (s *slowOpenSource) Read(ctx context.Context) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStartConcurrentWithSlowOpen(t *testing.T) {
	src := &slowOpenSource{opened: make(chan struct{}), release: make(chan struct{})}
	r := NewRecorder(testAudioConfig(), src, newTestLogger())

	firstErr := make(chan error, 1)
	go func() { firstErr <- r.Start(context.Background()) }()

	<-src.opened
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyCapturing while first is opening", err)
	}

	close(src.release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if !r.Capturing() {
		t.Fatal("recorder must be capturing after the winning Start")
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNoAudioCaptured) {
		t.Fatalf("Stop() error = %v, want ErrNoAudioCaptured for an empty buffer", err)
	}
}
