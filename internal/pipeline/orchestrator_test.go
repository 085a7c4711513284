package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hablalabs/habla-core/internal/audio"
	"github.com/hablalabs/habla-core/internal/config"
	"github.com/hablalabs/habla-core/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSegment() audio.Segment {
	return audio.Segment{Samples: []float32{0.1, 0.2, -0.1, 0.05}, SampleRate: 16000}
}

type stubTranscriber struct {
	text    string
	err     error
	inside  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
}

func (s *stubTranscriber) Transcribe(ctx context.Context, seg audio.Segment, language string) (model.Transcription, error) {
	if s.inside.Add(1) != 1 {
		s.overlap.Store(true)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.inside.Add(-1)
	if s.err != nil {
		return model.Transcription{}, s.err
	}
	return model.Transcription{Text: s.text, Confidence: 0.9, Language: language}, nil
}

type stubTranslator struct {
	err error
}

func (s *stubTranslator) Translate(ctx context.Context, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "translated " + strings.TrimSuffix(text, "."), nil
}

type stubEnhancer struct {
	cleanOut   string
	cleanErr   error
	enhanceOut string
	enhanceErr error
}

func (s *stubEnhancer) CleanText(ctx context.Context, text string) (string, error) {
	if s.cleanErr != nil {
		return "", s.cleanErr
	}
	if s.cleanOut != "" {
		return s.cleanOut, nil
	}
	return text, nil
}

func (s *stubEnhancer) EnhanceTranslation(ctx context.Context, source, translation string) (string, error) {
	if s.enhanceErr != nil {
		return "", s.enhanceErr
	}
	if s.enhanceOut != "" {
		return s.enhanceOut, nil
	}
	return translation, nil
}

func newTestOrchestrator(t *testing.T, cfg config.Config, transcriber model.Transcriber, translator model.Translator, enhancer model.Enhancer) *Orchestrator {
	t.Helper()
	res := model.NewResource(transcriber, translator, enhancer, testLogger())
	if err := res.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return NewOrchestrator(cfg, res, testLogger())
}

func TestProcessNoSpeechDetected(t *testing.T) {
	cfg := config.Default()
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "   "}, &stubTranslator{}, nil)

	result, err := orch.Process(context.Background(), testSegment())
	if !errors.Is(err, ErrNoSpeechDetected) {
		t.Fatalf("Process() error = %v, want ErrNoSpeechDetected", err)
	}
	if result.TranslatedText != "" {
		t.Fatalf("TranslatedText = %q, want empty on failed run", result.TranslatedText)
	}
	last := result.Metadata.Stages[len(result.Metadata.Stages)-1]
	if last.Stage != StageError {
		t.Fatalf("final stage = %q, want %q", last.Stage, StageError)
	}
}

func TestProcessTranscriptionFailure(t *testing.T) {
	cfg := config.Default()
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{err: errors.New("device busy")}, &stubTranslator{}, nil)

	if _, err := orch.Process(context.Background(), testSegment()); !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("Process() error = %v, want ErrTranscriptionFailed", err)
	}
}

func TestProcessTranslationFailure(t *testing.T) {
	cfg := config.Default()
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "hola"}, &stubTranslator{err: errors.New("model crashed")}, nil)

	if _, err := orch.Process(context.Background(), testSegment()); !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("Process() error = %v, want ErrTranslationFailed", err)
	}
}

func TestProcessDeterministicPath(t *testing.T) {
	cfg := config.Default()
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "este eh hola como estas"}, &stubTranslator{}, nil)

	result, err := orch.Process(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.OriginalText != "Hola como estas." {
		t.Fatalf("OriginalText = %q, want filler-free capitalized sentence", result.OriginalText)
	}
	if result.TranslatedText != "Translated Hola como estas." {
		t.Fatalf("TranslatedText = %q", result.TranslatedText)
	}
	if result.Metadata.AIEnhanced {
		t.Fatal("AIEnhanced must be false when no enhancement model is installed")
	}
	if result.Metadata.Confidence != 0.9 {
		t.Fatalf("Confidence = %v, want 0.9", result.Metadata.Confidence)
	}
	if len(result.Metadata.Fallbacks) != 0 {
		t.Fatalf("Fallbacks = %v, want none on the plain deterministic path", result.Metadata.Fallbacks)
	}
}

func TestProcessTermCorrection(t *testing.T) {
	cfg := config.Default()
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "archivo packash.yasón"}, &stubTranslator{}, nil)

	result, err := orch.Process(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.OriginalText != "Archivo package.json." {
		t.Fatalf("OriginalText = %q, want corrected technical term", result.OriginalText)
	}
}

func TestProcessAICleanAccepted(t *testing.T) {
	cfg := config.Default()
	cfg.Enhancement.Enabled = true
	enhancer := &stubEnhancer{cleanOut: "hola como estas hoy"}
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "hola como estas hoy amigo"}, &stubTranslator{}, enhancer)

	result, err := orch.Process(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.OriginalText != "hola como estas hoy" {
		t.Fatalf("OriginalText = %q, want accepted AI candidate verbatim", result.OriginalText)
	}
	if !result.Metadata.AIEnhanced {
		t.Fatal("AIEnhanced must be true after an accepted candidate")
	}
}

func TestProcessAICleanRejectedFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Enhancement.Enabled = true
	enhancer := &stubEnhancer{cleanOut: "assistant: hola como estas"}
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "hola como estas"}, &stubTranslator{}, enhancer)

	result, err := orch.Process(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.OriginalText != "Hola como estas." {
		t.Fatalf("OriginalText = %q, want deterministic fallback", result.OriginalText)
	}
	if result.Metadata.AIEnhanced {
		t.Fatal("AIEnhanced must be false when the candidate was rejected")
	}
	if len(result.Metadata.Fallbacks) != 1 || result.Metadata.Fallbacks[0] != string(StageCleaning) {
		t.Fatalf("Fallbacks = %v, want [cleaning]", result.Metadata.Fallbacks)
	}
}

func TestProcessAICleanErrorFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Enhancement.Enabled = true
	enhancer := &stubEnhancer{cleanErr: errors.New("model server down")}
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "hola como estas"}, &stubTranslator{}, enhancer)

	result, err := orch.Process(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Process() error = %v, optional stage failures must not abort the run", err)
	}
	if result.OriginalText != "Hola como estas." {
		t.Fatalf("OriginalText = %q, want deterministic fallback", result.OriginalText)
	}
}

func TestProcessAIEnhanceRejectedFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Enhancement.Enabled = true
	cfg.Enhancement.EnhanceTranslation = true
	enhancer := &stubEnhancer{
		cleanOut:   "hola como estas",
		enhanceOut: "que por pero como cuando donde says something else entirely",
	}
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "hola como estas"}, &stubTranslator{}, enhancer)

	result, err := orch.Process(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !strings.HasPrefix(result.TranslatedText, "Translated hola") {
		t.Fatalf("TranslatedText = %q, want deterministic enhancement of the raw translation", result.TranslatedText)
	}
	found := false
	for _, f := range result.Metadata.Fallbacks {
		if f == string(StageEnhancing) {
			found = true
		}
	}
	if !found {
		t.Fatalf("Fallbacks = %v, want enhancing fallback recorded", result.Metadata.Fallbacks)
	}
}

func TestWorkerRunsSequentially(t *testing.T) {
	cfg := config.Default()
	transcriber := &stubTranscriber{text: "hola como estas", delay: 20 * time.Millisecond}
	orch := newTestOrchestrator(t, cfg, transcriber, &stubTranslator{}, nil)

	worker := NewWorker(context.Background(), orch, 4, testLogger())
	defer worker.Close()

	first, err := worker.Submit(testSegment())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := worker.Submit(testSegment())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	out1 := <-first
	out2 := <-second
	if out1.Err != nil || out2.Err != nil {
		t.Fatalf("outcomes = %v, %v", out1.Err, out2.Err)
	}
	if transcriber.overlap.Load() {
		t.Fatal("second run entered transcription before the first finished")
	}
}

func TestWorkerSubmitAfterClose(t *testing.T) {
	cfg := config.Default()
	orch := newTestOrchestrator(t, cfg, &stubTranscriber{text: "hola"}, &stubTranslator{}, nil)

	worker := NewWorker(context.Background(), orch, 1, testLogger())
	worker.Close()

	if _, err := worker.Submit(testSegment()); !errors.Is(err, ErrWorkerClosed) {
		t.Fatalf("Submit() error = %v, want ErrWorkerClosed", err)
	}
}
