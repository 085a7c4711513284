package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/hablalabs/habla-core/internal/audio"
)

// MockTranscriber returns a canned transcript regardless of input audio.
// Useful for wiring tests and for running the daemon without a real model.
type MockTranscriber struct {
	Text string
}

func (m *MockTranscriber) Load(ctx context.Context) error { return nil }

func (m *MockTranscriber) Transcribe(ctx context.Context, seg audio.Segment, language string) (Transcription, error) {
	text := m.Text
	if text == "" {
		text = fmt.Sprintf("transcripción simulada de %.1f segundos", seg.Duration().Seconds())
	}
	return Transcription{Text: text, Confidence: 1.0, Language: language}, nil
}

// MockTranslator echoes the input with a marker prefix so tests can tell
// the stage ran without depending on a real translation model.
type MockTranslator struct{}

func (m *MockTranslator) Load(ctx context.Context) error { return nil }

func (m *MockTranslator) Translate(ctx context.Context, text string) (string, error) {
	return "[en] " + text, nil
}

// MockEnhancer applies trivial transformations so validator behavior is
// exercised end to end.
type MockEnhancer struct {
	CleanErr   error
	EnhanceErr error
}

func (m *MockEnhancer) Load(ctx context.Context) error { return nil }

func (m *MockEnhancer) CleanText(ctx context.Context, text string) (string, error) {
	if m.CleanErr != nil {
		return "", m.CleanErr
	}
	return strings.TrimSpace(text), nil
}

func (m *MockEnhancer) EnhanceTranslation(ctx context.Context, source, translation string) (string, error) {
	if m.EnhanceErr != nil {
		return "", m.EnhanceErr
	}
	return strings.TrimSpace(translation), nil
}
