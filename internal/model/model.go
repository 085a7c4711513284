package model

import (
	"context"

	"github.com/hablalabs/habla-core/internal/audio"
)

// Transcription is raw speech-to-text output.
type Transcription struct {
	Text       string
	Confidence float64
	Language   string
}

// Transcriber converts one audio segment to text in the forced language.
type Transcriber interface {
	Transcribe(ctx context.Context, seg audio.Segment, language string) (Transcription, error)
}

// Translator converts source-language text to the target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Enhancer is the optional AI-assisted capability surface. Either a
// model-backed adapter or nothing at all; deterministic fallbacks live in
// textproc and are not Enhancers.
type Enhancer interface {
	CleanText(ctx context.Context, text string) (string, error)
	EnhanceTranslation(ctx context.Context, source, translation string) (string, error)
}

// Progress reports granular model-load progress to the caller.
type Progress func(message string, percent int)
