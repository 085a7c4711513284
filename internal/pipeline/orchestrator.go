package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hablalabs/habla-core/internal/audio"
	"github.com/hablalabs/habla-core/internal/config"
	"github.com/hablalabs/habla-core/internal/model"
	"github.com/hablalabs/habla-core/internal/textproc"
)

var (
	// ErrNoSpeechDetected indicates transcription produced empty text.
	ErrNoSpeechDetected = errors.New("no speech detected")
	// ErrTranscriptionFailed indicates the speech-to-text call itself failed.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrTranslationFailed indicates the translation call failed. There is
	// no fallback translator, so this aborts the run.
	ErrTranslationFailed = errors.New("translation failed")
)

// Stage names a step of the run state machine.
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageCorrecting   Stage = "correcting"
	StageCleaning     Stage = "cleaning"
	StageTranslating  Stage = "translating"
	StageEnhancing    Stage = "enhancing"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// StageRecord is one completed stage and its text snapshot. The history is
// append-only.
type StageRecord struct {
	Stage  Stage
	Output string
}

// Metadata describes how a run's final text was produced.
type Metadata struct {
	Confidence float64
	Language   string
	AIEnhanced bool
	Stages     []StageRecord
	Fallbacks  []string
}

// Result is delivered to the consumer after a run reaches Done.
type Result struct {
	RunID          string
	OriginalText   string
	TranslatedText string
	Metadata       Metadata
	Duration       time.Duration
}

// Orchestrator drives one audio segment through the full stage chain while
// holding exclusive access to the model set for the whole run.
type Orchestrator struct {
	audioCfg   config.AudioConfig
	language   string
	enhanceCfg config.EnhancementConfig
	resource   *model.Resource
	corrector  *textproc.TermCorrector
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewOrchestrator(cfg config.Config, resource *model.Resource, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		audioCfg:   cfg.Audio,
		language:   cfg.Transcriber.Language,
		enhanceCfg: cfg.Enhancement,
		resource:   resource,
		corrector:  textproc.NewTermCorrector(),
		logger:     logger.With(slog.String("component", "pipeline")),
		tracer:     otel.Tracer("habla-core/pipeline"),
	}
}

// Process runs the segment through transcribe, correct, clean, translate and
// enhance. Optional-stage failures degrade to deterministic fallbacks and
// are only recorded in metadata; transcription and translation failures
// abort the run.
func (o *Orchestrator) Process(ctx context.Context, seg audio.Segment) (Result, error) {
	start := time.Now()
	result := Result{RunID: uuid.NewString()}
	logger := o.logger.With(slog.String("run_id", result.RunID))

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", result.RunID)))
	defer span.End()

	if o.audioCfg.Normalize {
		seg = seg.Normalize()
	}

	err := o.resource.WithExclusiveAccess(ctx, func(h model.Handles) error {
		transcription, err := h.Transcriber.Transcribe(ctx, seg, o.language)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
		}
		raw := strings.TrimSpace(transcription.Text)
		if raw == "" {
			return ErrNoSpeechDetected
		}
		result.Metadata.Confidence = transcription.Confidence
		result.Metadata.Language = transcription.Language
		o.record(&result, StageTranscribing, raw)

		corrected := o.corrector.Correct(raw)
		o.record(&result, StageCorrecting, corrected)

		cleaned := o.cleanStage(ctx, logger, &result, h, corrected)
		o.record(&result, StageCleaning, cleaned)

		translated, err := h.Translator.Translate(ctx, cleaned)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTranslationFailed, err)
		}
		o.record(&result, StageTranslating, translated)

		final := o.enhanceStage(ctx, logger, &result, h, cleaned, translated)
		o.record(&result, StageEnhancing, final)

		result.OriginalText = cleaned
		result.TranslatedText = final
		return nil
	})

	result.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		o.record(&result, StageError, "")
		logger.Warn("pipeline run failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", result.Duration))
		return result, err
	}

	o.record(&result, StageDone, result.TranslatedText)
	logger.Info("pipeline run complete",
		slog.Float64("confidence", result.Metadata.Confidence),
		slog.Bool("ai_enhanced", result.Metadata.AIEnhanced),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// cleanStage produces cleaned source text. An installed enhancement model is
// tried first; its candidate must pass validation against the corrected text
// or the deterministic cleaner takes over.
func (o *Orchestrator) cleanStage(ctx context.Context, logger *slog.Logger, result *Result, h model.Handles, corrected string) string {
	if h.Enhancer == nil {
		return textproc.Clean(corrected)
	}

	candidate, err := h.Enhancer.CleanText(ctx, corrected)
	if err != nil {
		logger.Warn("ai cleaning failed, using deterministic cleaner", slog.String("error", err.Error()))
		o.fallback(result, StageCleaning)
		return textproc.Clean(corrected)
	}
	if verdict := textproc.Validate(candidate, corrected, textproc.StageClean); !verdict.Accept {
		logger.Info("ai cleaning candidate rejected",
			slog.String("reason", string(verdict.Reason)))
		o.fallback(result, StageCleaning)
		return textproc.Clean(corrected)
	}
	result.Metadata.AIEnhanced = true
	return candidate
}

// enhanceStage refines the raw translation. The AI path runs only when both
// enhancement flags are set and a model is installed; everything else gets
// the deterministic punctuation and capitalization pass.
func (o *Orchestrator) enhanceStage(ctx context.Context, logger *slog.Logger, result *Result, h model.Handles, source, translated string) string {
	if h.Enhancer == nil || !o.enhanceCfg.EnhanceTranslation {
		return textproc.Enhance(translated)
	}

	candidate, err := h.Enhancer.EnhanceTranslation(ctx, source, translated)
	if err != nil {
		logger.Warn("ai enhancement failed, using deterministic enhancer", slog.String("error", err.Error()))
		o.fallback(result, StageEnhancing)
		return textproc.Enhance(translated)
	}
	if verdict := textproc.Validate(candidate, translated, textproc.StageEnhance); !verdict.Accept {
		logger.Info("ai enhancement candidate rejected",
			slog.String("reason", string(verdict.Reason)))
		o.fallback(result, StageEnhancing)
		return textproc.Enhance(translated)
	}
	result.Metadata.AIEnhanced = true
	return candidate
}

func (o *Orchestrator) record(result *Result, stage Stage, output string) {
	result.Metadata.Stages = append(result.Metadata.Stages, StageRecord{Stage: stage, Output: output})
}

func (o *Orchestrator) fallback(result *Result, stage Stage) {
	result.Metadata.Fallbacks = append(result.Metadata.Fallbacks, string(stage))
}
