package protocol

import "time"

// TranscriptEvent is the final pipeline output broadcast on the bus for
// downstream consumers (injection, display, history mirrors).
type TranscriptEvent struct {
	RunID          string    `json:"run_id"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	Confidence     float64   `json:"confidence,omitempty"`
	Language       string    `json:"language,omitempty"`
	AIEnhanced     bool      `json:"ai_enhanced"`
	Fallbacks      []string  `json:"fallbacks,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// CaptureStateEvent announces recording state transitions.
type CaptureStateEvent struct {
	Capturing bool      `json:"capturing"`
	Timestamp time.Time `json:"timestamp"`
}

// RunErrorEvent reports a failed pipeline run with a human-readable status.
type RunErrorEvent struct {
	RunID     string    `json:"run_id,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptFinal = "habla.transcript.final"
	SubjectCaptureState    = "habla.capture.state"
	SubjectRunError        = "habla.run.error"
)
