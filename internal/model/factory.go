package model

import (
	"fmt"

	"github.com/hablalabs/habla-core/internal/config"
)

// BuildTranscriber constructs the configured speech-to-text backend.
func BuildTranscriber(cfg config.TranscriberConfig) (Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return &MockTranscriber{}, nil
	case "exec":
		return NewExecTranscriber(cfg)
	default:
		return nil, fmt.Errorf("unknown transcriber mode %q", cfg.Mode)
	}
}

// BuildTranslator constructs the configured translation backend.
func BuildTranslator(cfg config.TranslatorConfig) (Translator, error) {
	switch cfg.Mode {
	case "mock":
		return &MockTranslator{}, nil
	case "exec":
		return NewExecTranslator(cfg)
	default:
		return nil, fmt.Errorf("unknown translator mode %q", cfg.Mode)
	}
}

// BuildEnhancer constructs the configured enhancement backend, or nil when
// enhancement is disabled. The pipeline treats a nil enhancer as "use
// deterministic fallbacks".
func BuildEnhancer(cfg config.EnhancementConfig) (Enhancer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "mock":
		return &MockEnhancer{}, nil
	case "ollama":
		return NewOllamaEnhancer(cfg), nil
	case "exec":
		return NewExecEnhancer(cfg)
	default:
		return nil, fmt.Errorf("unknown enhancement mode %q", cfg.Mode)
	}
}
