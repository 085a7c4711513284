package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/hablalabs/habla-core/internal/config"
	shellwords "github.com/mattn/go-shellwords"
)

// execTranslator shells out to an external translation command, passing a
// JSON request on stdin and reading a JSON response from stdout.
type execTranslator struct {
	cmd []string
	cfg config.TranslatorConfig
	mu  sync.Mutex
}

type execTranslateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	MaxLength      int    `json:"max_length"`
}

type execTranslateResponse struct {
	Translation string `json:"translation"`
}

func NewExecTranslator(cfg config.TranslatorConfig) (Translator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse translator command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("translator command is empty")
	}
	return &execTranslator{cmd: args, cfg: cfg}, nil
}

func (t *execTranslator) Translate(ctx context.Context, text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	input, err := json.Marshal(execTranslateRequest{
		Text:           text,
		SourceLanguage: t.cfg.SourceLanguage,
		TargetLanguage: t.cfg.TargetLanguage,
		MaxLength:      t.cfg.MaxLength,
	})
	if err != nil {
		return "", err
	}

	command := exec.CommandContext(ctx, t.cmd[0], t.cmd[1:]...)
	command.Stdin = bytes.NewReader(input)
	output, err := command.Output()
	if err != nil {
		return "", fmt.Errorf("translator command failed: %w", err)
	}

	var resp execTranslateResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode translator response: %w", err)
	}
	return resp.Translation, nil
}
