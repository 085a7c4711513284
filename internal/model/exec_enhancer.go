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

// execEnhancer shells out to an external command for the optional
// enhancement stages, passing a JSON request on stdin.
type execEnhancer struct {
	cmd []string
	mu  sync.Mutex
}

type execEnhanceRequest struct {
	Task   string `json:"task"` // clean or enhance
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type execEnhanceResponse struct {
	Output string `json:"output"`
}

func NewExecEnhancer(cfg config.EnhancementConfig) (Enhancer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse enhancer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("enhancer command is empty")
	}
	return &execEnhancer{cmd: args}, nil
}

func (e *execEnhancer) CleanText(ctx context.Context, text string) (string, error) {
	return e.run(ctx, execEnhanceRequest{Task: "clean", Text: text})
}

func (e *execEnhancer) EnhanceTranslation(ctx context.Context, source, translation string) (string, error) {
	return e.run(ctx, execEnhanceRequest{Task: "enhance", Text: translation, Source: source})
}

func (e *execEnhancer) run(ctx context.Context, req execEnhanceRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(input)
	output, err := command.Output()
	if err != nil {
		return "", fmt.Errorf("enhancer command failed: %w", err)
	}

	var resp execEnhanceResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode enhancer response: %w", err)
	}
	return resp.Output, nil
}
