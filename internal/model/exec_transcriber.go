package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/hablalabs/habla-core/internal/audio"
	"github.com/hablalabs/habla-core/internal/config"
	shellwords "github.com/mattn/go-shellwords"
)

// execTranscriber shells out to an external speech-to-text command (for
// example a whisper.cpp CLI). The segment is written to a temporary WAV
// file which is removed after the call; the command reports JSON on stdout.
type execTranscriber struct {
	cmd []string
	cfg config.TranscriberConfig
	mu  sync.Mutex
}

type execTranscribeResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

func NewExecTranscriber(cfg config.TranscriberConfig) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcriber command is empty")
	}
	return &execTranscriber{cmd: args, cfg: cfg}, nil
}

func (t *execTranscriber) Transcribe(ctx context.Context, seg audio.Segment, language string) (Transcription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "habla_stt_*.wav")
	if err != nil {
		return Transcription{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.WriteWAV(file, seg); err != nil {
		return Transcription{}, err
	}

	args := append([]string{}, t.cmd[1:]...)
	args = append(args, "--audio", file.Name())
	if t.cfg.ModelPath != "" {
		args = append(args, "--model", t.cfg.ModelPath)
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	command := exec.CommandContext(ctx, t.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Transcription{}, fmt.Errorf("transcriber command failed: %w: %s", err, stderr.String())
	}

	var resp execTranscribeResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Transcription{}, fmt.Errorf("decode transcriber response: %w", err)
	}
	if resp.Confidence == 0 {
		resp.Confidence = 1.0
	}
	if resp.Language == "" {
		resp.Language = language
	}
	return Transcription{Text: resp.Text, Confidence: resp.Confidence, Language: resp.Language}, nil
}
