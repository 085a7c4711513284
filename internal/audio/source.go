package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/hablalabs/habla-core/internal/config"
	shellwords "github.com/mattn/go-shellwords"
)

// Source abstracts the OS audio input boundary. Read returns one chunk of
// mono float32 samples and is expected to pace itself at roughly the
// configured chunk duration.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// execSource streams raw signed 16-bit little-endian PCM from an external
// capture command's stdout (arecord, sox, ffmpeg and friends).
type execSource struct {
	cmdArgs      []string
	chunkSamples int
	mu           sync.Mutex
	cmd          *exec.Cmd
	stdout       io.ReadCloser
}

func NewExecSource(cfg config.AudioConfig) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.SourceCommand)
	if err != nil {
		return nil, fmt.Errorf("parse source command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("source command is empty")
	}
	chunkSamples := cfg.SampleRate * cfg.ChunkDurationMS / 1000
	if chunkSamples < 1 {
		chunkSamples = 1
	}
	return &execSource{cmdArgs: args, chunkSamples: chunkSamples}, nil
}

func (s *execSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("source already open")
	}
	cmd := exec.CommandContext(ctx, s.cmdArgs[0], s.cmdArgs[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("source stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start source command: %w", err)
	}
	s.cmd = cmd
	s.stdout = stdout
	return nil
}

func (s *execSource) Read(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	stdout := s.stdout
	s.mu.Unlock()
	if stdout == nil {
		return nil, fmt.Errorf("source not open")
	}

	raw := make([]byte, s.chunkSamples*2)
	n, err := io.ReadFull(stdout, raw)
	if n == 0 && err != nil {
		return nil, err
	}
	raw = raw[:n-n%2]

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return samples, nil
}

func (s *execSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	// the process was killed on purpose, its exit status is not an error
	_ = s.cmd.Wait()
	s.cmd = nil
	s.stdout = nil
	return nil
}
