package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hablalabs/habla-core/internal/config"
)

const (
	cleanSystemPrompt = "Corrige errores gramaticales y elimina muletillas. " +
		"Responde SOLO con el texto corregido, sin explicaciones."
	enhanceSystemPrompt = "Improve the English translation to be more natural. " +
		"Keep the meaning exact. Output ONLY the improved English, no explanations."
)

// ollamaEnhancer drives a local instruction-tuned model over the Ollama
// streaming API for the two optional pipeline stages.
type ollamaEnhancer struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewOllamaEnhancer(cfg config.EnhancementConfig) Enhancer {
	return &ollamaEnhancer{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      http.DefaultClient,
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Load verifies the endpoint is reachable before first use.
func (e *ollamaEnhancer) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama returned status %s", resp.Status)
	}
	return nil
}

func (e *ollamaEnhancer) CleanText(ctx context.Context, text string) (string, error) {
	return e.generate(ctx, cleanSystemPrompt, text)
}

func (e *ollamaEnhancer) EnhanceTranslation(ctx context.Context, source, translation string) (string, error) {
	prompt := fmt.Sprintf("Spanish: %s\nEnglish: %s\nImproved English:", source, translation)
	return e.generate(ctx, enhanceSystemPrompt, prompt)
}

func (e *ollamaEnhancer) generate(ctx context.Context, system, prompt string) (string, error) {
	payload := ollamaRequest{
		Model:  e.model,
		Prompt: prompt,
		System: system,
		Stream: true,
		Options: ollamaOptions{
			Temperature: e.temperature,
			NumPredict:  e.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", err
		}
		accumulated.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(accumulated.String()), nil
}
