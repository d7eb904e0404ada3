package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// OllamaBackend generates text through a local Ollama server using the
// /api/generate endpoint. Streaming reads the NDJSON response line by line.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaBackend returns a backend for the given Ollama server and model.
// Empty arguments fall back to localhost and a small default model.
func NewOllamaBackend(baseURL, model string) *OllamaBackend {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaBackend{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (b *OllamaBackend) post(ctx context.Context, prompt string, s Sampling, stream bool) (*http.Response, error) {
	reqBody := ollamaGenerateRequest{
		Model:  b.model,
		Prompt: prompt,
		Stream: stream,
		Options: map[string]any{
			"temperature": s.Temperature,
			"top_p":       s.TopP,
			"top_k":       s.TopK,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: ollama returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return resp, nil
}

// Generate returns the complete response in one call.
func (b *OllamaBackend) Generate(ctx context.Context, prompt string, s Sampling) (string, error) {
	resp, err := b.post(ctx, prompt, s, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGeneration, out.Error)
	}
	return out.Response, nil
}

// Stream returns a channel of response fragments decoded from the NDJSON body.
func (b *OllamaBackend) Stream(ctx context.Context, prompt string, s Sampling) (<-chan Fragment, error) {
	resp, err := b.post(ctx, prompt, s, true)
	if err != nil {
		return nil, err
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				out <- Fragment{Err: fmt.Errorf("%w: decode stream chunk: %v", ErrGeneration, err)}
				return
			}
			if chunk.Error != "" {
				out <- Fragment{Err: fmt.Errorf("%w: %s", ErrGeneration, chunk.Error)}
				return
			}
			if chunk.Response != "" {
				select {
				case out <- Fragment{Text: chunk.Response}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- Fragment{Err: fmt.Errorf("%w: read stream: %v", ErrGeneration, err)}
		}
	}()
	return out, nil
}

// Close is a no-op for the HTTP backend.
func (b *OllamaBackend) Close() error { return nil }
