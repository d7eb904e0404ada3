package generate

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiBackend generates text through the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a backend authenticated with the given API key.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %v", ErrBackendUnavailable, err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func geminiConfig(s Sampling) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.Temperature)),
		TopP:        genai.Ptr(float32(s.TopP)),
		TopK:        genai.Ptr(float32(s.TopK)),
	}
}

// Generate returns the complete response in one call.
func (b *GeminiBackend) Generate(ctx context.Context, prompt string, s Sampling) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, geminiConfig(s))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return resp.Text(), nil
}

// Stream returns a channel of response fragments.
func (b *GeminiBackend) Stream(ctx context.Context, prompt string, s Sampling) (<-chan Fragment, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		for resp, err := range b.client.Models.GenerateContentStream(ctx, b.model, contents, geminiConfig(s)) {
			if err != nil {
				out <- Fragment{Err: fmt.Errorf("%w: %v", ErrGeneration, err)}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case out <- Fragment{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the genai client holds no persistent connection.
func (b *GeminiBackend) Close() error { return nil }
