// Package generate abstracts the text generation backends. A Backend turns a
// fully composed prompt into either a complete response or a stream of
// fragments; prompt construction and retrieval live elsewhere.
package generate

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnavailable indicates the generation backend could not be
	// reached at all.
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	// ErrGeneration indicates the backend was reached but failed to produce
	// a response.
	ErrGeneration = errors.New("generation failed")
)

// Sampling holds the decoding parameters passed to a backend.
type Sampling struct {
	Temperature float64
	TopP        float64
	TopK        int
}

// DefaultSampling is used for every pipeline turn unless overridden.
var DefaultSampling = Sampling{Temperature: 0.7, TopP: 0.8, TopK: 40}

// Fragment is one piece of a streamed response. Err is non-nil only on the
// terminal fragment of a failed stream.
type Fragment struct {
	Text string
	Err  error
}

// Backend produces text from a prompt.
type Backend interface {
	// Generate returns the complete response in one call.
	Generate(ctx context.Context, prompt string, s Sampling) (string, error)
	// Stream returns a channel of fragments. The channel is closed when the
	// stream ends; a fragment with Err set terminates the stream.
	Stream(ctx context.Context, prompt string, s Sampling) (<-chan Fragment, error)
	// Close releases backend resources.
	Close() error
}
