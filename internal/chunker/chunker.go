// Package chunker splits raw document text into overlapping, boundary-aware passages.
package chunker

import (
	"fmt"
	"strings"
)

// boundaryWindow is how far back from a window's tail a sentence break is
// still considered close enough to cut at.
const boundaryWindow = 100

// Chunker splits text into overlapping character windows, preferring to break
// near sentence or line boundaries.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker. overlap must be smaller than chunkSize; configurations
// where overlap >= chunkSize are rejected rather than clamped, since they would
// prevent the window from advancing.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk splits text into ordered chunks. Windows are chunkSize runes long and
// each next window re-includes the last overlap runes for continuity. A window
// that does not reach the end of the text is truncated at the nearest period
// or newline found within the last boundaryWindow runes, so breaks fall near
// sentence boundaries. Whitespace-only chunks are dropped. Text shorter than
// chunkSize yields exactly one chunk.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		window := runes[start:end]
		if cut := boundaryCut(window); cut > 0 {
			end = start + cut
			window = runes[start:end]
		}
		if chunk := strings.TrimSpace(string(window)); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - c.overlap
		if next <= start {
			// Boundary truncation can move end back far enough that the
			// overlap would rewind the window; force forward progress.
			next = start + (c.chunkSize - c.overlap)
		}
		start = next
	}
	return chunks
}

// boundaryCut returns the cut position (one past the break rune) when the
// window contains a period or newline within its last boundaryWindow runes,
// or 0 when no suitable break exists.
func boundaryCut(window []rune) int {
	breakPoint := -1
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			breakPoint = i
			break
		}
	}
	if breakPoint < 0 || breakPoint <= len(window)-boundaryWindow {
		return 0
	}
	return breakPoint + 1
}
