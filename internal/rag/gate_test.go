package rag

import (
	"testing"

	"github.com/kindred-finance/kindred/internal/models"
)

func retrieved(distances ...float64) []models.RetrievedPassage {
	out := make([]models.RetrievedPassage, len(distances))
	for i, d := range distances {
		out[i] = models.RetrievedPassage{
			Passage:  models.Passage{ID: models.PassageID("guide.md", i), Text: "passage", SourceDocument: "guide.md", ChunkIndex: i},
			Distance: d,
		}
	}
	return out
}

func TestGateIsContextual(t *testing.T) {
	g := NewGate()

	tests := []struct {
		name      string
		distances []float64
		want      bool
	}{
		{"close match", []float64{0.3, 0.9, 1.2}, true},
		{"just under threshold", []float64{0.8499}, true},
		{"exactly at threshold", []float64{0.85}, false},
		{"all far", []float64{0.9, 1.1}, false},
		{"no passages", nil, false},
		{"best match not first", []float64{1.2, 0.4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.IsContextual(retrieved(tt.distances...)); got != tt.want {
				t.Errorf("IsContextual(%v) = %v, want %v", tt.distances, got, tt.want)
			}
		})
	}
}

func TestGateNeedsWebSearch(t *testing.T) {
	g := NewGate()

	tests := []struct {
		name      string
		distances []float64
		want      bool
	}{
		{"empty retrieval", nil, true},
		{"all weak", []float64{0.8, 0.9, 1.3}, true},
		{"one strong match", []float64{0.9, 0.5, 1.1}, false},
		{"exactly at threshold counts as strong", []float64{0.75, 0.9}, false},
		{"just above threshold", []float64{0.7501}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.NeedsWebSearch(retrieved(tt.distances...)); got != tt.want {
				t.Errorf("NeedsWebSearch(%v) = %v, want %v", tt.distances, got, tt.want)
			}
		})
	}
}

func TestGateMonotonic(t *testing.T) {
	// Adding a closer passage never flips a contextual query back to
	// non-contextual.
	g := NewGate()
	base := retrieved(0.6, 0.9)
	if !g.IsContextual(base) {
		t.Fatal("base set should be contextual")
	}
	if !g.IsContextual(append(base, retrieved(0.2)...)) {
		t.Error("adding a closer passage must keep the query contextual")
	}
}
