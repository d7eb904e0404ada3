// Package index stores passage embeddings and answers nearest-neighbor queries.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kindred-finance/kindred/internal/embedding"
	"github.com/kindred-finance/kindred/internal/models"
	"github.com/kindred-finance/kindred/pkg/utils"
)

// indexed is a passage plus its unit-normalized embedding. One embedding per
// passage, computed at insert; re-embedding requires re-insertion.
type indexed struct {
	passage models.Passage
	vector  []float32
}

// Index is a brute-force cosine-distance index over passages. Safe for
// concurrent use: reads take a shared lock, writes upsert by passage id.
type Index struct {
	embedder embedding.Embedder
	byID     map[string]int
	entries  []indexed
	mu       sync.RWMutex
}

// New creates an empty index backed by the given embedder.
func New(embedder embedding.Embedder) *Index {
	return &Index{
		embedder: embedder,
		byID:     make(map[string]int),
	}
}

// Add embeds and stores passages. Ids come from the caller
// (models.PassageID); a passage whose id is already present is overwritten in
// place, so re-ingesting an identical document is idempotent.
// Embedding failures surface as embedding.ErrBackendUnavailable.
func (ix *Index) Add(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, p := range passages {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		utils.NormalizeL2(vec)
		entry := indexed{passage: p, vector: vec}
		if pos, ok := ix.byID[p.ID]; ok {
			ix.entries[pos] = entry
			continue
		}
		ix.byID[p.ID] = len(ix.entries)
		ix.entries = append(ix.entries, entry)
	}
	return nil
}

// Search embeds the query and returns up to k passages sorted ascending by
// cosine distance (best match first). An empty index yields an empty result,
// not an error.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	utils.NormalizeL2(queryVec)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.entries) == 0 {
		return nil, nil
	}

	results := make([]models.RetrievedPassage, 0, len(ix.entries))
	for _, entry := range ix.entries {
		results = append(results, models.RetrievedPassage{
			Passage:  entry.passage,
			Distance: cosineDistance(queryVec, entry.vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Count returns the number of indexed passages.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Reset removes every passage. Used for explicit corpus reset only.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byID = make(map[string]int)
	ix.entries = nil
}

// cosineDistance computes 1 - dot(a, b) for unit-normalized vectors.
// Range is [0, 2]: 0 means identical direction, larger means less similar.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return 1 - dot
}
