// Package models defines core data structures for passages, conversations, and chat requests.
package models

import "fmt"

// Passage is a bounded contiguous span of a source document's text, the unit of retrieval.
// Created at ingestion time by the chunker; immutable once indexed.
type Passage struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	SourceDocument string `json:"source_document"`
	ChunkIndex     int    `json:"chunk_index"`
}

// PassageID forms the canonical passage id for a chunk of a source document.
// Re-ingesting the same document produces the same ids, so re-ingestion
// overwrites rather than duplicates.
func PassageID(sourceDocument string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", sourceDocument, chunkIndex)
}

// RetrievedPassage is a query-time search hit. Distance is a dissimilarity
// score: 0 means identical, larger means less similar (cosine distance, 0-2).
type RetrievedPassage struct {
	Passage  Passage `json:"passage"`
	Distance float64 `json:"distance"`
}
