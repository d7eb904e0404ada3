// Package ingest walks the corpus directory, extracts document text, chunks
// it, and feeds passages into the index. It also hosts the optional fsnotify
// watcher that re-ingests documents as they change on disk.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kindred-finance/kindred/internal/chunker"
	"github.com/kindred-finance/kindred/internal/extract"
	"github.com/kindred-finance/kindred/internal/index"
	"github.com/kindred-finance/kindred/internal/models"
)

// Ingester turns corpus documents into indexed passages.
type Ingester struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	index     *index.Index
	logger    *zap.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for ingestion progress.
func WithLogger(l *zap.Logger) IngesterOption {
	return func(ig *Ingester) { ig.logger = l }
}

// NewIngester wires an extractor, chunker, and index into one pipeline.
func NewIngester(extractor *extract.Extractor, ck *chunker.Chunker, ix *index.Index, opts ...IngesterOption) *Ingester {
	ig := &Ingester{
		extractor: extractor,
		chunker:   ck,
		index:     ix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ig)
	}
	return ig
}

// IngestFile extracts, chunks, and indexes a single document. The passage
// source document is the file's base name, so re-ingesting the same file
// overwrites its passages in place.
func (ig *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	text, err := ig.extractor.Extract(path)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", path, err)
	}

	chunks := ig.chunker.Chunk(text)
	if len(chunks) == 0 {
		ig.logger.Debug("document produced no chunks", zap.String("path", path))
		return 0, nil
	}

	source := filepath.Base(path)
	passages := make([]models.Passage, len(chunks))
	for i, chunk := range chunks {
		passages[i] = models.Passage{
			ID:             models.PassageID(source, i),
			Text:           chunk,
			SourceDocument: source,
			ChunkIndex:     i,
		}
	}
	if err := ig.index.Add(ctx, passages); err != nil {
		return 0, fmt.Errorf("index %s: %w", path, err)
	}

	ig.logger.Info("document ingested",
		zap.String("source", source),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// IngestDirectory walks dir recursively and ingests every supported file.
// A single bad document is logged and skipped, not fatal.
func (ig *Ingester) IngestDirectory(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("corpus path %s is not a directory", dir)
	}

	total := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !ig.extractor.Supported(path) {
			return nil
		}
		n, err := ig.IngestFile(ctx, path)
		if err != nil {
			ig.logger.Warn("skipping document", zap.String("path", path), zap.Error(err))
			return nil
		}
		total += n
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, nil
}

// Reset drops every indexed passage.
func (ig *Ingester) Reset() {
	ig.index.Reset()
}
