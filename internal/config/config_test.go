package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "debug: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("debug not parsed")
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8000 {
		t.Errorf("server defaults = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking defaults = %d/%d", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.Retrieval.ContextThreshold != 0.85 || cfg.Retrieval.WebSearchThreshold != 0.75 {
		t.Errorf("retrieval defaults = %v/%v", cfg.Retrieval.ContextThreshold, cfg.Retrieval.WebSearchThreshold)
	}
	if cfg.Generation.Timeout() != 120*time.Second {
		t.Errorf("generation timeout = %v", cfg.Generation.Timeout())
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.Dimensions != 768 {
		t.Errorf("embedding defaults = %s/%d", cfg.Embedding.Provider, cfg.Embedding.Dimensions)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
chunking:
  size: 800
  overlap: 100
retrieval:
  context_threshold: 0.9
generation:
  provider: ollama
  model: llama3.2
  timeout_seconds: 30
safety:
  danger_keywords: ["red alert"]
web_search:
  enabled: true
  result_count: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Chunking.Size != 800 || cfg.Chunking.Overlap != 100 {
		t.Errorf("chunking = %d/%d", cfg.Chunking.Size, cfg.Chunking.Overlap)
	}
	if cfg.Retrieval.ContextThreshold != 0.9 {
		t.Errorf("context threshold = %v", cfg.Retrieval.ContextThreshold)
	}
	// Unset sibling still defaulted.
	if cfg.Retrieval.WebSearchThreshold != 0.75 {
		t.Errorf("web search threshold = %v", cfg.Retrieval.WebSearchThreshold)
	}
	if cfg.Generation.Provider != "ollama" || cfg.Generation.Timeout() != 30*time.Second {
		t.Errorf("generation = %s/%v", cfg.Generation.Provider, cfg.Generation.Timeout())
	}
	if len(cfg.Safety.DangerKeywords) != 1 || cfg.Safety.DangerKeywords[0] != "red alert" {
		t.Errorf("danger keywords = %v", cfg.Safety.DangerKeywords)
	}
	if !cfg.WebSearch.Enabled || cfg.WebSearch.ResultCount != 3 {
		t.Errorf("web search = %+v", cfg.WebSearch)
	}
}

func TestLoadExpandsPaths(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: ./data/test.db
  vector_index_path: /var/lib/kindred/index.bin
corpus:
  path: ./docs
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/test.db") {
		t.Errorf("database path = %s", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.VectorIndexPath != "/var/lib/kindred/index.bin" {
		t.Errorf("absolute path rewritten: %s", cfg.Storage.VectorIndexPath)
	}
	if cfg.Corpus.Path != filepath.Join(dir, "docs") {
		t.Errorf("corpus path = %s", cfg.Corpus.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeConfig(t, "server: [not a map]\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
