// Package main is the Kindred CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kindred-finance/kindred/internal/analyzer"
	"github.com/kindred-finance/kindred/internal/auth"
	"github.com/kindred-finance/kindred/internal/chunker"
	"github.com/kindred-finance/kindred/internal/config"
	"github.com/kindred-finance/kindred/internal/embedding"
	"github.com/kindred-finance/kindred/internal/extract"
	"github.com/kindred-finance/kindred/internal/generate"
	"github.com/kindred-finance/kindred/internal/index"
	"github.com/kindred-finance/kindred/internal/ingest"
	"github.com/kindred-finance/kindred/internal/rag"
	"github.com/kindred-finance/kindred/internal/server"
	"github.com/kindred-finance/kindred/internal/storage"
	"github.com/kindred-finance/kindred/internal/websearch"
	"github.com/kindred-finance/kindred/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kindred/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kindred server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Secrets (GEMINI_API_KEY, JWT_SECRET) come from the environment; a .env
	// file in the working directory is a convenience for development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
	case "reset":
		runReset()
	case "cleanup":
		runCleanup()
	case "version", "--version", "-v":
		fmt.Printf("kindred version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval scores, pipeline stages, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Seed the index from the corpus directory when configured. Missing
	// directory is not fatal; the server can run on a previously saved index.
	if cfg.Corpus.Path != "" {
		if n, err := components.Ingester.IngestDirectory(context.Background(), cfg.Corpus.Path); err != nil {
			logger.Warn("corpus ingest skipped", zap.String("path", cfg.Corpus.Path), zap.Error(err))
		} else {
			logger.Info("corpus ingested", zap.String("path", cfg.Corpus.Path), zap.Int("chunks", n))
		}
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var corpusWatcher *ingest.Watcher
	if cfg.Corpus.Watch && cfg.Corpus.Path != "" {
		corpusWatcher = ingest.NewWatcher(cfg.Corpus.Path, components.Ingester, logger)
		if err := corpusWatcher.Start(watchCtx); err != nil {
			logger.Warn("corpus watcher failed to start", zap.Error(err))
			corpusWatcher = nil
		}
	}

	var verifier auth.Verifier
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		jwtVerifier, err := auth.NewJWTVerifier(secret)
		if err != nil {
			logger.Fatal("Failed to create token verifier", zap.Error(err))
		}
		verifier = jwtVerifier
	} else {
		logger.Warn("JWT_SECRET not set; token auth disabled")
	}

	var searcher websearch.Searcher
	if cfg.WebSearch.Enabled {
		searcher = websearch.NewGoogleSearcher(logger)
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Index,
		components.Storage,
		verifier,
		searcher,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if corpusWatcher != nil {
		corpusWatcher.Stop()
	}
	watchCancel()
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.Index.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	path := cfg.Corpus.Path
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Println("Usage: kindred ingest [flags] <file-or-directory>")
		os.Exit(1)
	}

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var chunks int
	if info.IsDir() {
		chunks, err = components.Ingester.IngestDirectory(ctx, path)
	} else {
		chunks, err = components.Ingester.IngestFile(ctx, path)
	}
	if err != nil {
		fmt.Printf("Ingest failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.Storage.VectorIndexPath != "" {
		if err := components.Index.Save(cfg.Storage.VectorIndexPath); err != nil {
			fmt.Printf("Failed to save index: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Ingested %d chunk(s) from %s\n", chunks, path)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	conversations, err := components.Storage.CountConversations(context.Background())
	if err != nil {
		fmt.Printf("Count conversations failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("passages:        %d   # chunks in the vector index\n", components.Index.Count())
	fmt.Printf("conversations:   %d   # stored conversations\n", conversations)
	fmt.Println()
	fmt.Println("# configuration")
	fmt.Printf("chunk_size:      %d\n", cfg.Chunking.Size)
	fmt.Printf("chunk_overlap:   %d\n", cfg.Chunking.Overlap)
	fmt.Printf("embedding:       %s (%s, %d dims)\n", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	fmt.Printf("generation:      %s (%s)\n", cfg.Generation.Provider, cfg.Generation.Model)
	fmt.Printf("database_path:   %s\n", cfg.Storage.DatabasePath)
	fmt.Printf("index_path:      %s\n", cfg.Storage.VectorIndexPath)
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	confirm := fs.Bool("yes", false, "confirm deletion of the vector index")
	_ = fs.Parse(os.Args[2:])

	if !*confirm {
		fmt.Println("This removes the saved vector index. Re-run with --yes to confirm.")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.VectorIndexPath == "" {
		fmt.Println("No vector index path configured.")
		return
	}
	if err := os.Remove(cfg.Storage.VectorIndexPath); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Failed to remove index: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Vector index removed: %s\n", cfg.Storage.VectorIndexPath)
}

func runCleanup() {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "delete conversations idle longer than this")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	deleted, err := store.CleanupOldConversations(context.Background(), *olderThan)
	if err != nil {
		fmt.Printf("Cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d conversation(s) older than %s\n", deleted, *olderThan)
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	Index        *index.Index
	Backend      generate.Backend
	Orchestrator *rag.Orchestrator
	Ingester     *ingest.Ingester
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Backend != nil {
		_ = c.Backend.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachingEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	ix := index.New(embedder)
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := ix.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		} else {
			logger.Info("vector index loaded",
				zap.String("path", cfg.Storage.VectorIndexPath),
				zap.Int("passages", ix.Count()))
		}
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	safety := analyzer.NewWithKeywords(
		cfg.Safety.DangerKeywords,
		cfg.Safety.AbuseKeywords,
		cfg.Safety.SensitiveKeywords,
	)
	orchestrator := rag.NewOrchestrator(ix, backend,
		rag.WithGate(rag.Gate{
			ContextThreshold:   cfg.Retrieval.ContextThreshold,
			WebSearchThreshold: cfg.Retrieval.WebSearchThreshold,
		}),
		rag.WithAnalyzer(safety),
		rag.WithHistoryStore(store),
		rag.WithGenerationTimeout(cfg.Generation.Timeout()),
		rag.WithLogger(logger),
	)

	ck, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}
	ingester := ingest.NewIngester(extract.NewExtractor(), ck, ix, ingest.WithLogger(logger))

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		Index:        ix,
		Backend:      backend,
		Orchestrator: orchestrator,
		Ingester:     ingester,
	}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedding provider gemini requires GEMINI_API_KEY")
		}
		return embedding.NewGeminiEmbedder(ctx, apiKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	case "ollama", "":
		return embedding.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newBackend(ctx context.Context, cfg *config.Config) (generate.Backend, error) {
	switch cfg.Generation.Provider {
	case "gemini", "":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("generation provider gemini requires GEMINI_API_KEY")
		}
		return generate.NewGeminiBackend(ctx, apiKey, cfg.Generation.Model)
	case "ollama":
		return generate.NewOllamaBackend(cfg.Generation.OllamaURL, cfg.Generation.Model), nil
	case "mock":
		return generate.NewMockBackend(""), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}

func printUsage() {
	fmt.Println(`kindred - Retrieval-grounded chat service for women's financial wellness

Usage:
  kindred server [flags]            Start the HTTP server
  kindred ingest [flags] [path]     Ingest a document or directory into the index
  kindred status [flags]            Show index/storage status
  kindred reset [flags] --yes       Remove the saved vector index
  kindred cleanup [flags]           Delete old conversations
  kindred version                   Show version
  kindred help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kindred/config.yaml)
  --debug            Enable debug logging (retrieval scores, pipeline stages, etc.)

Ingest Flags:
  --config string    Config file path
  Path defaults to the configured corpus directory.

Cleanup Flags:
  --config string       Config file path
  --older-than duration Delete conversations idle longer than this (default: 720h)

Environment:
  GEMINI_API_KEY     API key for the Gemini embedding/generation providers
  JWT_SECRET         HMAC secret for bearer-token auth (unset = auth disabled)

Examples:
  kindred server
  kindred ingest ./corpus
  kindred ingest guide.pdf
  kindred status
  kindred cleanup --older-than 168h
  kindred reset --yes`)
}
