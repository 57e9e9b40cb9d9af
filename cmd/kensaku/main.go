// Package main is the kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hikawa/kensaku/internal/config"
	"github.com/hikawa/kensaku/internal/docstore"
	"github.com/hikawa/kensaku/internal/embedding"
	"github.com/hikawa/kensaku/internal/ingest"
	"github.com/hikawa/kensaku/internal/models"
	"github.com/hikawa/kensaku/internal/pipeline"
	"github.com/hikawa/kensaku/internal/ranking"
	"github.com/hikawa/kensaku/internal/server"
	"github.com/hikawa/kensaku/internal/vector"
	"github.com/hikawa/kensaku/internal/watcher"
	"github.com/hikawa/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence (for development). Returns the
// config and the path that was actually loaded.
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "add":
		runAdd()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
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

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Build on startup so queries never hit a stale or missing index.
	if _, err := components.Builder.Build(context.Background()); err != nil {
		logger.Fatal("Initial index build failed", zap.Error(err))
	}

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = newWatchService(cfg, components, logger, debugMode)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Builder,
		components.Ingester,
		components.Store,
		components.Ref,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newWatchService wires file events into ingestion and debounced rebuilds.
// Each settled change re-ingests the file and rebuilds the index; the rebuild
// swap keeps in-flight queries on their snapshot.
func newWatchService(cfg *config.Config, components *Components, logger *zap.Logger, debug bool) *watcher.Watcher {
	opts := []watcher.Option{}
	if debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	rebuild := func() {
		if _, err := components.Builder.Build(context.Background()); err != nil {
			logger.Warn("watch rebuild failed", zap.Error(err))
		}
	}
	return watcher.New(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := components.Ingester.IngestFile(context.Background(), path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			rebuild()
		},
		func(path string) {
			if err := components.Ingester.RemoveFile(context.Background(), path); err != nil {
				logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
				return
			}
			rebuild()
		},
		opts...,
	)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	report, err := components.Builder.Build(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d of %d document(s) in %s\n", report.Indexed, report.Total, report.Duration.Round(time.Millisecond))
	for _, id := range report.Skipped {
		fmt.Printf("  skipped: %s\n", id)
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	rebuild := fs.Bool("rebuild", true, "rebuild the index after adding")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku add [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, logger, components := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Ingester.IngestDir(ctx, path, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added %d document(s) from %s\n", n, path)
	} else {
		doc, err := components.Ingester.IngestFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Document added: %s\n", doc.ID)
	}

	if *rebuild {
		if _, err := components.Builder.Build(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = search locally)")
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku search [flags] <query>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var resp *models.SearchResponse
	if *serverURL != "" {
		var err error
		resp, err = searchViaHTTP(*serverURL, &models.SearchRequest{Query: queryStr, TopK: *topK})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, components := mustInitialize(*configPath)
		defer logger.Sync()
		defer components.Close()

		if _, err := components.Builder.Build(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Index build failed: %v\n", err)
			os.Exit(1)
		}
		k := *topK
		if k == 0 {
			k = cfg.Search.DefaultTopK
		}
		var err error
		resp, err = components.Pipeline.Query(context.Background(), queryStr, k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(resp.Results) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, res := range resp.Results {
			fmt.Printf("%d. %s (score %.4f)\n", i+1, res.DocID, res.Score)
			fmt.Printf("   %s\n", res.Preview)
			fmt.Printf("   %s\n", res.Explanation.WhyMatched)
		}
		fmt.Printf("\n%d result(s) in %dms\n", len(resp.Results), resp.QueryTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpResp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(b))
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read local storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		httpResp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(httpResp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", httpResp.StatusCode, string(b))
			os.Exit(1)
		}
		_, _ = io.Copy(os.Stdout, httpResp.Body)
		return
	}

	cfg, logger, components := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	docCount, err := components.Store.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
		os.Exit(1)
	}
	indexSize, dims := 0, 0
	if idx := components.Ref.Load(); idx != nil {
		indexSize = idx.Size()
		dims = idx.Dimensions()
	}
	fmt.Printf("documents:      %d\n", docCount)
	fmt.Printf("index_size:     %d\n", indexSize)
	fmt.Printf("dimensions:     %d\n", dims)
	fmt.Printf("embedding_mode: %s\n", cfg.Embedding.Mode)
	fmt.Printf("database_path:  %s\n", cfg.Storage.DatabasePath)
	fmt.Printf("index_dir:      %s\n", cfg.Storage.IndexDir)
	if diskBytes, err := docstore.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.IndexDir, cfg.Storage.CachePath); err == nil {
		fmt.Printf("disk_usage:     %d bytes\n", diskBytes)
	}
}

func mustInitialize(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

// Components bundles the wired application objects.
type Components struct {
	Store    docstore.Store
	Embedder embedding.Embedder
	Cache    *embedding.Cache
	Ref      *vector.Ref
	Builder  *pipeline.Builder
	Pipeline *pipeline.Pipeline
	Ingester *ingest.Ingester
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := docstore.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	switch cfg.Embedding.Mode {
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
		)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to mock", zap.Error(err))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = onnxEmbedder
		}
	default:
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	cache := embedding.NewCache(embedding.WithCacheLogger(logger))
	if err := cache.Load(cfg.Storage.CachePath); err != nil {
		logger.Warn("embedding cache load failed, starting empty", zap.Error(err))
	}

	ref := vector.NewRef(nil)
	if idx, err := vector.Load(cfg.Storage.IndexDir); err == nil {
		ref.Swap(idx)
		logger.Info("vector index loaded",
			zap.Int("size", idx.Size()),
			zap.Int("dimensions", idx.Dimensions()))
	} else {
		logger.Info("no persisted vector index, build required", zap.Error(err))
	}

	builder := pipeline.NewBuilder(store, cache, embedder, ref,
		cfg.Storage.IndexDir, cfg.Storage.CachePath, cfg.Search.BuildWorkers, logger)
	ranker := ranking.NewRanker(store, cfg.Search.PreviewLength, logger)
	p := pipeline.New(embedder, ref, ranker, logger)
	ingester := ingest.NewIngester(store, logger)

	return &Components{
		Store:    store,
		Embedder: embedder,
		Cache:    cache,
		Ref:      ref,
		Builder:  builder,
		Pipeline: p,
		Ingester: ingester,
	}, nil
}

func printUsage() {
	fmt.Println(`kensaku - Local semantic document search

Usage:
  kensaku server [flags]          Start the HTTP server
  kensaku build [flags]           Rebuild the vector index from stored documents
  kensaku add [flags] <path>      Add a document file or directory
  kensaku search [flags] <query>  Search documents
  kensaku status [flags]          Show storage and index status
  kensaku version                 Show version
  kensaku help                    Show this help

Common Flags:
  -config string   Config file path (default ` + defaultConfigPath + `,
                   or ./config.yaml when present)

Server Flags:
  -debug           Enable debug logging

Search Flags:
  -server string   Query a running server over HTTP instead of local storage
  -top-k int       Number of results
  -output string   text or json`)
}
