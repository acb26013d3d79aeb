// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/catalog"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:3032"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config falls back to built-in defaults. The environment and
// .env file are applied on top and the result is validated.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	cfg, resolved, err := readConfig(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

func readConfig(path string) (*config.Config, string, error) {
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	return utils.NewLoggerWithFile(debug, utils.LogFileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "refresh":
		runRefresh()
	case "catalog":
		runCatalog()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging (grounding decisions, imports, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := newLogger(cfg, debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("sessions", cfg.Session.Backend),
	)

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if cfg.Catalog.WatchDir != "" {
		watchSvc = watcher.NewWatcher(
			cfg.Catalog.WatchDir,
			cfg.Catalog.Extensions,
			importBatch(catalog.NewImporter(components.Storage, logger), components.Index, logger),
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Catalog.Debounce),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		logger.Info("watching drop folder", zap.String("dir", watchSvc.Dir()))
	}

	srv := server.NewServer(server.Deps{
		QA:        components.QA,
		Index:     components.Index,
		Catalog:   components.Storage,
		Sessions:  components.Sessions,
		DiskPaths: diskPaths(cfg),
		Version:   version,
	}, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// catalogImporter is the part of catalog.Importer used by importBatch.
type catalogImporter interface {
	Import(ctx context.Context, path string) (int, error)
}

// indexRefresher is the part of indexer.Manager used by importBatch.
type indexRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// importBatch returns the watcher callback: it imports every file of a batch
// and refreshes the index once if anything was written.
func importBatch(im catalogImporter, idx indexRefresher, logger *zap.Logger) watcher.BatchFunc {
	return func(ctx context.Context, paths []string) {
		imported := 0
		for _, p := range paths {
			n, err := im.Import(ctx, p)
			if err != nil {
				logger.Warn("catalog import failed", zap.String("path", p), zap.Error(err))
				continue
			}
			imported += n
		}
		if imported == 0 {
			return
		}
		n, err := idx.Refresh(ctx)
		if err != nil {
			logger.Error("index refresh after import failed", zap.Error(err))
			return
		}
		logger.Info("catalog imported",
			zap.Int("files", len(paths)),
			zap.Int("items_written", imported),
			zap.Int("items_indexed", n))
	}
}

func runAsk() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer in-process)")
	sessionID := fs.String("session", "", "session id from a previous answer")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	question := joinArgs(fs.Args())
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)

	var resp *models.AskResponse
	var err error
	if *serverURL != "" {
		resp, err = askViaHTTP(*serverURL, question, *sessionID)
	} else {
		err = withComponents(*configPath, func(ctx context.Context, c *Components) error {
			var askErr error
			resp, askErr = c.QA.Ask(ctx, question, *sessionID)
			return askErr
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, question, sessionID string) (*models.AskResponse, error) {
	body, err := json.Marshal(models.AskRequest{Question: question, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	var out models.AskResponse
	if err := doJSON(http.MethodPost, serverURL+"/api/v1/qa", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func runSearch() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search in-process)")
	k := fs.Int("k", models.DefaultSearchK, "number of results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	query := &models.SearchQuery{Query: joinArgs(fs.Args()), K: *k}
	if err := query.Validate(); err != nil {
		fmt.Println("Usage: kotae search [flags] <query>")
		fmt.Printf("  %v\n", err)
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)

	var response *models.SearchResponse
	var err error
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		err = withComponents(*configPath, func(ctx context.Context, c *Components) error {
			start := time.Now()
			hits, searchErr := c.Index.SearchText(ctx, query.Query, query.K)
			if searchErr != nil {
				return searchErr
			}
			response = searchResponse(query, hits, time.Since(start))
			return nil
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchResponse(query *models.SearchQuery, hits []indexer.Hit, took time.Duration) *models.SearchResponse {
	results := make([]*models.SearchResult, 0, len(hits))
	for i, h := range hits {
		results = append(results, &models.SearchResult{
			ID:          h.Item.ID,
			Description: h.Item.Description,
			Score:       1 - h.Distance,
			Distance:    h.Distance,
			Rank:        i + 1,
		})
	}
	return &models.SearchResponse{
		Query:     query.Query,
		K:         query.K,
		Results:   results,
		QueryTime: took.Milliseconds(),
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	params := url.Values{}
	params.Set("q", query.Query)
	params.Set("k", strconv.Itoa(query.K))
	var response models.SearchResponse
	if err := doJSON(http.MethodGet, serverURL+"/api/v1/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func runRefresh() {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	var out struct {
		Status    string `json:"status"`
		ItemCount int    `json:"item_count"`
	}
	if err := doJSON(http.MethodPost, *serverURL+"/api/v1/index/refresh", nil, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index %s: %d item(s)\n", out.Status, out.ItemCount)
}

func runCatalog() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae catalog <import|list> [flags]")
		fmt.Println("  kotae catalog import <file>...  Import catalog files (.json, .yaml, .xlsx)")
		fmt.Println("  kotae catalog list              List catalog items")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("catalog "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL to refresh after import (empty = no refresh)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg, cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := openCatalog(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch sub {
	case "import":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae catalog import [flags] <file>...")
			os.Exit(1)
		}
		im := catalog.NewImporter(store, logger)
		for _, path := range fs.Args() {
			n, err := im.Import(ctx, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Imported %d item(s) from %s\n", n, path)
		}
		if *serverURL != "" {
			var out struct {
				ItemCount int `json:"item_count"`
			}
			if err := doJSON(http.MethodPost, *serverURL+"/api/v1/index/refresh", nil, &out); err != nil {
				fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Index refreshed: %d item(s)\n", out.ItemCount)
		}
	case "list":
		items, err := store.ListItems(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteItems(os.Stdout, items, mustFormat(*outputFormat)); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown catalog subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*outputFormat)

	var status *server.StatusResponse
	var err error
	if *serverURL != "" {
		status = &server.StatusResponse{}
		err = doJSON(http.MethodGet, *serverURL+"/api/v1/status", nil, status)
	} else {
		status, err = localStatus(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// localStatus reports what can be read without a running server. The index
// is not loaded, so it is never reported ready.
func localStatus(configPath string) (*server.StatusResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	store, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	count, err := store.CountItems(ctx)
	if err != nil {
		return nil, err
	}
	disk, err := storage.DiskUsageBytes(diskPaths(cfg)...)
	if err != nil {
		return nil, err
	}
	return &server.StatusResponse{
		Version: version,
		Index: indexer.Stats{
			IndexType:  cfg.Index.Type,
			Dimensions: cfg.Embedding.Dimensions,
			IndexPath:  cfg.Index.Path,
		},
		CatalogItems:   count,
		DiskUsageBytes: disk,
	}, nil
}

// withComponents loads config, wires the full stack and runs fn against it.
func withComponents(configPath string, fn func(ctx context.Context, c *Components) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(ctx, components)
}

// doJSON sends body (if any) to target and decodes a 200 response into out.
func doJSON(method, target string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return format
}

// joinArgs joins all positional args with spaces so multi-word input
// works the same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`kotae - Conversational product Q&A over a catalog

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ask [flags] <question>     Ask a question (continue with --session)
  kotae search [flags] <query>     Find the closest catalog items
  kotae refresh [flags]            Rebuild the index from the catalog
  kotae catalog import <file>...   Import catalog files (.json, .yaml, .xlsx)
  kotae catalog list               List catalog items
  kotae status [flags]             Show index, catalog and session status
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:3032). Use --server "" to answer in-process.
  --session string   Session id returned by a previous answer
  --output string    Output format: text or json (default: text)

Search Flags:
  --server string    Server URL (default: http://localhost:3032). Use --server "" to search in-process.
  --k int            Number of results (default: 3, max: 20)
  --output string    Output format: text or json (default: text)

Catalog Flags:
  --config string    Config file path
  --server string    Refresh this server's index after import
  --output string    Output format for list: text or json

Environment:
  DATABASE_URL, INDEX_FILE, EMBEDDING_MODEL, OLLAMA_URL, OLLAMA_MODEL,
  PORT, REDIS_ADDR, KOTAE_DEBUG (also read from .env)

Examples:
  kotae server
  kotae catalog import products.json --server http://localhost:3032
  kotae ask "does the blender have a glass jar?"
  kotae ask --session 6f1c... "how loud is it?"
  kotae search --k 5 stainless kettle
  kotae status --output json`)
}
