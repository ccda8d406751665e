// Package main is the WTM CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/hyperjump/wtm/internal/catalog"
	"github.com/hyperjump/wtm/internal/cli"
	"github.com/hyperjump/wtm/internal/config"
	"github.com/hyperjump/wtm/internal/embedding"
	"github.com/hyperjump/wtm/internal/importer"
	"github.com/hyperjump/wtm/internal/keyword"
	"github.com/hyperjump/wtm/internal/matcher"
	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/ocr"
	"github.com/hyperjump/wtm/internal/server"
	"github.com/hyperjump/wtm/internal/storage"
	"github.com/hyperjump/wtm/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/wtm/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence if it exists.
// Returns the config and the path that was actually loaded.
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
		// Without any config file the built-in defaults are used.
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
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
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "match":
		runMatch()
	case "backfill":
		runBackfill()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("wtm version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and a logger for commands that open the store directly.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolvedConfigPath := setup(*configPath, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
		zap.String("catalog_backend", cfg.Catalog.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if mc, ok := components.Catalog.(*catalog.MemoryCatalog); ok && cfg.Catalog.RefreshInterval() > 0 {
		go mc.Run(ctx, cfg.Catalog.RefreshInterval())
	}

	srv := server.NewServer(server.Deps{
		Store:      components.Storage,
		Resolver:   components.Resolver,
		Catalog:    components.Catalog,
		Backfiller: components.Backfiller,
		Embedder:   components.Embedder,
		Model:      components.Embedder,
		Names:      components.Names,
		Suggester:  components.Suggester,
		Extractor:  components.Extractor,
		Config:     cfg,
		Logger:     logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

// printMatchUsage prints match subcommand usage.
func printMatchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: wtm match [flags] <file|->\n\n")
	fmt.Fprintf(fs.Output(), "Reads menu text from a file (txt, md, pdf, docx, or an image when OCR is configured) or from stdin with \"-\".\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  wtm match menu.txt
  wtm match --top-k 5 --threshold 0.6 menu.pdf
  cat menu.txt | wtm match --output json -
  wtm match --server "" menu.txt      # match without a running server
`)
}

// matchArgsReorder moves flags that appear after the file argument to the
// front so that flag.Parse sees them. A lone "-" is the stdin marker, not a flag.
func matchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 1 && a[0] == '-' {
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

// readMenuText returns the text to match for source, which is a path or "-" for stdin.
func readMenuText(ctx context.Context, extractor *ocr.Extractor, source string, stdin io.Reader) (string, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	return extractor.Extract(ctx, source)
}

// buildMatchRequest turns flag values into a request. The threshold is only
// sent when the flag was given explicitly.
func buildMatchRequest(text string, topK int, threshold float64, thresholdSet bool) models.MatchRequest {
	req := models.MatchRequest{Text: text, TopK: topK}
	if thresholdSet {
		t := threshold
		req.Threshold = &t
	}
	return req
}

func runMatch() {
	args := matchArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = match directly against the local store)")
	topK := fs.Int("top-k", 0, "candidates per item (0 = configured default)")
	threshold := fs.Float64("threshold", 0, "minimum similarity in [-1, 1] (default from config)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printMatchUsage(fs) }
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		printMatchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	thresholdSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			thresholdSet = true
		}
	})

	ctx := context.Background()
	text, err := readMenuText(ctx, ocr.NewExtractor(), fs.Arg(0), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read menu: %v\n", err)
		os.Exit(1)
	}
	req := buildMatchRequest(text, *topK, *threshold, thresholdSet)

	var response *models.MatchResponse
	if *serverURL != "" {
		response, err = matchViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Match failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, _ := setup(*configPath, false)
		defer logger.Sync()
		if err := req.Validate(cfg.Matching.MaxTopK); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid request: %v\n", err)
			os.Exit(1)
		}
		components, err := initializeComponents(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		var opts []matcher.CallOption
		if req.TopK > 0 {
			opts = append(opts, matcher.WithTopK(req.TopK))
		}
		if req.Threshold != nil {
			opts = append(opts, matcher.WithThreshold(*req.Threshold))
		}
		start := time.Now()
		results, err := components.Resolver.Resolve(ctx, req.Text, opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Match failed: %v\n", err)
			os.Exit(1)
		}
		response = &models.MatchResponse{Results: results, QueryTime: time.Since(start).Milliseconds()}
	}

	if err := cli.WriteMatchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func matchViaHTTP(serverURL string, req models.MatchRequest) (*models.MatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/match", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.MatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runBackfill() {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = backfill the local store directly)")
	recompute := fs.Bool("recompute", false, "clear and recompute every embedding")
	_ = fs.Parse(os.Args[2:])

	var report catalog.BackfillReport
	if *serverURL != "" {
		endpoint := *serverURL + "/api/v1/catalog/backfill?recompute=" + url.QueryEscape(strconv.FormatBool(*recompute))
		resp, err := http.Post(endpoint, "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Backfill failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, _ := setup(*configPath, false)
		defer logger.Sync()
		ctx := context.Background()
		components, err := initializeComponents(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		report, err = components.Backfiller.Run(ctx, catalog.BackfillOptions{Recompute: *recompute})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Backfill failed: %v\n", err)
			os.Exit(1)
		}
	}
	if report.Cleared > 0 {
		fmt.Printf("Cleared %d embedding(s)\n", report.Cleared)
	}
	fmt.Printf("Embedded %d food(s), %d failed in %s\n", report.Embedded, report.Failed, report.Duration.Round(time.Millisecond))
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	skipEmbed := fs.Bool("skip-embed", false, "store foods without computing embeddings")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: wtm import [flags] <foods.xlsx|foods.yaml>")
		os.Exit(1)
	}
	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	report, err := importer.New(components.Storage, logger).ImportFile(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	for _, issue := range report.Issues {
		fmt.Printf("skipped %s\n", issue)
	}
	for _, f := range report.Foods {
		if err := components.Names.IndexFood(ctx, f); err != nil {
			logger.Warn("name index update failed", zap.Int64("food_id", f.ID), zap.Error(err))
		}
	}
	fmt.Printf("Imported %d food(s), skipped %d\n", report.Created, report.Skipped)

	if *skipEmbed || report.Created == 0 {
		return
	}
	bf, err := components.Backfiller.Run(ctx, catalog.BackfillOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Embedded %d food(s), %d failed\n", bf.Embedded, bf.Failed)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Menus          int64           `json:"menus"`
	Foods          int64           `json:"foods"`
	EmbeddedFoods  int64           `json:"embedded_foods"`
	Catalog        *catalog.Stats  `json:"catalog,omitempty"`
	Model          *statusModel    `json:"model,omitempty"`
	NameIndexSize  uint64          `json:"name_index_size,omitempty"`
	DiskUsageBytes *int64          `json:"disk_usage_bytes,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
}

type statusModel struct {
	ID     string                `json:"id"`
	Loaded bool                  `json:"loaded"`
	Cache  *embedding.CacheStats `json:"cache,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, logger, _ := setup(*configPath, false)
		defer logger.Sync()
		ctx := context.Background()
		components, err := initializeComponents(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		res, err := localStatus(ctx, components, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, &status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func localStatus(ctx context.Context, c *Components, cfg *config.Config) (*statusResponse, error) {
	var (
		status statusResponse
		err    error
	)
	if status.Menus, err = c.Storage.CountMenus(ctx); err != nil {
		return nil, fmt.Errorf("count menus: %w", err)
	}
	if status.Foods, err = c.Storage.CountFoods(ctx); err != nil {
		return nil, fmt.Errorf("count foods: %w", err)
	}
	if status.EmbeddedFoods, err = c.Storage.CountEmbeddedFoods(ctx); err != nil {
		return nil, fmt.Errorf("count embedded foods: %w", err)
	}
	if stats, err := c.Catalog.Stats(ctx); err == nil {
		status.Catalog = &stats
	}
	status.Model = &statusModel{ID: c.Embedder.ModelID(), Loaded: c.Embedder.Loaded()}
	if cs, ok := c.Embedder.CacheStats(); ok {
		status.Model.Cache = &cs
	}
	if n, err := c.Names.DocCount(); err == nil {
		status.NameIndexSize = n
	}
	if diskBytes, err := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.IndexSnapshotPath,
		cfg.Storage.NameIndexPath,
	); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return &status, nil
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "menus:              %d\n", status.Menus)
	fmt.Fprintf(w, "foods:              %d\n", status.Foods)
	fmt.Fprintf(w, "embedded_foods:     %d   # foods visible to matching\n", status.EmbeddedFoods)
	fmt.Fprintf(w, "name_index_size:    %d\n", status.NameIndexSize)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + indices on disk\n", *status.DiskUsageBytes)
	}
	if status.Catalog != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# catalog")
		fmt.Fprintf(w, "backend:            %s\n", status.Catalog.Backend)
		fmt.Fprintf(w, "dimensions:         %d\n", status.Catalog.Dimensions)
		fmt.Fprintf(w, "size:               %d\n", status.Catalog.Size)
		if status.Catalog.RefreshedAt != "" {
			fmt.Fprintf(w, "refreshed_at:       %s\n", status.Catalog.RefreshedAt)
		}
	}
	if status.Model != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# model")
		fmt.Fprintf(w, "model_id:           %s\n", status.Model.ID)
		fmt.Fprintf(w, "loaded:             %t\n", status.Model.Loaded)
		if c := status.Model.Cache; c != nil {
			fmt.Fprintf(w, "cache:              %d/%d entries, %d hits, %d misses\n", c.Entries, c.Capacity, c.Hits, c.Misses)
		}
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Storage    storage.Storage
	Embedder   *embedding.Provider
	Catalog    server.Catalog
	Resolver   *matcher.Resolver
	Names      *keyword.BleveIndex
	Suggester  *keyword.Suggester
	Extractor  *ocr.Extractor
	Backfiller *catalog.Backfiller
}

func (c *Components) Close() {
	if closer, ok := c.Catalog.(io.Closer); ok {
		_ = closer.Close()
	}
	if c.Names != nil {
		_ = c.Names.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	c.Embedder = embedding.NewProviderFromConfig(cfg.Embedding, embedding.WithLogger(logger))
	dims := catalogDimensions(ctx, cfg.Embedding, c.Embedder, logger)

	cat, err := newCatalog(ctx, cfg, dims, store, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Catalog = cat

	c.Resolver = matcher.NewResolver(c.Embedder, cat,
		matcher.WithDefaults(cfg.Matching.TopK, cfg.Matching.ThresholdOrDefault()),
		matcher.WithWorkers(cfg.Matching.Workers),
		matcher.WithLogger(logger),
	)

	c.Names, err = keyword.NewBleveIndex(cfg.Storage.NameIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize name index: %w", err)
	}
	if err := rebuildNameIndex(ctx, store, c.Names, cfg.Storage.NameIndexPath == ""); err != nil {
		logger.Warn("name index rebuild failed", zap.Error(err))
	}
	c.Suggester = keyword.NewSuggester(c.Names)

	ocrOpts := []ocr.Option{ocr.WithLogger(logger)}
	if cfg.OCR.Placeholder {
		ocrOpts = append(ocrOpts, ocr.WithImageOCR(ocr.NewPlaceholderOCR(logger)))
	}
	c.Extractor = ocr.NewExtractor(ocrOpts...)

	c.Backfiller = catalog.NewBackfiller(store, c.Embedder, cat, cfg.Catalog.EmbedIngredients, logger)

	logger.Info("components initialized",
		zap.String("catalog_backend", cfg.Catalog.Backend),
		zap.String("model_id", c.Embedder.ModelID()),
		zap.Bool("model_loaded", c.Embedder.Loaded()),
	)
	return c, nil
}

// catalogDimensions loads the embedding model and returns the vector length it
// produces. The configured dimensions are only used when the model cannot load,
// in which case match calls report the model as unavailable anyway.
func catalogDimensions(ctx context.Context, cfg config.EmbeddingConfig, p *embedding.Provider, logger *zap.Logger) int {
	if err := p.Load(ctx); err != nil {
		logger.Warn("embedding model failed to load", zap.String("model_id", cfg.ModelID), zap.Error(err))
		return cfg.Dimensions
	}
	dims, _ := p.Dimensions()
	if cfg.Dimensions > 0 && cfg.Dimensions != dims {
		logger.Warn("configured embedding dimensions differ from the model, using the model's",
			zap.Int("configured", cfg.Dimensions), zap.Int("model", dims))
	}
	return dims
}

func newCatalog(ctx context.Context, cfg *config.Config, dims int, store storage.Storage, logger *zap.Logger) (server.Catalog, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogBackendPgvector:
		opts := []catalog.Option{catalog.WithLogger(logger), catalog.WithTable(cfg.Catalog.PgTable)}
		if cfg.Catalog.PgMirror {
			opts = append(opts, catalog.WithMirrorSource(store))
		}
		pg, err := catalog.OpenPgvectorCatalog(ctx, cfg.Catalog.PostgresDSN, dims, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open pgvector catalog: %w", err)
		}
		if cfg.Catalog.PgMirror {
			if err := pg.Refresh(ctx); err != nil {
				logger.Warn("initial pgvector mirror failed", zap.Error(err))
			}
		}
		return pg, nil
	default:
		mc, err := catalog.NewMemoryCatalog(store, dims,
			catalog.WithLogger(logger),
			catalog.WithSnapshotPath(cfg.Storage.IndexSnapshotPath),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
		if err := mc.Open(ctx); err != nil {
			logger.Warn("initial catalog load failed", zap.Error(err))
		}
		return mc, nil
	}
}

// rebuildNameIndex fills the name index from the store. An on-disk index is
// only rebuilt when it is empty.
func rebuildNameIndex(ctx context.Context, store storage.Storage, names *keyword.BleveIndex, inMemory bool) error {
	if !inMemory {
		if n, err := names.DocCount(); err == nil && n > 0 {
			return nil
		}
	}
	var all []*models.Food
	for offset := 0; ; offset += storage.DefaultListLimit {
		page, err := store.ListFoods(ctx, offset, storage.DefaultListLimit)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) < storage.DefaultListLimit {
			break
		}
	}
	return names.Rebuild(ctx, all)
}

func printUsage() {
	fmt.Println(strings.TrimSpace(`
wtm - match restaurant menu text against a food catalog

Usage:
  wtm server [flags]              Start the HTTP server
  wtm match [flags] <file|->      Match menu text and print candidates
  wtm backfill [flags]            Compute missing food embeddings
  wtm import [flags] <file>       Import foods from XLSX or YAML
  wtm status [flags]              Show store/catalog/model status
  wtm version                     Show version
  wtm help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/wtm/config.yaml)
  --debug            Enable debug logging

Match Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8000). Use --server "" to match without a server.
  --top-k int        Candidates per item (default from config)
  --threshold float  Minimum similarity (default from config)
  --output string    Output format: text, compact, or json (default: text)

Backfill Flags:
  --config string    Config file path
  --server string    Run the backfill on a running server instead of the local store
  --recompute        Clear and recompute every embedding

Import Flags:
  --config string    Config file path
  --skip-embed       Do not compute embeddings after importing

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8000). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  wtm server
  wtm import foods.xlsx
  wtm backfill --recompute
  wtm match menu.pdf
  wtm match --output compact --top-k 1 menu.txt
  wtm status --output json`))
}
