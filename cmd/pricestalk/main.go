package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/fetch"
	"github.com/pricestalk/pricestalk/internal/normalize"
	"github.com/pricestalk/pricestalk/internal/observability"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/runner"
	"github.com/pricestalk/pricestalk/internal/storage"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	outputType  string
	fetcherType string
	snapshotDir string
	concurrent  int
	maxItems    int
	sourceNames string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pricestalk",
		Short: "PriceStalk — game store price aggregator",
		Long: `PriceStalk harvests game listings from storefront catalog pages and merges
them into one deduplicated, price-comparable catalog.

Features:
  • Anchored heuristic extraction that survives storefront redesigns
  • Declarative per-storefront profiles (bundled: Steam, Xbox, GOG, more)
  • Locale-aware price parsing and static currency conversion
  • Cross-source URL deduplication with first-seen-wins merging
  • CSV, JSON, JSONL, and MongoDB export
  • Headless-browser fetching with stealth, scrolling, and pagination
  • Prometheus metrics endpoint`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(harvestCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(profilesCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// harvestCmd creates the "harvest" subcommand.
func harvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest all configured storefronts into one catalog",
		Long:  "Fetch every configured catalog page, extract and normalize listings, and write the merged catalog.",
		RunE:  runHarvest,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: csv, json, jsonl, mongodb")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: file, browser")
	cmd.Flags().StringVar(&snapshotDir, "snapshots", "", "snapshot directory for the file fetcher")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "number of sources harvested in parallel")
	cmd.Flags().IntVarP(&maxItems, "max-items", "m", -1, "maximum listings per source (0 = unlimited)")
	cmd.Flags().StringVar(&sourceNames, "sources", "", "comma-separated bundled source names (default: all)")

	return cmd
}

// runHarvest executes the harvest command.
func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cfg)
	if len(cfg.Sources) == 0 {
		cfg.Sources = selectBuiltins(sourceNames)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting harvest",
		"sources", len(cfg.Sources),
		"concurrency", cfg.Harvest.Concurrency,
		"fetcher", cfg.Fetcher.Type,
		"output", cfg.Storage.OutputPath,
		"format", cfg.Storage.Type,
	)

	fetcher, err := fetch.New(cfg.Fetcher, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer fetcher.Close()

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	start := time.Now()
	r := runner.New(cfg, fetcher, metrics, logger)
	catalog, report, runErr := r.Run(ctx)

	for _, sr := range report.Sources {
		if sr.Err != nil {
			logger.Error("source failed", "source", sr.Source, "error", sr.Err)
			continue
		}
		logger.Info("source report",
			"source", sr.Source,
			"pages", sr.Pages,
			"empty_pages", sr.EmptyPages,
			"unparsable_pages", sr.UnparsablePages,
			"extracted", sr.Extracted,
			"missed", sr.Missed,
			"normalized", sr.Normalized,
			"rejected", sr.Rejected,
			"duplicates", sr.Duplicates,
		)
	}

	if catalog.Len() > 0 {
		rates := normalize.NewRateTable(cfg.Rates)
		store, err := storage.New(cfg.Storage, rates.Reference(), rates.Alt(), logger)
		if err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
		if err := store.Store(catalog.Listings()); err != nil {
			store.Close()
			return fmt.Errorf("store catalog: %w", err)
		}
		if err := store.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("\n✅ Harvest complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Sources:    %d harvested\n", len(report.Sources))
	fmt.Printf("   Catalog:    %d unique listings\n", report.CatalogSize)
	fmt.Printf("   Duplicates: %d same-source, %d cross-source\n", report.DupSameSource, report.DupCrossSource)
	fmt.Printf("   Output:     %s\n", cfg.Storage.OutputPath)

	if runErr != nil {
		return runErr
	}
	return nil
}

// fetchCmd creates the "fetch" subcommand.
func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch configured catalog pages and save them as snapshots",
		Long: `Browser-fetch every configured catalog page and save the rendered markup as
gzip-compressed snapshots, laid out for later harvesting with the file
fetcher (--fetcher file).`,
		RunE: runFetch,
	}

	cmd.Flags().StringVar(&snapshotDir, "snapshots", "", "directory to write snapshots into")
	cmd.Flags().StringVar(&sourceNames, "sources", "", "comma-separated bundled source names (default: all)")

	return cmd
}

// runFetch executes the fetch command.
func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cfg)
	cfg.Fetcher.Type = "browser"
	if len(cfg.Sources) == 0 {
		cfg.Sources = selectBuiltins(sourceNames)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting snapshot fetch",
		"sources", len(cfg.Sources),
		"snapshots", cfg.Fetcher.SnapshotDir,
	)

	fetcher, err := fetch.New(cfg.Fetcher, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer fetcher.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	written := 0
	failed := 0
	for _, sc := range cfg.Sources {
		p, err := profile.Compile(sc)
		if err != nil {
			logger.Error("source profile rejected", "source", sc.Name, "error", err)
			failed++
			continue
		}

		for _, pc := range p.Pages {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pages, err := fetcher.Fetch(ctx, p, pc)
			if err != nil {
				logger.Error("page fetch failed", "source", p.Name, "url", pc.URL, "error", err)
				failed++
				continue
			}
			for i, page := range pages {
				path, err := fetch.WriteSnapshot(cfg.Fetcher.SnapshotDir, p.Name, page.Category, written+i+1, page.Markup)
				if err != nil {
					logger.Error("snapshot write failed", "source", p.Name, "error", err)
					failed++
					continue
				}
				logger.Info("snapshot saved", "source", p.Name, "category", page.Category, "path", path)
			}
			written += len(pages)
		}
	}

	fmt.Printf("\n✅ Fetch complete\n")
	fmt.Printf("   Snapshots:  %d written\n", written)
	fmt.Printf("   Failures:   %d\n", failed)
	fmt.Printf("   Directory:  %s\n", cfg.Fetcher.SnapshotDir)

	if written == 0 {
		return fmt.Errorf("no snapshots written")
	}
	return nil
}

// profilesCmd creates the "profiles" subcommand listing bundled storefronts.
func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List bundled storefront profiles",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%-16s %-20s %-9s %-9s %s\n", "NAME", "STOREFRONT", "CURRENCY", "STRATEGY", "PAGES")
			for _, sc := range profile.Builtins() {
				fmt.Printf("%-16s %-20s %-9s %-9s %d\n",
					sc.Name, sc.Storefront, sc.Currency, sc.Anchor.Strategy, len(sc.Pages))
			}
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PriceStalk %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Harvest:\n")
			fmt.Printf("  Concurrency:      %d\n", cfg.Harvest.Concurrency)
			fmt.Printf("  Max Items:        %d\n", cfg.Harvest.MaxItems)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:             %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Snapshot Dir:     %s\n", cfg.Fetcher.SnapshotDir)
			fmt.Printf("  Request Timeout:  %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Max Pages:        %d\n", cfg.Fetcher.MaxPages)
			fmt.Printf("  Stealth:          %v\n", cfg.Fetcher.Stealth)
			fmt.Printf("\nRates:\n")
			fmt.Printf("  Reference:        %s\n", cfg.Rates.Reference)
			fmt.Printf("  Alt:              %s\n", cfg.Rates.Alt)
			fmt.Printf("  Currencies:       %d configured\n", len(cfg.Rates.ToReference))
			fmt.Printf("\nSources:\n")
			fmt.Printf("  Configured:       %d (bundled: %d)\n", len(cfg.Sources), len(profile.Builtins()))
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:             %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:      %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:          %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:             %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger per the logging configuration,
// with the verbose flag taking priority.
func setupLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	out := os.Stderr
	if lc.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(lc.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// selectBuiltins resolves the --sources flag against the bundled profiles.
func selectBuiltins(names string) []config.SourceConfig {
	if strings.TrimSpace(names) == "" {
		return profile.Builtins()
	}
	var out []config.SourceConfig
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if sc, ok := profile.BuiltinByName(name); ok {
			out = append(out, sc)
		} else {
			fmt.Fprintf(os.Stderr, "warning: unknown source %q skipped\n", name)
		}
	}
	return out
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if concurrent > 0 {
		cfg.Harvest.Concurrency = concurrent
	}
	if maxItems >= 0 {
		cfg.Harvest.MaxItems = maxItems
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if snapshotDir != "" {
		cfg.Fetcher.SnapshotDir = snapshotDir
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
}
