// Package pricestalk provides a public SDK for embedding the harvester as a
// library.
//
// Example usage:
//
//	h := pricestalk.NewHarvester(
//	    pricestalk.WithSources("steam", "gog"),
//	    pricestalk.WithSnapshotDir("./snapshots"),
//	    pricestalk.WithOutput("csv", "./out/catalog.csv"),
//	)
//
//	catalog, report, err := h.Run(context.Background())
//
// For one-off use with markup you already hold:
//
//	listings, err := h.HarvestMarkup(markup, "steam", "specials")
package pricestalk

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/extract"
	"github.com/pricestalk/pricestalk/internal/fetch"
	"github.com/pricestalk/pricestalk/internal/merge"
	"github.com/pricestalk/pricestalk/internal/normalize"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/runner"
	"github.com/pricestalk/pricestalk/internal/storage"
	"github.com/pricestalk/pricestalk/internal/types"
)

// Re-exported result types.
type (
	Listing      = types.CanonicalListing
	Catalog      = types.Catalog
	Platform     = types.Platform
	BatchReport  = runner.BatchReport
	SourceReport = runner.SourceReport
)

// Harvester is the high-level API for using the harvester as a library.
type Harvester struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Option configures a Harvester.
type Option func(*config.Config)

// WithConcurrency sets the number of sources harvested in parallel.
func WithConcurrency(n int) Option {
	return func(c *config.Config) { c.Harvest.Concurrency = n }
}

// WithMaxItems caps extracted listings per source (0 = unlimited).
func WithMaxItems(n int) Option {
	return func(c *config.Config) { c.Harvest.MaxItems = n }
}

// WithSources selects bundled storefronts by name.
func WithSources(names ...string) Option {
	return func(c *config.Config) {
		for _, name := range names {
			if sc, ok := profile.BuiltinByName(name); ok {
				c.Sources = append(c.Sources, sc)
			}
		}
	}
}

// WithSourceConfig adds a custom storefront configuration.
func WithSourceConfig(sc config.SourceConfig) Option {
	return func(c *config.Config) { c.Sources = append(c.Sources, sc) }
}

// WithRates overrides the static currency table.
func WithRates(rc config.RatesConfig) Option {
	return func(c *config.Config) { c.Rates = rc }
}

// WithSnapshotDir selects the file fetcher reading saved markup from dir.
func WithSnapshotDir(dir string) Option {
	return func(c *config.Config) {
		c.Fetcher.Type = "file"
		c.Fetcher.SnapshotDir = dir
	}
}

// WithBrowser selects the headless browser fetcher.
func WithBrowser() Option {
	return func(c *config.Config) { c.Fetcher.Type = "browser" }
}

// WithOutput sets the storage format and path.
func WithOutput(format, path string) Option {
	return func(c *config.Config) {
		c.Storage.Type = format
		c.Storage.OutputPath = path
	}
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// NewHarvester creates a Harvester with the given options. Without a
// WithSources or WithSourceConfig option, every bundled storefront is used.
func NewHarvester(opts ...Option) *Harvester {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = profile.Builtins()
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return &Harvester{cfg: cfg, logger: logger}
}

// Run harvests every configured source, stores the merged catalog, and
// returns it along with the batch report.
func (h *Harvester) Run(ctx context.Context) (*Catalog, *BatchReport, error) {
	fetcher, err := fetch.New(h.cfg.Fetcher, h.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}
	defer fetcher.Close()

	r := runner.New(h.cfg, fetcher, nil, h.logger)
	catalog, report, runErr := r.Run(ctx)

	if catalog.Len() > 0 {
		rates := normalize.NewRateTable(h.cfg.Rates)
		store, err := storage.New(h.cfg.Storage, rates.Reference(), rates.Alt(), h.logger)
		if err != nil {
			return catalog, report, fmt.Errorf("create storage: %w", err)
		}
		if err := store.Store(catalog.Listings()); err != nil {
			store.Close()
			return catalog, report, err
		}
		if err := store.Close(); err != nil {
			return catalog, report, err
		}
	}

	return catalog, report, runErr
}

// HarvestMarkup extracts and normalizes listings from markup you already
// hold, using the named source's profile. Nothing is stored or deduplicated
// against other calls.
func (h *Harvester) HarvestMarkup(markup, sourceName, category string) ([]*Listing, error) {
	// Configured sources take precedence over the bundled profile of the
	// same name.
	found := false
	var sc config.SourceConfig
	for _, candidate := range h.cfg.Sources {
		if candidate.Name == sourceName {
			sc, found = candidate, true
			break
		}
	}
	if !found {
		if sc, found = profile.BuiltinByName(sourceName); !found {
			return nil, fmt.Errorf("unknown source %q", sourceName)
		}
	}

	p, err := profile.Compile(sc)
	if err != nil {
		return nil, err
	}

	rates := normalize.NewRateTable(h.cfg.Rates)
	if !rates.Supports(p.Currency) {
		return nil, &types.ConfigError{
			Source: p.Name,
			Field:  "currency",
			Err:    fmt.Errorf("no rate configured for currency %q", p.Currency),
		}
	}

	extractor := extract.New(h.logger)
	res, err := extractor.Extract(markup, p, category, h.cfg.Harvest.MaxItems)
	if err != nil {
		return nil, err
	}

	normalizer := normalize.New(rates, h.logger)
	merger := merge.New(h.logger)

	var listings []*Listing
	for _, raw := range res.Listings {
		l, err := normalizer.Normalize(raw, p)
		if err != nil {
			continue
		}
		if merger.Add(l) {
			listings = append(listings, l)
		}
	}
	return listings, nil
}
