// Package fetch acquires catalog-page markup, either live through a headless
// browser or from on-disk snapshots.
package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/profile"
)

// Page is one fetched catalog page ready for extraction.
type Page struct {
	// URL is the address the markup was fetched from (or the snapshot path).
	URL string

	// Category is the page-set tag from the source configuration.
	Category string

	// Markup is the full rendered document.
	Markup string
}

// Fetcher retrieves the markup behind one configured page entry. A single
// entry may yield several pages when the storefront paginates.
type Fetcher interface {
	Fetch(ctx context.Context, p *profile.SourceProfile, pc config.PageConfig) ([]Page, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the fetcher selected by configuration.
func New(cfg config.FetcherConfig, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileFetcher(cfg.SnapshotDir, logger), nil
	case "browser":
		return NewBrowserFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Type)
	}
}
