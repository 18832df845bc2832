package pricestalk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const cannedMarkup = `<html><body>
	<a href="/en/alpha"><span>-15%</span><span>Alpha Strike - PC</span><span>€10,00</span></a>
	<a href="/en/beta"><span>-30%</span><span>Beta Protocol - PC</span><span>€7,00</span></a>
</body></html>`

func TestHarvestMarkupWithCustomSource(t *testing.T) {
	h := NewHarvester(WithSourceConfig(config.SourceConfig{
		Name:         "shop",
		Currency:     "EUR",
		DecimalComma: true,
		Anchor:       config.AnchorConfig{Strategy: profile.StrategyDiscount},
		BaseURL:      "https://shop.example",
	}))

	listings, err := h.HarvestMarkup(cannedMarkup, "shop", "trending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("listings = %d, want 2", len(listings))
	}

	first := listings[0]
	if first.Title != "Alpha Strike - PC" {
		t.Errorf("title = %q", first.Title)
	}
	if first.PriceCurrent != 10 {
		t.Errorf("price = %v", first.PriceCurrent)
	}
	if first.DiscountPct != 15 {
		t.Errorf("discount = %v", first.DiscountPct)
	}
	if first.Platform != types.PlatformPC {
		t.Errorf("platform = %v", first.Platform)
	}
	if first.ProductURL != "https://shop.example/en/alpha" {
		t.Errorf("url = %q", first.ProductURL)
	}
}

func TestHarvestMarkupBuiltinProfile(t *testing.T) {
	h := NewHarvester()
	// instantgaming is a discount-anchored profile with EUR prices.
	listings, err := h.HarvestMarkup(cannedMarkup, "instantgaming", "trending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("listings = %d, want 2", len(listings))
	}
}

func TestHarvestMarkupCustomOverridesBuiltin(t *testing.T) {
	// A configured source registered under a bundled profile's name must
	// win over the bundled profile.
	h := NewHarvester(WithSourceConfig(config.SourceConfig{
		Name:         "instantgaming",
		Currency:     "EUR",
		DecimalComma: true,
		Anchor:       config.AnchorConfig{Strategy: profile.StrategyDiscount},
		BaseURL:      "https://custom.example",
	}))

	listings, err := h.HarvestMarkup(cannedMarkup, "instantgaming", "trending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("listings = %d, want 2", len(listings))
	}
	if listings[0].ProductURL != "https://custom.example/en/alpha" {
		t.Errorf("url = %q, want the custom base", listings[0].ProductURL)
	}
}

func TestHarvestMarkupUnsupportedCurrency(t *testing.T) {
	h := NewHarvester(WithSourceConfig(config.SourceConfig{
		Name:     "yenshop",
		Currency: "JPY",
		Anchor:   config.AnchorConfig{Strategy: profile.StrategyDiscount},
	}))

	_, err := h.HarvestMarkup(cannedMarkup, "yenshop", "trending")
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "currency" {
		t.Errorf("field = %q, want currency", cfgErr.Field)
	}
}

func TestHarvestMarkupUnknownSource(t *testing.T) {
	h := NewHarvester()
	if _, err := h.HarvestMarkup(cannedMarkup, "no-such-shop", "trending"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestRunWithSnapshots(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots", "shop", "trending")
	writeFile(t, filepath.Join(snapDir, "page1.html"), cannedMarkup)

	h := NewHarvester(
		WithSourceConfig(config.SourceConfig{
			Name:         "shop",
			Currency:     "EUR",
			DecimalComma: true,
			Anchor:       config.AnchorConfig{Strategy: profile.StrategyDiscount},
			BaseURL:      "https://shop.example",
			Pages: []config.PageConfig{
				{Category: "trending", URL: "https://shop.example/trending"},
			},
		}),
		WithSnapshotDir(filepath.Join(dir, "snapshots")),
		WithOutput("jsonl", filepath.Join(dir, "catalog.jsonl")),
	)

	catalog, report, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("catalog size = %d, want 2", catalog.Len())
	}
	if report.CatalogSize != 2 {
		t.Errorf("report catalog size = %d", report.CatalogSize)
	}
}
