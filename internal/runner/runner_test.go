package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/fetch"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// stubFetcher serves canned markup keyed by source name.
type stubFetcher struct {
	markup map[string]string
}

func (s *stubFetcher) Fetch(ctx context.Context, p *profile.SourceProfile, pc config.PageConfig) ([]fetch.Page, error) {
	m, ok := s.markup[p.Name]
	if !ok {
		return nil, &types.FetchError{URL: pc.URL, Err: errors.New("no canned markup")}
	}
	return []fetch.Page{{URL: pc.URL, Category: pc.Category, Markup: m}}, nil
}

func (s *stubFetcher) Close() error { return nil }
func (s *stubFetcher) Type() string { return "stub" }

func testConfig(sources ...config.SourceConfig) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Harvest.Concurrency = 2
	cfg.Sources = sources
	return cfg
}

func discountSource(name, baseURL string) config.SourceConfig {
	return config.SourceConfig{
		Name:     name,
		Currency: "EUR",
		Anchor:   config.AnchorConfig{Strategy: profile.StrategyDiscount},
		BaseURL:  baseURL,
		Pages: []config.PageConfig{
			{Category: "trending", URL: baseURL + "/trending"},
		},
	}
}

const shopMarkup = `<html><body>
	<a href="/en/alpha"><span>-15%</span><span>Alpha Strike - PC</span><span>€10,00</span></a>
	<a href="/en/beta"><span>-30%</span><span>Beta Protocol - PC</span><span>€7,00</span></a>
	<a href="/en/alpha"><span>-15%</span><span>Alpha Strike - PC</span><span>€10,00</span></a>
</body></html>`

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(discountSource("shop", "https://shop.example"))
	fetcher := &stubFetcher{markup: map[string]string{"shop": shopMarkup}}

	r := New(cfg, fetcher, nil, testLogger)
	catalog, report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.Len() != 2 {
		t.Fatalf("catalog size = %d, want 2", catalog.Len())
	}
	if len(report.Sources) != 1 {
		t.Fatalf("source reports = %d", len(report.Sources))
	}

	sr := report.Sources[0]
	if sr.Pages != 1 || sr.Anchors != 3 {
		t.Errorf("pages=%d anchors=%d", sr.Pages, sr.Anchors)
	}
	// The page-local dedup in the extractor already drops the repeated
	// Alpha Strike card, so the merger sees two unique listings.
	if sr.Extracted != 2 || sr.Normalized != 2 {
		t.Errorf("extracted=%d normalized=%d", sr.Extracted, sr.Normalized)
	}

	titles := map[string]bool{}
	for _, l := range catalog.Listings() {
		titles[l.Title] = true
		if l.NativeCurrency != "EUR" {
			t.Errorf("native currency = %q", l.NativeCurrency)
		}
	}
	if !titles["Alpha Strike - PC"] || !titles["Beta Protocol - PC"] {
		t.Errorf("unexpected titles: %v", titles)
	}
}

func TestRunCrossSourceDedup(t *testing.T) {
	// Both shops resolve listings to the same product URLs; the catalog
	// must keep one copy of each.
	cfg := testConfig(
		discountSource("shop_a", "https://shop.example"),
		discountSource("shop_b", "https://shop.example"),
	)
	fetcher := &stubFetcher{markup: map[string]string{
		"shop_a": shopMarkup,
		"shop_b": shopMarkup,
	}}

	r := New(cfg, fetcher, nil, testLogger)
	catalog, report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.Len() != 2 {
		t.Fatalf("catalog size = %d, want 2", catalog.Len())
	}
	if report.DupCrossSource != 2 {
		t.Errorf("cross-source duplicates = %d, want 2", report.DupCrossSource)
	}
}

func TestRunBadProfileSkipsSourceOnly(t *testing.T) {
	bad := config.SourceConfig{
		Name:     "broken",
		Currency: "EUR",
		Anchor:   config.AnchorConfig{Strategy: "magic"},
		Pages:    []config.PageConfig{{Category: "x", URL: "https://broken.example/x"}},
	}
	cfg := testConfig(bad, discountSource("shop", "https://shop.example"))
	fetcher := &stubFetcher{markup: map[string]string{"shop": shopMarkup}}

	r := New(cfg, fetcher, nil, testLogger)
	catalog, report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.Len() != 2 {
		t.Fatalf("healthy source should still produce, got %d", catalog.Len())
	}

	var brokenReport *SourceReport
	for i := range report.Sources {
		if report.Sources[i].Source == "broken" {
			brokenReport = &report.Sources[i]
		}
	}
	if brokenReport == nil || brokenReport.Err == nil {
		t.Fatal("broken source should carry its profile error")
	}
	var cfgErr *types.ConfigError
	if !errors.As(brokenReport.Err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", brokenReport.Err)
	}
}

func TestRunUnsupportedCurrencyFailsSourceUpFront(t *testing.T) {
	// No rate for JPY in the default table: the source must fail at the
	// profile stage, not reject every listing as a bad price.
	yen := discountSource("yenshop", "https://yen.example")
	yen.Currency = "JPY"
	cfg := testConfig(yen, discountSource("shop", "https://shop.example"))
	fetcher := &stubFetcher{markup: map[string]string{
		"yenshop": shopMarkup,
		"shop":    shopMarkup,
	}}

	r := New(cfg, fetcher, nil, testLogger)
	catalog, report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("healthy source should still produce, got %d", catalog.Len())
	}

	var yenReport *SourceReport
	for i := range report.Sources {
		if report.Sources[i].Source == "yenshop" {
			yenReport = &report.Sources[i]
		}
	}
	if yenReport == nil {
		t.Fatal("missing yenshop report")
	}
	var cfgErr *types.ConfigError
	if !errors.As(yenReport.Err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", yenReport.Err)
	}
	if cfgErr.Field != "currency" {
		t.Errorf("field = %q, want currency", cfgErr.Field)
	}
	if yenReport.Extracted != 0 || yenReport.Rejected[types.RejectBadPrice] != 0 {
		t.Errorf("source ran anyway: extracted=%d rejected=%v", yenReport.Extracted, yenReport.Rejected)
	}
}

func TestRunAllSourcesFailed(t *testing.T) {
	cfg := testConfig(discountSource("shop", "https://shop.example"))
	fetcher := &stubFetcher{markup: map[string]string{
		"shop": "<html><body><p>blocked</p></body></html>",
	}}

	r := New(cfg, fetcher, nil, testLogger)
	catalog, report, err := r.Run(context.Background())

	if !errors.Is(err, types.ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	if catalog.Len() != 0 {
		t.Errorf("catalog size = %d", catalog.Len())
	}
	if report.Sources[0].EmptyPages != 1 {
		t.Errorf("empty pages = %d, want 1", report.Sources[0].EmptyPages)
	}
}

func TestRunRejectionCounts(t *testing.T) {
	// Second card has no resolvable link anywhere, so normalization
	// rejects it for a missing URL.
	markup := `<html><body>
		<a href="/en/good"><span>-10%</span><span>Good Game</span><span>€5,00</span></a>
		<table><tr><td><span>-20%</span></td><td><span>Linkless Game</span></td><td><span>€9,00</span></td></tr></table>
	</body></html>`

	sc := discountSource("shop", "https://shop.example")
	sc.LinkBackSteps = 1
	cfg := testConfig(sc)
	fetcher := &stubFetcher{markup: map[string]string{"shop": markup}}

	r := New(cfg, fetcher, nil, testLogger)
	catalog, report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.Len() != 1 {
		t.Fatalf("catalog size = %d, want 1", catalog.Len())
	}
	sr := report.Sources[0]
	if sr.Rejected[types.RejectMissingURL] != 1 {
		t.Errorf("missing_url rejections = %d, want 1", sr.Rejected[types.RejectMissingURL])
	}
}
