package extract

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func discountProfile(t *testing.T) *profile.SourceProfile {
	t.Helper()
	p, err := profile.Compile(config.SourceConfig{
		Name:     "shop",
		Currency: "EUR",
		Anchor:   config.AnchorConfig{Strategy: profile.StrategyDiscount},
		BaseURL:  "https://shop.example",
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}
	return p
}

func TestExtractTwoAdjacentListings(t *testing.T) {
	markup := `<html><body>
		<a href="/en/game-alpha"><span>-15%</span><span>Game Alpha</span><span>$10.00</span></a>
		<a href="/en/game-beta"><span>-30%</span><span>Game Beta</span><span>$7.00</span></a>
	</body></html>`

	e := New(testLogger)
	res, err := e.Extract(markup, discountProfile(t), "trending", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Anchors != 2 {
		t.Fatalf("expected 2 anchors, got %d", res.Anchors)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(res.Listings))
	}

	first := res.Listings[0]
	if first.Title != "Game Alpha" {
		t.Errorf("first title = %q", first.Title)
	}
	if first.PriceText != "$10.00" {
		t.Errorf("first price = %q", first.PriceText)
	}
	if first.DiscountText != "-15%" {
		t.Errorf("first discount = %q", first.DiscountText)
	}
	if first.URL != "https://shop.example/en/game-alpha" {
		t.Errorf("first url = %q", first.URL)
	}

	// The walk from the first anchor must stop at the second anchor:
	// Game Beta's price may never attach to Game Alpha.
	second := res.Listings[1]
	if second.Title != "Game Beta" || second.PriceText != "$7.00" {
		t.Errorf("second listing mispaired: title=%q price=%q", second.Title, second.PriceText)
	}
}

func TestExtractStopWordBoundsWalk(t *testing.T) {
	// The stop word sits between the title and the next listing's price.
	// Walking past it would steal the neighbour's price.
	markup := `<html><body>
		<div><span>-50%</span><span>Broken Deal</span><button>Add</button></div>
		<div><span>Other Game</span><span>$19.99</span></div>
	</body></html>`

	p, err := profile.Compile(config.SourceConfig{
		Name:      "shop",
		Currency:  "EUR",
		Anchor:    config.AnchorConfig{Strategy: profile.StrategyDiscount},
		StopWords: []string{"add"},
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}

	e := New(testLogger)
	res, err := e.Extract(markup, p, "trending", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 0 {
		t.Fatalf("expected no listings, got %d (%+v)", len(res.Listings), res.Listings)
	}
	if res.Missed != 1 {
		t.Errorf("expected 1 missed anchor, got %d", res.Missed)
	}
}

func TestExtractHrefAnchorPriceBeforeLink(t *testing.T) {
	// Some card layouts render the price ahead of the product link; the
	// backward scan must recover it without crossing into the previous
	// card, whose action button bounds the scan.
	markup := `<html><body>
		<div><span>$59.99</span><a href="/games/store/halo">Halo Infinite</a><button>Add to cart</button></div>
		<div><span>$39.99</span><a href="/games/store/forza">Forza Horizon</a><button>Add to cart</button></div>
	</body></html>`

	p, err := profile.Compile(config.SourceConfig{
		Name:     "xboxlike",
		Currency: "USD",
		Anchor: config.AnchorConfig{
			Strategy:     profile.StrategyKeyword,
			HrefContains: "/games/store/",
		},
		StopWords: []string{"add to cart"},
		BaseURL:   "https://store.example",
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}

	e := New(testLogger)
	res, err := e.Extract(markup, p, "all_games", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d (missed %d)", len(res.Listings), res.Missed)
	}

	first := res.Listings[0]
	if first.Title != "Halo Infinite" || first.PriceText != "$59.99" {
		t.Errorf("first listing mispaired: title=%q price=%q", first.Title, first.PriceText)
	}
	second := res.Listings[1]
	if second.Title != "Forza Horizon" || second.PriceText != "$39.99" {
		t.Errorf("second listing mispaired: title=%q price=%q", second.Title, second.PriceText)
	}
	if first.URL != "https://store.example/games/store/halo" {
		t.Errorf("first url = %q", first.URL)
	}
}

func TestExtractHrefAnchor(t *testing.T) {
	markup := `<html><body>
		<a href="https://store.example/games/store/halo"><h3>Halo Infinite</h3><span>$59.99</span></a>
		<a href="https://store.example/support">Support</a>
	</body></html>`

	p, err := profile.Compile(config.SourceConfig{
		Name:     "xboxlike",
		Currency: "USD",
		Anchor: config.AnchorConfig{
			Strategy:     profile.StrategyKeyword,
			HrefContains: "/games/store/",
		},
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}

	e := New(testLogger)
	res, err := e.Extract(markup, p, "all_games", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(res.Listings))
	}
	l := res.Listings[0]
	if l.Title != "Halo Infinite" {
		t.Errorf("title = %q", l.Title)
	}
	if l.URL != "https://store.example/games/store/halo" {
		t.Errorf("url = %q", l.URL)
	}
}

func TestExtractKeywordAnchorTokenBoundary(t *testing.T) {
	// "Spectre" contains "pc" as a substring but not as a token; only the
	// real listing may anchor.
	markup := `<html><body>
		<div><h3>Ghost Game (PC)</h3><span>£4.99</span></div>
		<p>Spectre is a word, not a listing</p>
	</body></html>`

	p, err := profile.Compile(config.SourceConfig{
		Name:     "keys",
		Currency: "GBP",
		Anchor: config.AnchorConfig{
			Strategy: profile.StrategyKeyword,
			Keywords: []string{"pc"},
		},
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}

	e := New(testLogger)
	res, err := e.Extract(markup, p, "latest", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Anchors != 1 {
		t.Fatalf("expected 1 anchor, got %d", res.Anchors)
	}
	if len(res.Listings) != 1 || res.Listings[0].Title != "Ghost Game (PC)" {
		t.Fatalf("unexpected listings: %+v", res.Listings)
	}
}

func TestExtractEmptyPage(t *testing.T) {
	e := New(testLogger)
	_, err := e.Extract("<html><body><p>maintenance</p></body></html>", discountProfile(t), "trending", 0)

	var emptyErr *types.EmptyPageError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyPageError, got %v", err)
	}
	if !errors.Is(err, types.ErrNoAnchors) {
		t.Error("EmptyPageError should unwrap to ErrNoAnchors")
	}
}

func TestExtractBlankMarkup(t *testing.T) {
	e := New(testLogger)
	_, err := e.Extract("   ", discountProfile(t), "trending", 0)

	var exErr *types.ExtractError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExtractError, got %v", err)
	}
	if !errors.Is(err, types.ErrEmptyMarkup) {
		t.Error("ExtractError should unwrap to ErrEmptyMarkup")
	}
}

func TestExtractPricelessAnchorIsMissedNotFatal(t *testing.T) {
	markup := `<html><body>
		<div><span>-20%</span><span>No Price Here</span></div>
		<div><span>-10%</span><span>Real Game</span><span>€5.00</span></div>
	</body></html>`

	e := New(testLogger)
	res, err := e.Extract(markup, discountProfile(t), "trending", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Missed != 1 {
		t.Errorf("missed = %d, want 1", res.Missed)
	}
	if len(res.Listings) != 1 || res.Listings[0].Title != "Real Game" {
		t.Fatalf("unexpected listings: %+v", res.Listings)
	}
}

func TestExtractTitleHintSecondPass(t *testing.T) {
	// Full-price listings have no discount badge; the hint pass picks them
	// up by title shape and recovers the nearest preceding link.
	markup := `<html><body>
		<div><span>-25%</span><span>Discounted Game - PC</span><span>€7.49</span></div>
		<a href="/en/full-price-game"><img src="x.jpg"></a>
		<div><span>Full Price Game - PC</span><span>€49.99</span></div>
	</body></html>`

	p, err := profile.Compile(config.SourceConfig{
		Name:             "shop",
		Currency:         "EUR",
		Anchor:           config.AnchorConfig{Strategy: profile.StrategyDiscount},
		TitleHintPattern: ` - PC`,
		BaseURL:          "https://shop.example",
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}

	e := New(testLogger)
	res, err := e.Extract(markup, p, "trending", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d: %+v", len(res.Listings), res.Listings)
	}

	hinted := res.Listings[1]
	if hinted.Title != "Full Price Game - PC" {
		t.Errorf("hinted title = %q", hinted.Title)
	}
	if hinted.PriceText != "€49.99" {
		t.Errorf("hinted price = %q", hinted.PriceText)
	}
	if hinted.URL != "https://shop.example/en/full-price-game" {
		t.Errorf("hinted url = %q", hinted.URL)
	}
}

func TestExtractMaxItems(t *testing.T) {
	markup := `<html><body>
		<a href="/a"><span>-10%</span><span>A</span><span>$1.00</span></a>
		<a href="/b"><span>-10%</span><span>B</span><span>$2.00</span></a>
		<a href="/c"><span>-10%</span><span>C</span><span>$3.00</span></a>
	</body></html>`

	e := New(testLogger)
	res, err := e.Extract(markup, discountProfile(t), "trending", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings with cap, got %d", len(res.Listings))
	}
}

func TestExtractReleaseDateAndPreorder(t *testing.T) {
	markup := `<html><body>
		<div>
			<span>-10%</span>
			<span>Future Game</span>
			<span>Pre-order now</span>
			<span>12 Dec, 2099</span>
			<span>$49.99</span>
		</div>
	</body></html>`

	p, err := profile.Compile(config.SourceConfig{
		Name:               "shop",
		Currency:           "USD",
		Anchor:             config.AnchorConfig{Strategy: profile.StrategyDiscount},
		ReleaseDatePattern: `^\d{1,2} [A-Z][a-z]{2,8}, \d{4}$`,
	})
	if err != nil {
		t.Fatalf("compile profile: %v", err)
	}

	e := New(testLogger)
	res, err := e.Extract(markup, p, "coming_soon", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(res.Listings))
	}
	l := res.Listings[0]
	if l.PreorderText != "Pre-order now" {
		t.Errorf("preorder text = %q", l.PreorderText)
	}
	if l.ReleaseDateText != "12 Dec, 2099" {
		t.Errorf("release date text = %q", l.ReleaseDateText)
	}
}

func TestExtractBackwardLinkSearch(t *testing.T) {
	// The badge is not inside a link; the product link precedes it.
	markup := `<html><body>
		<a href="/en/orphan-game"><img src="cover.jpg"></a>
		<div><span>-40%</span><span>Orphan Game</span><span>€3.00</span></div>
	</body></html>`

	e := New(testLogger)
	res, err := e.Extract(markup, discountProfile(t), "trending", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(res.Listings))
	}
	if got := res.Listings[0].URL; got != "https://shop.example/en/orphan-game" {
		t.Errorf("url = %q", got)
	}
}

func TestMetaTitle(t *testing.T) {
	meta := Meta(`<html><head><title>  Access   Denied </title><link rel="canonical" href="https://x.example/page"></head><body></body></html>`)
	if meta.Title != "Access Denied" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.Canonical != "https://x.example/page" {
		t.Errorf("canonical = %q", meta.Canonical)
	}
}
