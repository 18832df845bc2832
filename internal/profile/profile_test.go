package profile

import (
	"errors"
	"testing"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/types"
)

func TestCompileDefaults(t *testing.T) {
	p, err := Compile(config.SourceConfig{
		Name:     "shop",
		Currency: "eur",
		Anchor:   config.AnchorConfig{Strategy: StrategyDiscount},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Currency != "EUR" {
		t.Errorf("currency not uppercased: %q", p.Currency)
	}
	if p.Window != DefaultWindow {
		t.Errorf("window = %d, want %d", p.Window, DefaultWindow)
	}
	if p.LinkBackSteps != DefaultLinkBackSteps {
		t.Errorf("link back steps = %d, want %d", p.LinkBackSteps, DefaultLinkBackSteps)
	}
	if !p.DiscountExact.MatchString("-25%") {
		t.Error("default discount pattern should match -25%")
	}
	if p.DiscountExact.MatchString("save -25% today") {
		t.Error("default discount pattern must anchor to the whole text")
	}
	if len(p.PlatformRules) == 0 {
		t.Error("default platform rules should apply")
	}
	if !p.PricePattern.MatchString("€4,99") || !p.PricePattern.MatchString("Free") {
		t.Error("default price pattern should match currency symbols and free")
	}
}

func TestCompileConfigErrors(t *testing.T) {
	cases := []struct {
		name  string
		sc    config.SourceConfig
		field string
	}{
		{
			name:  "missing name",
			sc:    config.SourceConfig{Currency: "EUR"},
			field: "name",
		},
		{
			name:  "missing currency",
			sc:    config.SourceConfig{Name: "x"},
			field: "currency",
		},
		{
			name:  "unknown strategy",
			sc:    config.SourceConfig{Name: "x", Currency: "EUR", Anchor: config.AnchorConfig{Strategy: "magic"}},
			field: "anchor.strategy",
		},
		{
			name:  "keyword strategy without selectors",
			sc:    config.SourceConfig{Name: "x", Currency: "EUR", Anchor: config.AnchorConfig{Strategy: StrategyKeyword}},
			field: "anchor",
		},
		{
			name: "bad discount pattern",
			sc: config.SourceConfig{
				Name: "x", Currency: "EUR",
				Anchor: config.AnchorConfig{Strategy: StrategyDiscount, Pattern: "("},
			},
			field: "anchor.pattern",
		},
		{
			name: "bad xpath",
			sc: config.SourceConfig{
				Name: "x", Currency: "EUR",
				Anchor: config.AnchorConfig{Strategy: StrategyKeyword, XPath: "///["},
			},
			field: "anchor.xpath",
		},
		{
			name: "bad price pattern",
			sc: config.SourceConfig{
				Name: "x", Currency: "EUR",
				Anchor:       config.AnchorConfig{Strategy: StrategyDiscount},
				PricePattern: "[",
			},
			field: "price_pattern",
		},
		{
			name: "unknown platform label",
			sc: config.SourceConfig{
				Name: "x", Currency: "EUR",
				Anchor:          config.AnchorConfig{Strategy: StrategyDiscount},
				DefaultPlatform: "dreamcast",
			},
			field: "default_platform",
		},
		{
			name: "platform rule without needles",
			sc: config.SourceConfig{
				Name: "x", Currency: "EUR",
				Anchor:        config.AnchorConfig{Strategy: StrategyDiscount},
				PlatformRules: []config.KeywordRule{{Label: "pc"}},
			},
			field: "platform_rules",
		},
	}

	for _, tc := range cases {
		_, err := Compile(tc.sc)
		var cfgErr *types.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigError, got %v", tc.name, err)
			continue
		}
		if cfgErr.Field != tc.field {
			t.Errorf("%s: field = %q, want %q", tc.name, cfgErr.Field, tc.field)
		}
	}
}

func TestBuiltinsCompile(t *testing.T) {
	builtins := Builtins()
	if len(builtins) == 0 {
		t.Fatal("no bundled profiles")
	}
	for _, sc := range builtins {
		if _, err := Compile(sc); err != nil {
			t.Errorf("bundled profile %q does not compile: %v", sc.Name, err)
		}
		if len(sc.Pages) == 0 {
			t.Errorf("bundled profile %q has no pages", sc.Name)
		}
	}
}

func TestBuiltinByName(t *testing.T) {
	if _, ok := BuiltinByName("steam"); !ok {
		t.Error("steam profile should be bundled")
	}
	if _, ok := BuiltinByName("nope"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestDefaultPlatformRulesPriority(t *testing.T) {
	rules := DefaultPlatformRules()

	// Console rules must come before the generic PC rule so multi-platform
	// titles resolve to the console.
	pcIndex := -1
	xboxIndex := -1
	for i, r := range rules {
		switch r.Platform {
		case types.PlatformPC:
			pcIndex = i
		case types.PlatformXbox:
			xboxIndex = i
		}
	}
	if xboxIndex == -1 || pcIndex == -1 {
		t.Fatal("expected both Xbox and PC rules")
	}
	if xboxIndex > pcIndex {
		t.Error("Xbox rule must precede the PC rule")
	}
}
