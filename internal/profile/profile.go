// Package profile compiles declarative source configuration into the
// patterns and tables that drive extraction and normalization. A compile
// failure is fatal for that source only.
package profile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xpath"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/types"
)

// Anchor strategies.
const (
	StrategyDiscount = "discount"
	StrategyKeyword  = "keyword"
)

// Defaults applied when a source omits the corresponding field.
const (
	DefaultWindow        = 150
	DefaultLinkBackSteps = 40
)

var (
	defaultDiscountPattern = regexp.MustCompile(`^-\d+%$`)
	discountAnyPattern     = regexp.MustCompile(`-\d+%`)
	defaultPricePattern    = regexp.MustCompile(`(\$|€|£|R\$|zł|kr|₪|₺|руб|PLN|BRL)|(?i:\bfree\b)`)
)

// PlatformRule maps case-insensitive title substrings to a platform.
type PlatformRule struct {
	Platform types.Platform
	Needles  []string
}

// SourceProfile is an immutable, compiled per-storefront configuration.
type SourceProfile struct {
	Name       string
	Storefront string
	Currency   string
	Category   string

	DecimalComma bool

	Strategy        string
	DiscountExact   *regexp.Regexp // full-text anchor match
	DiscountAny     *regexp.Regexp // loose match for skip/boundary checks
	AnchorKeywords  []string       // lowercased
	HrefContains    string
	AnchorXPath     string
	PricePattern    *regexp.Regexp
	TitleHint       *regexp.Regexp
	ReleaseDateRe   *regexp.Regexp
	ReleaseLayout   string
	StopWords       []string // lowercased action vocabulary
	Window          int
	LinkBackSteps   int
	BaseURL         string
	PreorderPrefix  []string // lowercased
	PlatformRules   []PlatformRule
	DefaultPlatform types.Platform
	DefaultStore    string

	Pages []config.PageConfig
}

// Compile validates a SourceConfig and builds the runtime profile.
// All errors are *types.ConfigError, fatal for this source only.
func Compile(sc config.SourceConfig) (*SourceProfile, error) {
	if sc.Name == "" {
		return nil, &types.ConfigError{Source: "(unnamed)", Field: "name", Err: fmt.Errorf("source name is required")}
	}
	if sc.Currency == "" {
		return nil, &types.ConfigError{Source: sc.Name, Field: "currency", Err: fmt.Errorf("native currency is required")}
	}

	p := &SourceProfile{
		Name:          sc.Name,
		Storefront:    sc.Storefront,
		Currency:      strings.ToUpper(sc.Currency),
		DecimalComma:  sc.DecimalComma,
		Strategy:      sc.Anchor.Strategy,
		HrefContains:  sc.Anchor.HrefContains,
		AnchorXPath:   sc.Anchor.XPath,
		ReleaseLayout: sc.ReleaseDateLayout,
		Window:        sc.Window,
		LinkBackSteps: sc.LinkBackSteps,
		BaseURL:       sc.BaseURL,
		DefaultStore:  sc.DefaultStorefront,
		Pages:         sc.Pages,
	}

	switch sc.Anchor.Strategy {
	case StrategyDiscount:
		p.DiscountExact = defaultDiscountPattern
		if sc.Anchor.Pattern != "" {
			re, err := regexp.Compile(sc.Anchor.Pattern)
			if err != nil {
				return nil, &types.ConfigError{Source: sc.Name, Field: "anchor.pattern", Err: err}
			}
			p.DiscountExact = re
		}
	case StrategyKeyword:
		if len(sc.Anchor.Keywords) == 0 && sc.Anchor.HrefContains == "" && sc.Anchor.XPath == "" {
			return nil, &types.ConfigError{
				Source: sc.Name, Field: "anchor",
				Err: fmt.Errorf("keyword strategy needs keywords, href_contains, or xpath"),
			}
		}
		for _, kw := range sc.Anchor.Keywords {
			p.AnchorKeywords = append(p.AnchorKeywords, strings.ToLower(kw))
		}
	default:
		return nil, &types.ConfigError{
			Source: sc.Name, Field: "anchor.strategy",
			Err: fmt.Errorf("unknown strategy %q (want %q or %q)", sc.Anchor.Strategy, StrategyDiscount, StrategyKeyword),
		}
	}
	p.DiscountAny = discountAnyPattern

	if sc.Anchor.XPath != "" {
		if _, err := xpath.Compile(sc.Anchor.XPath); err != nil {
			return nil, &types.ConfigError{Source: sc.Name, Field: "anchor.xpath", Err: err}
		}
	}

	p.PricePattern = defaultPricePattern
	if sc.PricePattern != "" {
		re, err := regexp.Compile(sc.PricePattern)
		if err != nil {
			return nil, &types.ConfigError{Source: sc.Name, Field: "price_pattern", Err: err}
		}
		p.PricePattern = re
	}

	if sc.TitleHintPattern != "" {
		re, err := regexp.Compile(sc.TitleHintPattern)
		if err != nil {
			return nil, &types.ConfigError{Source: sc.Name, Field: "title_hint_pattern", Err: err}
		}
		p.TitleHint = re
	}

	if sc.ReleaseDatePattern != "" {
		re, err := regexp.Compile(sc.ReleaseDatePattern)
		if err != nil {
			return nil, &types.ConfigError{Source: sc.Name, Field: "release_date_pattern", Err: err}
		}
		p.ReleaseDateRe = re
	}

	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.LinkBackSteps <= 0 {
		p.LinkBackSteps = DefaultLinkBackSteps
	}

	for _, w := range sc.StopWords {
		p.StopWords = append(p.StopWords, strings.ToLower(strings.TrimSpace(w)))
	}

	if len(sc.PreorderPrefixes) > 0 {
		for _, pre := range sc.PreorderPrefixes {
			p.PreorderPrefix = append(p.PreorderPrefix, strings.ToLower(pre))
		}
	} else {
		p.PreorderPrefix = []string{"pre-order", "preorder", "pre order"}
	}

	if sc.DefaultPlatform != "" {
		plat, err := parsePlatform(sc.DefaultPlatform)
		if err != nil {
			return nil, &types.ConfigError{Source: sc.Name, Field: "default_platform", Err: err}
		}
		p.DefaultPlatform = plat
	}

	rules := sc.PlatformRules
	if len(rules) == 0 && p.DefaultPlatform == "" {
		p.PlatformRules = DefaultPlatformRules()
	} else {
		for _, r := range rules {
			plat, err := parsePlatform(r.Label)
			if err != nil {
				return nil, &types.ConfigError{Source: sc.Name, Field: "platform_rules", Err: err}
			}
			if len(r.Needles) == 0 {
				return nil, &types.ConfigError{
					Source: sc.Name, Field: "platform_rules",
					Err: fmt.Errorf("rule for %q has no needles", r.Label),
				}
			}
			needles := make([]string, len(r.Needles))
			for i, n := range r.Needles {
				needles[i] = strings.ToLower(n)
			}
			p.PlatformRules = append(p.PlatformRules, PlatformRule{Platform: plat, Needles: needles})
		}
	}

	return p, nil
}

// DefaultPlatformRules returns the shared priority-ordered keyword table.
// Console tokens come before the generic PC substrings so that a title like
// "Xbox Series X|S, PC" resolves to Xbox.
func DefaultPlatformRules() []PlatformRule {
	return []PlatformRule{
		{Platform: types.PlatformXbox, Needles: []string{"xbox series x|s", "xbox one", "xbox 360", "xbox"}},
		{Platform: types.PlatformPlayStation, Needles: []string{"playstation 5", "playstation 4", "ps5", "ps4", "ps3", "ps vita", "ps vr", "playstation"}},
		{Platform: types.PlatformSwitch, Needles: []string{"nintendo switch", "switch", "nintendo"}},
		{Platform: types.PlatformMac, Needles: []string{"macos", "mac os", "mac"}},
		{Platform: types.PlatformLinux, Needles: []string{"steamos", "linux"}},
		{Platform: types.PlatformMobile, Needles: []string{"android", "iphone", "ipad", "ios"}},
		{Platform: types.PlatformPC, Needles: []string{"windows", " pc ", "- pc", "pc -", "(pc", "steam"}},
	}
}

func parsePlatform(label string) (types.Platform, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pc":
		return types.PlatformPC, nil
	case "playstation", "ps":
		return types.PlatformPlayStation, nil
	case "xbox":
		return types.PlatformXbox, nil
	case "switch", "nintendo switch":
		return types.PlatformSwitch, nil
	case "mac", "macos":
		return types.PlatformMac, nil
	case "linux":
		return types.PlatformLinux, nil
	case "mobile":
		return types.PlatformMobile, nil
	case "unknown":
		return types.PlatformUnknown, nil
	case "other":
		return types.PlatformOther, nil
	default:
		return "", fmt.Errorf("unknown platform label %q", label)
	}
}
