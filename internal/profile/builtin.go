package profile

import (
	"github.com/pricestalk/pricestalk/internal/config"
)

// Builtins returns the bundled storefront configurations. Each entry is pure
// data; adding a storefront means adding an entry here or in the config
// file, not writing code.
func Builtins() []config.SourceConfig {
	return []config.SourceConfig{
		{
			Name:              "steam",
			Storefront:        "Steam",
			Currency:          "USD",
			DefaultStorefront: "Steam",
			Anchor: config.AnchorConfig{
				Strategy: StrategyKeyword,
				XPath:    `//a[contains(@class, 'search_result_row')]`,
			},
			Window:             80,
			ReleaseDatePattern: `^\d{1,2} [A-Z][a-z]{2,8}, \d{4}$`,
			ReleaseDateLayout:  "2 Jan, 2006",
			BaseURL:            "https://store.steampowered.com",
			Pages: []config.PageConfig{
				{Category: "top_sellers", URL: "https://store.steampowered.com/search/?filter=topsellers"},
				{Category: "specials", URL: "https://store.steampowered.com/search/?specials=1"},
				{Category: "new_and_trending", URL: "https://store.steampowered.com/search/?filter=popularnew"},
			},
		},
		{
			Name:              "xbox",
			Storefront:        "Microsoft Store",
			Currency:          "USD",
			DefaultPlatform:   "Xbox",
			DefaultStorefront: "Microsoft Store",
			Anchor: config.AnchorConfig{
				Strategy:     StrategyKeyword,
				HrefContains: "/games/store/",
			},
			PricePattern: `([€$£])\s?\d[\d.,]*|(?i:free\+?)`,
			StopWords:    []string{"add to cart", "buy", "get"},
			BaseURL:      "https://www.xbox.com",
			Pages: []config.PageConfig{
				{Category: "all_games", URL: "https://www.xbox.com/en-US/games/browse"},
			},
		},
		{
			Name:         "instantgaming",
			Storefront:   "Instant Gaming",
			Currency:     "EUR",
			DecimalComma: true,
			Anchor: config.AnchorConfig{
				Strategy: StrategyDiscount,
			},
			TitleHintPattern: ` - PC`,
			LinkBackSteps:    40,
			BaseURL:          "https://www.instant-gaming.com",
			Pages: []config.PageConfig{
				{Category: "trending", URL: "https://www.instant-gaming.com/en/pc/trending/"},
			},
		},
		{
			Name:              "gog",
			Storefront:        "GOG.com",
			Currency:          "USD",
			DefaultStorefront: "GOG.com",
			Anchor: config.AnchorConfig{
				Strategy:     StrategyKeyword,
				HrefContains: "/game/",
			},
			StopWords: []string{"add to cart", "wishlist it"},
			BaseURL:   "https://www.gog.com",
			Pages: []config.PageConfig{
				{Category: "games", URL: "https://www.gog.com/games"},
			},
		},
		{
			Name:              "loaded",
			Storefront:        "Loaded/CDKeys",
			Currency:          "GBP",
			DefaultStorefront: "Loaded/CDKeys",
			Anchor: config.AnchorConfig{
				Strategy: StrategyKeyword,
				Keywords: []string{"xbox", "ps5", "ps4", "playstation", "switch", "pc", "steam"},
			},
			StopWords: []string{"add", "buy", "notify"},
			BaseURL:   "https://www.cdkeys.com",
			Pages: []config.PageConfig{
				{Category: "latest_games", URL: "https://www.cdkeys.com/latest-games"},
			},
		},
		{
			Name:              "epicgames",
			Storefront:        "Epic Games Store",
			Currency:          "INR",
			DefaultStorefront: "Epic Games Store",
			Anchor: config.AnchorConfig{
				Strategy: StrategyDiscount,
			},
			BaseURL: "https://store.epicgames.com",
			Pages: []config.PageConfig{
				{Category: "browse", URL: "https://store.epicgames.com/en-US/browse"},
			},
		},
	}
}

// BuiltinByName returns the bundled configuration for a source name.
func BuiltinByName(name string) (config.SourceConfig, bool) {
	for _, sc := range Builtins() {
		if sc.Name == name {
			return sc, true
		}
	}
	return config.SourceConfig{}, false
}
