package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for PriceStalk.
type Config struct {
	Harvest HarvestConfig  `mapstructure:"harvest" yaml:"harvest"`
	Fetcher FetcherConfig  `mapstructure:"fetcher" yaml:"fetcher"`
	Rates   RatesConfig    `mapstructure:"rates"   yaml:"rates"`
	Sources []SourceConfig `mapstructure:"sources" yaml:"sources"`
	Storage StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// HarvestConfig controls the batch run.
type HarvestConfig struct {
	// Concurrency is the number of sources processed in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// MaxItems caps extracted listings per source (0 = unlimited).
	MaxItems int `mapstructure:"max_items" yaml:"max_items"`
}

// FetcherConfig controls where page markup comes from.
type FetcherConfig struct {
	// Type selects the fetcher: "file" reads saved page snapshots,
	// "browser" drives a headless browser.
	Type string `mapstructure:"type" yaml:"type"`

	// SnapshotDir is the root directory of saved markup for the file
	// fetcher, laid out as <dir>/<source>/<category>/<page>.html[.gz|.br].
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout"      yaml:"request_timeout"`
	ScrollSteps       int           `mapstructure:"scroll_steps"         yaml:"scroll_steps"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"         yaml:"scroll_pause"`
	MaxShowMoreClicks int           `mapstructure:"max_show_more_clicks" yaml:"max_show_more_clicks"`
	MaxPages          int           `mapstructure:"max_pages"            yaml:"max_pages"`
	WindowSize        string        `mapstructure:"window_size"          yaml:"window_size"`
	Stealth           bool          `mapstructure:"stealth"              yaml:"stealth"`
}

// RatesConfig fixes the static currency conversion table. The engine never
// fetches live rates; refreshing this table is the operator's job.
type RatesConfig struct {
	// Reference is the currency all canonical prices are expressed in.
	Reference string `mapstructure:"reference" yaml:"reference"`

	// Alt is the secondary display currency.
	Alt string `mapstructure:"alt" yaml:"alt"`

	// ToReference maps a currency code to how many reference units one
	// unit of it is worth. The reference currency maps to 1.
	ToReference map[string]float64 `mapstructure:"to_reference" yaml:"to_reference"`

	// AltPerReference converts a reference amount to the Alt currency.
	AltPerReference float64 `mapstructure:"alt_per_reference" yaml:"alt_per_reference"`
}

// SourceConfig declaratively describes one storefront. Site-specific
// behavior is data here, not forked control flow.
type SourceConfig struct {
	Name       string `mapstructure:"name"       yaml:"name"`
	Storefront string `mapstructure:"storefront" yaml:"storefront"`

	// Currency is the native currency of this storefront's prices.
	Currency string `mapstructure:"currency" yaml:"currency"`

	// DecimalComma resolves a lone separator's role: true means a single
	// comma is the decimal mark (European convention).
	DecimalComma bool `mapstructure:"decimal_comma" yaml:"decimal_comma"`

	Anchor AnchorConfig `mapstructure:"anchor" yaml:"anchor"`

	// StopWords is the action vocabulary ("Add", "Buy", "Notify") that
	// always trails a listing's price and so bounds the forward walk.
	StopWords []string `mapstructure:"stop_words" yaml:"stop_words"`

	// Window is the maximum number of nodes walked forward per anchor.
	Window int `mapstructure:"window" yaml:"window"`

	// PricePattern matches currency-like text during the walk.
	PricePattern string `mapstructure:"price_pattern" yaml:"price_pattern"`

	// TitleHintPattern enables the no-discount second pass: text nodes
	// matching it are treated as titles of listings the anchor pass missed.
	TitleHintPattern string `mapstructure:"title_hint_pattern" yaml:"title_hint_pattern"`

	// ReleaseDatePattern captures a release-date string during the walk.
	ReleaseDatePattern string `mapstructure:"release_date_pattern" yaml:"release_date_pattern"`

	// ReleaseDateLayout parses captured release dates (Go time layout).
	ReleaseDateLayout string `mapstructure:"release_date_layout" yaml:"release_date_layout"`

	PreorderPrefixes []string `mapstructure:"preorder_prefixes" yaml:"preorder_prefixes"`

	// PlatformRules is the priority-ordered platform keyword table.
	// Explicit console tokens must precede generic substring checks.
	PlatformRules []KeywordRule `mapstructure:"platform_rules" yaml:"platform_rules"`

	// DefaultPlatform fixes the platform for single-platform storefronts.
	DefaultPlatform string `mapstructure:"default_platform" yaml:"default_platform"`

	// DefaultStorefront fixes the storefront label; when empty, a trailing
	// parenthetical in the title is used instead.
	DefaultStorefront string `mapstructure:"default_storefront" yaml:"default_storefront"`

	// LinkBackSteps bounds the backward/ancestor search for a product link
	// when the anchor itself carries none.
	LinkBackSteps int `mapstructure:"link_back_steps" yaml:"link_back_steps"`

	// BaseURL resolves relative product links.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Pages lists the catalog pages to fetch, each with a category tag.
	Pages []PageConfig `mapstructure:"pages" yaml:"pages"`
}

// AnchorConfig selects and parameterizes the anchor strategy.
type AnchorConfig struct {
	// Strategy is "discount" (badge text like "-25%") or "keyword"
	// (platform/storefront keyword or href substring).
	Strategy string `mapstructure:"strategy" yaml:"strategy"`

	// Pattern overrides the discount badge regexp.
	Pattern string `mapstructure:"pattern" yaml:"pattern"`

	// Keywords anchor on nodes whose own text contains one of these.
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`

	// HrefContains anchors on links whose href contains this substring.
	HrefContains string `mapstructure:"href_contains" yaml:"href_contains"`

	// XPath anchors on nodes matched by this expression, when set.
	XPath string `mapstructure:"xpath" yaml:"xpath"`
}

// KeywordRule maps any of its needles (case-insensitive substrings) to a
// label. Rules are evaluated in order; first match wins.
type KeywordRule struct {
	Label   string   `mapstructure:"label"   yaml:"label"`
	Needles []string `mapstructure:"needles" yaml:"needles"`
}

// PageConfig is one catalog page of a source.
type PageConfig struct {
	Category string `mapstructure:"category" yaml:"category"`
	URL      string `mapstructure:"url"      yaml:"url"`
}

// StorageConfig controls catalog output.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`

	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults. The rate constants
// match the static table the cleaners were originally built around.
func DefaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			Concurrency: 4,
			MaxItems:    0,
		},
		Fetcher: FetcherConfig{
			Type:              "file",
			SnapshotDir:       "./snapshots",
			RequestTimeout:    30 * time.Second,
			ScrollSteps:       6,
			ScrollPause:       1 * time.Second,
			MaxShowMoreClicks: 80,
			MaxPages:          50,
			WindowSize:        "1920,1080",
			Stealth:           true,
		},
		Rates: RatesConfig{
			Reference: "EUR",
			Alt:       "USD",
			ToReference: map[string]float64{
				"EUR": 1.0,
				"USD": 1.0 / 1.08,
				"GBP": 1.17,
				"INR": 0.012 / 1.08,
			},
			AltPerReference: 1.08,
		},
		Storage: StorageConfig{
			Type:       "csv",
			OutputPath: "./output/catalog.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
