package types

import (
	"encoding/json"
	"time"
)

// Platform is the normalized hardware/OS family a listing targets.
type Platform string

const (
	PlatformPC          Platform = "PC"
	PlatformPlayStation Platform = "PlayStation"
	PlatformXbox        Platform = "Xbox"
	PlatformSwitch      Platform = "Nintendo Switch"
	PlatformMac         Platform = "Mac"
	PlatformLinux       Platform = "Linux"
	PlatformMobile      Platform = "Mobile"
	PlatformUnknown     Platform = "Unknown"
	PlatformOther       Platform = "Other"
)

// RawListing is one listing block as extracted from page markup, before any
// normalization. It lives only for the duration of one page's processing and
// is never persisted.
type RawListing struct {
	// Source identifies the storefront profile that produced this listing.
	Source string

	// Category is the page-set tag (e.g. "top_sellers", "trending").
	Category string

	// Title is the candidate title text. May be empty or noisy.
	Title string

	// PriceText is the raw price string as it appeared in the markup.
	PriceText string

	// DiscountText is the raw discount badge text ("-25%"), if any.
	DiscountText string

	// PreorderText is a raw pre-order marker line, if any.
	PreorderText string

	// ReleaseDateText is a raw release-date string, if any.
	ReleaseDateText string

	// PlatformText is a structured platform field, for sources that expose
	// one separately from the title.
	PlatformText string

	// URL is the resolved product URL.
	URL string
}

// CanonicalListing is the final comparable record produced by normalization.
// All price fields are expressed in the batch reference currency, rounded to
// two decimals at the conversion step.
type CanonicalListing struct {
	Source     string   `json:"source"      bson:"source"`
	Title      string   `json:"title"       bson:"title"`
	Platform   Platform `json:"platform"    bson:"platform"`
	Storefront string   `json:"storefront"  bson:"storefront"`
	IsPreorder bool     `json:"is_preorder" bson:"is_preorder"`

	// PriceCurrent is the current (possibly discounted) price in the
	// reference currency. Always >= 0.
	PriceCurrent float64 `json:"price_current" bson:"price_current"`

	// PriceAlt is the current price in the secondary display currency.
	PriceAlt float64 `json:"price_alt" bson:"price_alt"`

	// PriceOriginal is the pre-discount price in the reference currency.
	// Invariant: PriceCurrent <= PriceOriginal, equal iff DiscountPct == 0.
	PriceOriginal float64 `json:"price_original" bson:"price_original"`

	// DiscountPct is the discount percentage in [0, 100].
	DiscountPct float64 `json:"discount_pct" bson:"discount_pct"`

	// NativeCurrency is the currency the price was originally quoted in.
	NativeCurrency string `json:"native_currency" bson:"native_currency"`

	// ProductURL is the canonicalized product URL. Unique within a Catalog.
	ProductURL string `json:"product_url" bson:"product_url"`

	Category    string    `json:"category,omitempty"     bson:"category,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty" bson:"release_date,omitempty"`
	ObservedAt  time.Time `json:"observed_at"            bson:"observed_at"`
}

// ToJSON serializes the listing to JSON bytes.
func (l *CanonicalListing) ToJSON() ([]byte, error) {
	return json.Marshal(l)
}

// Catalog is an ordered, deduplicated collection of canonical listings.
// Insertion order is stable; the merger guarantees URL uniqueness.
type Catalog struct {
	listings []*CanonicalListing
}

// Add appends a listing. Uniqueness is the caller's (merger's) contract.
func (c *Catalog) Add(l *CanonicalListing) {
	c.listings = append(c.listings, l)
}

// Len returns the number of listings.
func (c *Catalog) Len() int { return len(c.listings) }

// Listings returns the listings in first-occurrence order.
func (c *Catalog) Listings() []*CanonicalListing { return c.listings }
