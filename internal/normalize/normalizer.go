// Package normalize turns raw listing text into canonical, comparable
// records: locale-ambiguous price strings become reference-currency numbers,
// discounts become percentages, and platform/storefront/preorder flags are
// inferred from keyword tables.
package normalize

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

var (
	priceCleanRe   = regexp.MustCompile(`[^\d,.\-]`)
	discountIntRe  = regexp.MustCompile(`-?\d+`)
	freeRe         = regexp.MustCompile(`(?i)\bfree\b`)
	storefrontRe   = regexp.MustCompile(`\(([^)]+)\)\s*$`)
	preorderTokens = []string{"pre-order", "preorder", "pre order"}
	comingTokens   = []string{"coming soon", "tba", "to be announced"}
)

// Normalizer converts RawListings into CanonicalListings. It is a pure
// transformation: the observation timestamp is fixed at construction, so the
// same input always yields an identical output within a batch.
type Normalizer struct {
	rates  *RateTable
	now    time.Time
	logger *slog.Logger
}

// New creates a Normalizer with the batch observation time set to now.
func New(rates *RateTable, logger *slog.Logger) *Normalizer {
	return NewAt(rates, time.Now().UTC(), logger)
}

// NewAt creates a Normalizer with an explicit batch observation time.
func NewAt(rates *RateTable, now time.Time, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		rates:  rates,
		now:    now,
		logger: logger.With("component", "normalizer"),
	}
}

// Normalize converts one raw listing. On failure it returns a
// *types.Rejection; rejections are counted by the caller, never fatal.
func (n *Normalizer) Normalize(raw types.RawListing, p *profile.SourceProfile) (*types.CanonicalListing, error) {
	if strings.TrimSpace(raw.URL) == "" {
		return nil, &types.Rejection{Reason: types.RejectMissingURL, Source: raw.Source}
	}

	priceNative, err := ParsePrice(raw.PriceText, p.DecimalComma)
	if err != nil {
		return nil, &types.Rejection{Reason: types.RejectBadPrice, Source: raw.Source, Value: raw.PriceText}
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		// Fall back to a title derived from the URL slug before giving up.
		title = titleFromURL(raw.URL)
		if title == "" {
			return nil, &types.Rejection{Reason: types.RejectMissingTitle, Source: raw.Source, Value: raw.URL}
		}
		n.logger.Debug("title recovered from url slug", "source", raw.Source, "title", title)
	}

	discountPct := ParseDiscount(raw.DiscountText)
	originalNative := ReconstructOriginal(priceNative, discountPct)

	priceRef, err := n.rates.ToReference(priceNative, p.Currency)
	if err != nil {
		// Callers check the currency before the run starts; this is the
		// per-listing backstop for direct use.
		return nil, &types.Rejection{Reason: types.RejectBadPrice, Source: raw.Source, Value: p.Currency}
	}
	originalRef, _ := n.rates.ToReference(originalNative, p.Currency)

	// Round only here, at the conversion step.
	priceRef = round2(priceRef)
	originalRef = round2(originalRef)

	// The discount and the reconstructed original must stay consistent
	// after rounding: equal prices mean no discount.
	if originalRef <= priceRef {
		originalRef = priceRef
		discountPct = 0
	}

	listing := &types.CanonicalListing{
		Source:         raw.Source,
		Title:          title,
		Storefront:     n.inferStorefront(title, p),
		Platform:       n.inferPlatform(raw, title, p),
		IsPreorder:     n.inferPreorder(raw, title, p),
		PriceCurrent:   priceRef,
		PriceAlt:       round2(n.rates.ToAlt(priceRef)),
		PriceOriginal:  originalRef,
		DiscountPct:    discountPct,
		NativeCurrency: p.Currency,
		ProductURL:     raw.URL,
		Category:       raw.Category,
		ReleaseDate:    strings.TrimSpace(raw.ReleaseDateText),
		ObservedAt:     n.now,
	}
	return listing, nil
}

// ParsePrice converts a raw price string to a number. "Free"-type tokens map
// to 0 directly. Everything except digits, separators, and minus is
// stripped; separator roles are disambiguated by shape first and the
// profile's locale convention second. A string that still fails to parse is
// an error, never a silent zero.
func ParsePrice(text string, decimalComma bool) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, &types.Rejection{Reason: types.RejectBadPrice, Value: text}
	}
	if freeRe.MatchString(s) {
		return 0, nil
	}

	s = priceCleanRe.ReplaceAllString(s, "")
	if s == "" {
		return 0, &types.Rejection{Reason: types.RejectBadPrice, Value: text}
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots >= 1 && commas >= 1:
		// Both separators present: the rightmost one is the decimal mark,
		// whatever the profile convention says.
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			// "1,299.99": commas group thousands.
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// "1.299,99": dots group thousands.
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case commas == 1 && dots == 0:
		if decimalComma {
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case dots == 1 && commas == 0:
		if decimalComma {
			// Under a comma-decimal convention a lone dot groups
			// thousands: "1.299" is 1299.
			s = strings.ReplaceAll(s, ".", "")
		}
	case commas > 1 && dots == 0:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1 && commas == 0:
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &types.Rejection{Reason: types.RejectBadPrice, Value: text}
	}
	return v, nil
}

// ParseDiscount extracts the first signed/unsigned integer from a discount
// string and returns its absolute value. Missing or unmatched text maps to
// 0, never an error.
func ParseDiscount(text string) float64 {
	m := discountIntRe.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return math.Abs(v)
}

// ReconstructOriginal estimates the pre-discount price from the current
// price and discount percentage. Guarded against a zero or inverted
// denominator: at 100% or more the current price is returned as-is.
func ReconstructOriginal(price, discountPct float64) float64 {
	if discountPct <= 0 {
		return price
	}
	if discountPct >= 100 {
		return price
	}
	return price / (1 - discountPct/100)
}

// inferPlatform applies the profile's priority-ordered keyword rules to the
// structured platform field first, then the title. No match is Unknown (or
// the profile default), never a rejection.
func (n *Normalizer) inferPlatform(raw types.RawListing, title string, p *profile.SourceProfile) types.Platform {
	for _, text := range []string{raw.PlatformText, title} {
		if strings.TrimSpace(text) == "" {
			continue
		}
		padded := " " + strings.ToLower(text) + " "
		for _, rule := range p.PlatformRules {
			for _, needle := range rule.Needles {
				if strings.Contains(padded, needle) {
					return rule.Platform
				}
			}
		}
	}
	if p.DefaultPlatform != "" {
		return p.DefaultPlatform
	}
	return types.PlatformUnknown
}

// inferStorefront prefers the profile's fixed storefront, then a trailing
// parenthetical in the title ("... (Steam)"), then the profile name.
func (n *Normalizer) inferStorefront(title string, p *profile.SourceProfile) string {
	if p.DefaultStore != "" {
		return p.DefaultStore
	}
	if m := storefrontRe.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	if p.Storefront != "" {
		return p.Storefront
	}
	return "Other"
}

// inferPreorder checks, in order: an explicit preorder line, preorder
// keywords in the title, "coming soon"/"tba" markers, and a release date
// that parses to after the batch observation time.
func (n *Normalizer) inferPreorder(raw types.RawListing, title string, p *profile.SourceProfile) bool {
	// The extractor only fills PreorderText when a preorder prefix matched.
	if strings.TrimSpace(raw.PreorderText) != "" {
		return true
	}

	lowTitle := strings.ToLower(title)
	for _, tok := range preorderTokens {
		if strings.Contains(lowTitle, tok) {
			return true
		}
	}

	rel := strings.ToLower(strings.TrimSpace(raw.ReleaseDateText))
	if rel == "" {
		return false
	}
	for _, tok := range comingTokens {
		if strings.Contains(rel, tok) {
			return true
		}
	}

	layout := p.ReleaseLayout
	if layout == "" {
		return false
	}
	dt, err := time.Parse(layout, strings.TrimSpace(raw.ReleaseDateText))
	if err != nil {
		return false
	}
	return dt.After(n.now)
}

// titleFromURL derives a readable title from the last URL path segment.
func titleFromURL(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	slug := trimmed[idx+1:]
	if i := strings.IndexAny(slug, "?#"); i >= 0 {
		slug = slug[:i]
	}
	slug = strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	slug = strings.TrimSpace(slug)
	if slug == "" || strings.Contains(slug, ".") {
		return ""
	}

	words := strings.Fields(slug)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
