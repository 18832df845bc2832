// Package extract turns raw catalog-page markup into RawListings using an
// anchored, bounded forward walk over the node sequence. The heuristic is
// best-effort on purpose: it degrades to missed listings, never to
// fabricated ones.
package extract

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

// Extractor extracts raw listings from page markup.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With("component", "extractor"),
	}
}

// Result is the outcome of extracting one page.
type Result struct {
	Listings []types.RawListing

	// Anchors is how many anchor nodes were identified.
	Anchors int

	// Missed counts anchors whose window resolved no price (the listing
	// was dropped; price is mandatory).
	Missed int
}

// Extract parses markup and returns up to maxItems raw listings
// (maxItems <= 0 means unlimited). It never panics on malformed markup and
// returns partial results. Error cases:
//   - *types.ExtractError: the markup could not be parsed at all
//   - *types.EmptyPageError: parsed fine, but zero anchors matched
func (e *Extractor) Extract(markup string, p *profile.SourceProfile, category string, maxItems int) (*Result, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, &types.ExtractError{Source: p.Name, Page: category, Err: types.ErrEmptyMarkup}
	}

	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, &types.ExtractError{Source: p.Name, Page: category, Err: err}
	}

	doc := newDocument(root)
	anchors := e.findAnchors(doc, p)

	res := &Result{Anchors: len(anchors.ordered)}
	seenURLs := make(map[string]bool)
	capturedTitles := make(map[string]bool)

	for _, idx := range anchors.ordered {
		if maxItems > 0 && len(res.Listings) >= maxItems {
			break
		}

		raw, ok := e.walkFrom(doc, p, anchors, idx, category)
		if !ok {
			res.Missed++
			continue
		}
		if raw.URL != "" && seenURLs[raw.URL] {
			continue
		}

		res.Listings = append(res.Listings, raw)
		if raw.URL != "" {
			seenURLs[raw.URL] = true
		}
		if raw.Title != "" {
			capturedTitles[raw.Title] = true
		}
	}

	// Second pass for listings with no discount badge, keyed on a
	// title-hint pattern.
	if p.TitleHint != nil {
		e.titleHintPass(doc, p, anchors, category, maxItems, res, seenURLs, capturedTitles)
	}

	if res.Anchors == 0 && len(res.Listings) == 0 {
		return res, &types.EmptyPageError{Source: p.Name, Page: category}
	}

	return res, nil
}

// anchorSet holds identified anchors both as ordered positions and as a
// membership set for boundary checks during walks.
type anchorSet struct {
	ordered []int
	members map[*html.Node]bool
}

func (a *anchorSet) contains(n *html.Node) bool { return a.members[n] }

// findAnchors identifies anchor nodes per the profile's strategy. Matches
// prefer the innermost element so a wrapper containing only a badge does not
// shadow the badge itself.
func (e *Extractor) findAnchors(doc *document, p *profile.SourceProfile) *anchorSet {
	set := &anchorSet{members: make(map[*html.Node]bool)}

	add := func(n *html.Node) {
		if idx, ok := doc.index[n]; ok && !set.members[n] {
			set.members[n] = true
			set.ordered = append(set.ordered, idx)
		}
	}

	if p.AnchorXPath != "" {
		nodes, err := htmlquery.QueryAll(doc.root, p.AnchorXPath)
		if err != nil {
			e.logger.Warn("anchor xpath failed", "source", p.Name, "error", err)
		}
		for _, n := range nodes {
			add(n)
		}
		sortInts(set.ordered)
		return set
	}

	for _, n := range doc.seq {
		if n.Type != html.ElementNode {
			continue
		}
		switch p.Strategy {
		case profile.StrategyDiscount:
			if e.matchesDiscountAnchor(doc, n, p) {
				add(n)
			}
		case profile.StrategyKeyword:
			if e.matchesKeywordAnchor(doc, n, p) {
				add(n)
			}
		}
	}
	return set
}

func (e *Extractor) matchesDiscountAnchor(doc *document, n *html.Node, p *profile.SourceProfile) bool {
	text := doc.elementText(n)
	if text == "" || !p.DiscountExact.MatchString(text) {
		return false
	}
	// Innermost only: a child element matching the same pattern wins.
	return !hasMatchingChild(doc, n, func(t string) bool { return p.DiscountExact.MatchString(t) })
}

func (e *Extractor) matchesKeywordAnchor(doc *document, n *html.Node, p *profile.SourceProfile) bool {
	if p.HrefContains != "" {
		return n.Data == "a" && strings.Contains(attr(n, "href"), p.HrefContains)
	}

	text := doc.elementText(n)
	if text == "" {
		return false
	}
	match := func(t string) bool {
		for _, kw := range p.AnchorKeywords {
			if containsToken(t, kw) {
				return true
			}
		}
		return false
	}
	if !match(text) {
		return false
	}
	return !hasMatchingChild(doc, n, match)
}

func hasMatchingChild(doc *document, n *html.Node, match func(string) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if match(doc.elementText(c)) {
			return true
		}
		if hasMatchingChild(doc, c, match) {
			return true
		}
	}
	return false
}

// walkFrom performs the bounded forward walk from one anchor, collecting
// title, price, discount, preorder, and release-date text. Returns ok=false
// when no price was resolved inside the window.
func (e *Extractor) walkFrom(doc *document, p *profile.SourceProfile, anchors *anchorSet, idx int, category string) (types.RawListing, bool) {
	anchor := doc.seq[idx]
	raw := types.RawListing{
		Source:   p.Name,
		Category: category,
	}

	anchorText := doc.elementText(anchor)
	if p.Strategy == profile.StrategyDiscount {
		raw.DiscountText = anchorText
	}

	end := idx + p.Window
	if end > len(doc.seq) {
		end = len(doc.seq)
	}

walk:
	for j := idx + 1; j < end; j++ {
		n := doc.seq[j]

		// Another anchor of the same class means the next listing began.
		if n.Type == html.ElementNode && anchors.contains(n) {
			break
		}

		if n.Type != html.TextNode {
			continue
		}
		txt := collapse(n.Data)
		if txt == "" {
			continue
		}
		lower := strings.ToLower(txt)

		// Action vocabulary always trails the listing's price, so it is
		// a safe boundary signal.
		for _, sw := range p.StopWords {
			if lower == sw {
				break walk
			}
		}

		if p.DiscountAny.MatchString(txt) {
			if raw.DiscountText == "" {
				raw.DiscountText = txt
			}
			continue
		}

		if raw.Title == "" {
			raw.Title = txt
			continue
		}

		if raw.PreorderText == "" && hasAnyPrefix(lower, p.PreorderPrefix) {
			raw.PreorderText = txt
			continue
		}

		if p.ReleaseDateRe != nil && raw.ReleaseDateText == "" && p.ReleaseDateRe.MatchString(txt) {
			raw.ReleaseDateText = txt
			continue
		}

		if raw.PriceText == "" && p.PricePattern.MatchString(txt) {
			raw.PriceText = txt
			break
		}
	}

	// Keyword and href anchors sit inside the listing card, so the price
	// may be rendered before the link; scan backward for it.
	if raw.PriceText == "" && p.Strategy == profile.StrategyKeyword {
		raw.PriceText = e.searchBackPrice(doc, p, anchors, idx)
	}

	// Price is mandatory; a priceless window is a per-item miss, not a
	// fabricated record.
	if raw.PriceText == "" {
		return raw, false
	}

	raw.URL = e.resolveURL(doc, p, anchors, idx)
	return raw, true
}

// titleHintPass scans for title-like text nodes the anchor pass missed
// (listings without a discount badge) and recovers price and URL for them.
func (e *Extractor) titleHintPass(doc *document, p *profile.SourceProfile, anchors *anchorSet, category string, maxItems int, res *Result, seenURLs, capturedTitles map[string]bool) {
	for i, n := range doc.seq {
		if maxItems > 0 && len(res.Listings) >= maxItems {
			return
		}
		if n.Type != html.TextNode {
			continue
		}
		title := collapse(n.Data)
		if title == "" || !p.TitleHint.MatchString(title) || capturedTitles[title] {
			continue
		}

		priceText := ""
		end := i + p.Window
		if end > len(doc.seq) {
			end = len(doc.seq)
		}
		for j := i + 1; j < end; j++ {
			m := doc.seq[j]
			if m.Type == html.ElementNode && anchors.contains(m) {
				break
			}
			if m.Type != html.TextNode {
				continue
			}
			txt := collapse(m.Data)
			if txt == "" || p.DiscountAny.MatchString(txt) {
				continue
			}
			if p.PricePattern.MatchString(txt) {
				priceText = txt
				break
			}
		}
		if priceText == "" {
			continue
		}

		link := findParentLink(n)
		if link == nil {
			link = e.searchBackLink(doc, i, p.LinkBackSteps)
		}
		if link == nil {
			continue
		}
		u := e.joinURL(p.BaseURL, attr(link, "href"))
		if u == "" || seenURLs[u] {
			continue
		}

		res.Listings = append(res.Listings, types.RawListing{
			Source:    p.Name,
			Category:  category,
			Title:     title,
			PriceText: priceText,
			URL:       u,
		})
		seenURLs[u] = true
		capturedTitles[title] = true
	}
}

// resolveURL takes the anchor's own link when it has one, otherwise searches
// the ancestor chain and then a bounded number of steps backward.
func (e *Extractor) resolveURL(doc *document, p *profile.SourceProfile, anchors *anchorSet, idx int) string {
	anchor := doc.seq[idx]

	if anchor.Type == html.ElementNode && anchor.Data == "a" {
		if href := attr(anchor, "href"); href != "" {
			return e.joinURL(p.BaseURL, href)
		}
	}
	if link := findParentLink(anchor); link != nil {
		return e.joinURL(p.BaseURL, attr(link, "href"))
	}
	if link := e.searchBackLink(doc, idx, p.LinkBackSteps); link != nil {
		return e.joinURL(p.BaseURL, attr(link, "href"))
	}
	return ""
}

// searchBackPrice scans backward from the anchor for price text the forward
// window could not reach, stopping at the previous anchor or a stop word so
// it never steals the previous listing's price.
func (e *Extractor) searchBackPrice(doc *document, p *profile.SourceProfile, anchors *anchorSet, idx int) string {
	low := idx - p.Window
	if low < 0 {
		low = 0
	}
	for j := idx - 1; j >= low; j-- {
		n := doc.seq[j]
		if n.Type == html.ElementNode && anchors.contains(n) {
			return ""
		}
		if n.Type != html.TextNode {
			continue
		}
		txt := collapse(n.Data)
		if txt == "" {
			continue
		}
		lower := strings.ToLower(txt)
		for _, sw := range p.StopWords {
			if lower == sw {
				return ""
			}
		}
		if p.DiscountAny.MatchString(txt) {
			continue
		}
		if p.PricePattern.MatchString(txt) {
			return txt
		}
	}
	return ""
}

// searchBackLink walks backward through the node sequence looking for the
// nearest link, bounded by steps.
func (e *Extractor) searchBackLink(doc *document, idx, steps int) *html.Node {
	for j, taken := idx-1, 0; j >= 0 && taken < steps; j, taken = j-1, taken+1 {
		n := doc.seq[j]
		if n.Type == html.ElementNode && n.Data == "a" && attr(n, "href") != "" {
			return n
		}
	}
	return nil
}

func findParentLink(n *html.Node) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == "a" && attr(cur, "href") != "" {
			return cur
		}
	}
	return nil
}

// joinURL resolves href against the profile base URL.
func (e *Extractor) joinURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() || base == "" {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// sortInts is a tiny insertion sort; anchor lists are small and mostly
// ordered already.
func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}
