package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is lightweight document metadata used for diagnostics, mainly to
// tell a blocked or interstitial response apart from a genuinely empty
// catalog page.
type PageMeta struct {
	Title     string
	Canonical string
}

// Meta reads the document title and canonical link from markup. Parse
// failures yield a zero PageMeta; this is diagnostic data, never load-bearing.
func Meta(markup string) PageMeta {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return PageMeta{}
	}

	var meta PageMeta
	meta.Title = collapse(doc.Find("title").First().Text())
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		meta.Canonical = strings.TrimSpace(href)
	}
	return meta
}
