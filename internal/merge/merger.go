// Package merge deduplicates canonical listings across concurrent sources
// into a single catalog keyed on the canonicalized product URL.
package merge

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/pricestalk/pricestalk/internal/types"
)

// volatileParams are query parameters that carry tracking state rather than
// product identity; they are stripped before comparison.
var volatileParams = map[string]bool{
	"ref": true, "referrer": true, "affiliate": true, "partner": true,
	"gclid": true, "fbclid": true, "igshid": true,
	"mc_cid": true, "mc_eid": true,
}

// Merger is the sole owner of the cross-source seen set. Sources call Add
// concurrently; first occurrence wins and insertion order is stable.
type Merger struct {
	mu      sync.Mutex
	seen    map[string]string // canonical URL -> source that claimed it
	catalog types.Catalog

	dupSame  int64
	dupCross int64

	logger *slog.Logger
}

// New creates a Merger.
func New(logger *slog.Logger) *Merger {
	return &Merger{
		seen:   make(map[string]string),
		logger: logger.With("component", "merger"),
	}
}

// Add inserts a listing unless its canonical URL was already claimed.
// Returns true when the listing entered the catalog. The listing's
// ProductURL is rewritten to its canonical form on insert.
func (m *Merger) Add(l *types.CanonicalListing) bool {
	canonical := CanonicalizeURL(l.ProductURL)

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.seen[canonical]; ok {
		if owner == l.Source {
			m.dupSame++
		} else {
			m.dupCross++
			m.logger.Warn("cross-source duplicate dropped",
				"url", canonical,
				"kept_source", owner,
				"dropped_source", l.Source,
			)
		}
		return false
	}

	m.seen[canonical] = l.Source
	l.ProductURL = canonical
	m.catalog.Add(l)
	return true
}

// Catalog returns the merged catalog in first-occurrence order.
func (m *Merger) Catalog() *types.Catalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &m.catalog
}

// Len returns the number of unique listings merged so far.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog.Len()
}

// Duplicates returns the same-source and cross-source duplicate counts.
func (m *Merger) Duplicates() (same, cross int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dupSame, m.dupCross
}

// CanonicalizeURL normalizes a product URL for identity comparison:
//   - lowercases scheme and host
//   - removes the fragment and default ports
//   - strips volatile tracking parameters (utm_*, gclid, ...)
//   - sorts the remaining query parameters
//   - removes the trailing slash (except root)
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if volatileParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}

	return u.String()
}
