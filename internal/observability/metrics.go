package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational metrics for a harvest run.
type Metrics struct {
	// Page metrics
	PagesProcessed  atomic.Int64
	PagesEmpty      atomic.Int64
	PagesUnparsable atomic.Int64
	FetchesFailed   atomic.Int64

	// Listing metrics
	ListingsExtracted  atomic.Int64
	ListingsMissed     atomic.Int64
	ListingsNormalized atomic.Int64
	ListingsRejected   atomic.Int64

	// Catalog metrics
	DuplicatesDropped atomic.Int64
	CatalogSize       atomic.Int64

	// Source metrics
	SourcesActive atomic.Int32
	SourcesFailed atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"pricestalk_pages_processed_total", "Total catalog pages processed", m.PagesProcessed.Load()},
		{"pricestalk_pages_empty_total", "Total pages with zero anchors", m.PagesEmpty.Load()},
		{"pricestalk_pages_unparsable_total", "Total pages that failed to parse", m.PagesUnparsable.Load()},
		{"pricestalk_fetches_failed_total", "Total page fetches that failed", m.FetchesFailed.Load()},
		{"pricestalk_listings_extracted_total", "Total raw listings extracted", m.ListingsExtracted.Load()},
		{"pricestalk_listings_missed_total", "Total anchors that resolved no price", m.ListingsMissed.Load()},
		{"pricestalk_listings_normalized_total", "Total listings normalized", m.ListingsNormalized.Load()},
		{"pricestalk_listings_rejected_total", "Total listings rejected during normalization", m.ListingsRejected.Load()},
		{"pricestalk_duplicates_dropped_total", "Total duplicate listings dropped at merge", m.DuplicatesDropped.Load()},
		{"pricestalk_catalog_size", "Unique listings in the merged catalog", m.CatalogSize.Load()},
		{"pricestalk_sources_active", "Sources currently being harvested", int64(m.SourcesActive.Load())},
		{"pricestalk_sources_failed_total", "Sources that produced nothing", m.SourcesFailed.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_processed":     m.PagesProcessed.Load(),
		"pages_empty":         m.PagesEmpty.Load(),
		"pages_unparsable":    m.PagesUnparsable.Load(),
		"fetches_failed":      m.FetchesFailed.Load(),
		"listings_extracted":  m.ListingsExtracted.Load(),
		"listings_missed":     m.ListingsMissed.Load(),
		"listings_normalized": m.ListingsNormalized.Load(),
		"listings_rejected":   m.ListingsRejected.Load(),
		"duplicates_dropped":  m.DuplicatesDropped.Load(),
		"catalog_size":        m.CatalogSize.Load(),
		"sources_active":      int64(m.SourcesActive.Load()),
		"sources_failed":      m.SourcesFailed.Load(),
	}
}
