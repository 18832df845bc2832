// Package runner orchestrates a harvest batch: it fans sources out to
// workers, pipes each page through extraction and normalization, and merges
// the results into one deduplicated catalog.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/extract"
	"github.com/pricestalk/pricestalk/internal/fetch"
	"github.com/pricestalk/pricestalk/internal/merge"
	"github.com/pricestalk/pricestalk/internal/normalize"
	"github.com/pricestalk/pricestalk/internal/observability"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

// SourceReport summarizes one source's outcome within a batch.
type SourceReport struct {
	Source          string
	Pages           int
	EmptyPages      int
	UnparsablePages int
	FetchFailures   int
	Anchors         int
	Extracted       int
	Missed          int
	Normalized      int
	Rejected        map[types.RejectReason]int
	Duplicates      int
	Err             error
}

// BatchReport summarizes a whole harvest run.
type BatchReport struct {
	Sources        []SourceReport
	CatalogSize    int
	DupSameSource  int64
	DupCrossSource int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Runner executes harvest batches.
type Runner struct {
	cfg        *config.Config
	fetcher    fetch.Fetcher
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	rates      *normalize.RateTable
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a Runner. The metrics argument may be nil.
func New(cfg *config.Config, fetcher fetch.Fetcher, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	rates := normalize.NewRateTable(cfg.Rates)
	return &Runner{
		cfg:        cfg,
		fetcher:    fetcher,
		extractor:  extract.New(logger),
		normalizer: normalize.New(rates, logger),
		rates:      rates,
		metrics:    metrics,
		logger:     logger.With("component", "runner"),
	}
}

// Run harvests every configured source concurrently and returns the merged
// catalog. A per-source failure never aborts the batch; ErrAllSourcesFailed
// is returned only when the catalog ends up empty.
func (r *Runner) Run(ctx context.Context) (*types.Catalog, *BatchReport, error) {
	report := &BatchReport{StartedAt: time.Now().UTC()}
	merger := merge.New(r.logger)

	type compiled struct {
		profile *profile.SourceProfile
		report  *SourceReport
	}

	var work []compiled
	for _, sc := range r.cfg.Sources {
		sr := SourceReport{
			Source:   sc.Name,
			Rejected: make(map[types.RejectReason]int),
		}
		p, err := profile.Compile(sc)
		if err == nil && !r.rates.Supports(p.Currency) {
			// A currency without a configured rate would reject every
			// listing one by one; fail the source up front instead.
			err = &types.ConfigError{
				Source: sc.Name,
				Field:  "currency",
				Err:    fmt.Errorf("no rate configured for currency %q", p.Currency),
			}
		}
		if err != nil {
			// A profile error is fatal for this source only.
			r.logger.Error("source profile rejected", "source", sc.Name, "error", err)
			r.metrics.SourcesFailed.Add(1)
			sr.Err = err
			report.Sources = append(report.Sources, sr)
			continue
		}
		work = append(work, compiled{profile: p, report: &sr})
		report.Sources = append(report.Sources, sr)
	}

	concurrency := r.cfg.Harvest.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i := range work {
		w := &work[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			r.metrics.SourcesActive.Add(1)
			defer r.metrics.SourcesActive.Add(-1)

			r.harvestSource(ctx, w.profile, merger, w.report)
		}()
	}
	wg.Wait()

	// Copy worker-filled reports back into the batch report.
	for _, w := range work {
		for i := range report.Sources {
			if report.Sources[i].Source == w.report.Source {
				report.Sources[i] = *w.report
			}
		}
	}

	catalog := merger.Catalog()
	report.CatalogSize = catalog.Len()
	report.DupSameSource, report.DupCrossSource = merger.Duplicates()
	report.FinishedAt = time.Now().UTC()

	r.metrics.CatalogSize.Store(int64(catalog.Len()))
	r.metrics.DuplicatesDropped.Store(report.DupSameSource + report.DupCrossSource)

	if catalog.Len() == 0 {
		return catalog, report, types.ErrAllSourcesFailed
	}
	return catalog, report, nil
}

// harvestSource runs one source end to end: fetch each configured page,
// extract, normalize, merge.
func (r *Runner) harvestSource(ctx context.Context, p *profile.SourceProfile, merger *merge.Merger, sr *SourceReport) {
	log := r.logger.With("source", p.Name)
	produced := false

	for _, pc := range p.Pages {
		select {
		case <-ctx.Done():
			sr.Err = ctx.Err()
			return
		default:
		}

		pages, err := r.fetcher.Fetch(ctx, p, pc)
		if err != nil {
			log.Error("page fetch failed", "category", pc.Category, "url", pc.URL, "error", err)
			sr.FetchFailures++
			r.metrics.FetchesFailed.Add(1)
			continue
		}

		for _, page := range pages {
			sr.Pages++
			r.metrics.PagesProcessed.Add(1)

			if r.processPage(p, page, merger, sr, log) {
				produced = true
			}
		}
	}

	if !produced {
		r.metrics.SourcesFailed.Add(1)
		if sr.Err == nil && sr.Pages == 0 && sr.FetchFailures > 0 {
			sr.Err = errors.New("all page fetches failed")
		}
	}

	log.Info("source finished",
		"pages", sr.Pages,
		"empty_pages", sr.EmptyPages,
		"unparsable_pages", sr.UnparsablePages,
		"extracted", sr.Extracted,
		"missed", sr.Missed,
		"normalized", sr.Normalized,
		"duplicates", sr.Duplicates,
	)
}

// processPage extracts and normalizes one page. Returns true when at least
// one listing entered the catalog.
func (r *Runner) processPage(p *profile.SourceProfile, page fetch.Page, merger *merge.Merger, sr *SourceReport, log *slog.Logger) bool {
	res, err := r.extractor.Extract(page.Markup, p, page.Category, r.cfg.Harvest.MaxItems)
	if err != nil {
		var emptyErr *types.EmptyPageError
		var extractErr *types.ExtractError
		switch {
		case errors.As(err, &emptyErr):
			// Zero anchors usually means a blocked or empty response; the
			// document title tells the two apart in logs.
			meta := extract.Meta(page.Markup)
			log.Warn("empty page", "category", page.Category, "url", page.URL, "page_title", meta.Title)
			sr.EmptyPages++
			r.metrics.PagesEmpty.Add(1)
		case errors.As(err, &extractErr):
			log.Error("unparsable page", "category", page.Category, "url", page.URL, "error", err)
			sr.UnparsablePages++
			r.metrics.PagesUnparsable.Add(1)
		default:
			log.Error("extract failed", "category", page.Category, "url", page.URL, "error", err)
			sr.UnparsablePages++
			r.metrics.PagesUnparsable.Add(1)
		}
		return false
	}

	sr.Anchors += res.Anchors
	sr.Extracted += len(res.Listings)
	sr.Missed += res.Missed
	r.metrics.ListingsExtracted.Add(int64(len(res.Listings)))
	r.metrics.ListingsMissed.Add(int64(res.Missed))

	produced := false
	for _, raw := range res.Listings {
		listing, err := r.normalizer.Normalize(raw, p)
		if err != nil {
			var rej *types.Rejection
			if errors.As(err, &rej) {
				sr.Rejected[rej.Reason]++
				r.metrics.ListingsRejected.Add(1)
				log.Debug("listing rejected", "reason", rej.Reason, "value", rej.Value)
			} else {
				log.Error("normalize failed", "error", err)
			}
			continue
		}

		sr.Normalized++
		r.metrics.ListingsNormalized.Add(1)

		if merger.Add(listing) {
			produced = true
		} else {
			sr.Duplicates++
		}
	}
	return produced
}
