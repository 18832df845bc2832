package fetch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/profile"
	"github.com/pricestalk/pricestalk/internal/types"
)

// FileFetcher reads previously saved page markup from disk. Snapshots live
// under <root>/<source>/<category>/ as .html files, optionally gzip- or
// brotli-compressed (.html.gz, .html.br).
type FileFetcher struct {
	root   string
	logger *slog.Logger
}

// NewFileFetcher creates a FileFetcher rooted at the snapshot directory.
func NewFileFetcher(root string, logger *slog.Logger) *FileFetcher {
	return &FileFetcher{
		root:   root,
		logger: logger.With("component", "file_fetcher"),
	}
}

// Fetch loads every snapshot saved for the page's category, in name order.
func (f *FileFetcher) Fetch(ctx context.Context, p *profile.SourceProfile, pc config.PageConfig) ([]Page, error) {
	dir := filepath.Join(f.root, p.Name, pc.Category)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &types.FetchError{URL: dir, Err: err, Retryable: false}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".html") ||
			strings.HasSuffix(name, ".html.gz") ||
			strings.HasSuffix(name, ".html.br") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, &types.FetchError{
			URL: dir,
			Err: fmt.Errorf("no snapshots in %s", dir),
		}
	}

	pages := make([]Page, 0, len(names))
	for _, name := range names {
		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		default:
		}

		path := filepath.Join(dir, name)
		markup, err := readSnapshot(path)
		if err != nil {
			f.logger.Warn("snapshot unreadable, skipping", "path", path, "error", err)
			continue
		}
		pages = append(pages, Page{
			URL:      path,
			Category: pc.Category,
			Markup:   markup,
		})
	}

	f.logger.Debug("snapshots loaded", "source", p.Name, "category", pc.Category, "pages", len(pages))
	return pages, nil
}

// Close is a no-op; the file fetcher holds no resources.
func (f *FileFetcher) Close() error { return nil }

// Type returns the fetcher type identifier.
func (f *FileFetcher) Type() string { return "file" }

// readSnapshot opens a snapshot file and transparently decompresses it.
func readSnapshot(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var r io.Reader = file
	switch {
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(file)
		if err != nil {
			return "", fmt.Errorf("gzip %s: %w", path, err)
		}
		defer gr.Close()
		r = gr
	case strings.HasSuffix(path, ".br"):
		r = brotli.NewReader(file)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
