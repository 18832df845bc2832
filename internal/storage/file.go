package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pricestalk/pricestalk/internal/types"
)

// --- CSV Storage ---

// CSVStorage writes the catalog as CSV with a fixed column order. The file
// starts with a UTF-8 BOM so spreadsheet tools read currency symbols and
// accented titles correctly.
type CSVStorage struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVStorage creates a CSV storage. The price columns are named after the
// reference and secondary currencies ("price_eur", "price_usd").
func NewCSVStorage(outputPath, refCurrency, altCurrency string, logger *slog.Logger) (*CSVStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	if _, err := f.WriteString("\ufeff"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write BOM: %w", err)
	}

	ref := strings.ToLower(refCurrency)
	alt := strings.ToLower(altCurrency)
	w := csv.NewWriter(f)
	header := []string{
		"source", "title", "platform", "storefront", "is_preorder",
		"price_" + ref, "price_" + alt, "original_price_" + ref,
		"discount_pct", "product_url",
		"category", "release_date", "scraped_at_utc",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}

	return &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: w,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(listings []*types.CanonicalListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range listings {
		row := []string{
			l.Source,
			l.Title,
			string(l.Platform),
			l.Storefront,
			strconv.FormatBool(l.IsPreorder),
			formatPrice(l.PriceCurrent),
			formatPrice(l.PriceAlt),
			formatPrice(l.PriceOriginal),
			strconv.FormatFloat(l.DiscountPct, 'f', -1, 64),
			l.ProductURL,
			l.Category,
			l.ReleaseDate,
			l.ObservedAt.UTC().Format(time.RFC3339),
		}
		if err := s.writer.Write(row); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: err}
		}
		s.count++
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	return nil
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("CSV written", "path", s.path, "listings", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// formatPrice renders a price with exactly two decimals.
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// --- JSON Storage ---

// JSONStorage buffers listings and writes them as one indented JSON array
// on Close.
type JSONStorage struct {
	path     string
	listings []*types.CanonicalListing
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewJSONStorage creates a JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &JSONStorage{
		path:     outputPath,
		listings: make([]*types.CanonicalListing, 0),
		logger:   logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(listings []*types.CanonicalListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = append(s.listings, listings...)
	s.logger.Debug("listings buffered", "count", len(listings), "total", len(s.listings))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.listings); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.logger.Info("JSON written", "path", s.path, "listings", len(s.listings))
	return nil
}

// --- JSONL Storage ---

// JSONLStorage streams listings as newline-delimited JSON.
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(listings []*types.CanonicalListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range listings {
		if err := s.enc.Encode(l); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: err}
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "listings", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
