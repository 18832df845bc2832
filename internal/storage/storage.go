// Package storage persists the merged catalog to files or MongoDB.
package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pricestalk/pricestalk/internal/config"
	"github.com/pricestalk/pricestalk/internal/types"
)

// Storage is the interface for all catalog storage backends.
type Storage interface {
	// Store persists a batch of listings.
	Store(listings []*types.CanonicalListing) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the storage backend selected by configuration. A comma-separated
// type list ("csv,jsonl") fans out to every named backend; file backends then
// derive their paths from the configured output path by swapping the
// extension. refCurrency and altCurrency name the price columns in CSV
// output.
func New(cfg config.StorageConfig, refCurrency, altCurrency string, logger *slog.Logger) (Storage, error) {
	kinds := strings.Split(cfg.Type, ",")
	if len(kinds) == 1 {
		return newSingle(cfg, refCurrency, altCurrency, logger)
	}

	backends := make([]Storage, 0, len(kinds))
	for _, kind := range kinds {
		sub := cfg
		sub.Type = strings.TrimSpace(kind)
		sub.OutputPath = pathForType(cfg.OutputPath, sub.Type)
		s, err := newSingle(sub, refCurrency, altCurrency, logger)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, err
		}
		backends = append(backends, s)
	}
	return NewMultiStorage(backends, logger), nil
}

func newSingle(cfg config.StorageConfig, refCurrency, altCurrency string, logger *slog.Logger) (Storage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "csv":
		return NewCSVStorage(cfg.OutputPath, refCurrency, altCurrency, logger)
	case "json":
		return NewJSONStorage(cfg.OutputPath, logger)
	case "jsonl":
		return NewJSONLStorage(cfg.OutputPath, logger)
	case "mongodb", "mongo":
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// pathForType gives each file backend in a fan-out its own output path.
func pathForType(path, kind string) string {
	var ext string
	switch strings.ToLower(kind) {
	case "", "csv":
		ext = ".csv"
	case "json":
		ext = ".json"
	case "jsonl":
		ext = ".jsonl"
	default:
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
