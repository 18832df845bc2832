package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the batch-level configuration for invalid values.
// Per-source validation happens at profile compile time, so a broken source
// aborts only itself, never the batch.
func Validate(cfg *Config) error {
	if cfg.Harvest.Concurrency < 1 {
		return fmt.Errorf("harvest.concurrency must be >= 1, got %d", cfg.Harvest.Concurrency)
	}
	if cfg.Harvest.MaxItems < 0 {
		return fmt.Errorf("harvest.max_items must be >= 0, got %d", cfg.Harvest.MaxItems)
	}

	if cfg.Fetcher.Type != "file" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'file' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.Type == "file" && cfg.Fetcher.SnapshotDir == "" {
		return fmt.Errorf("fetcher.snapshot_dir is required for the file fetcher")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxPages < 1 {
		return fmt.Errorf("fetcher.max_pages must be >= 1, got %d", cfg.Fetcher.MaxPages)
	}

	if cfg.Rates.Reference == "" {
		return fmt.Errorf("rates.reference currency is required")
	}
	if r, ok := cfg.Rates.ToReference[cfg.Rates.Reference]; !ok || r != 1.0 {
		return fmt.Errorf("rates.to_reference must map the reference currency %q to 1.0", cfg.Rates.Reference)
	}
	for cur, rate := range cfg.Rates.ToReference {
		if rate <= 0 {
			return fmt.Errorf("rates.to_reference[%s] must be > 0, got %v", cur, rate)
		}
	}
	if cfg.Rates.Alt != "" && cfg.Rates.AltPerReference <= 0 {
		return fmt.Errorf("rates.alt_per_reference must be > 0 when rates.alt is set")
	}

	validStorageTypes := map[string]bool{
		"csv": true, "json": true, "jsonl": true, "mongodb": true,
	}
	// A comma-separated list fans the catalog out to several backends.
	for _, kind := range strings.Split(cfg.Storage.Type, ",") {
		kind = strings.TrimSpace(kind)
		if !validStorageTypes[kind] {
			return fmt.Errorf("storage.type %q is not supported (valid: csv, json, jsonl, mongodb, or a comma-separated list)", kind)
		}
		if kind == "mongodb" && cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for mongodb storage")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a catalog page address.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
