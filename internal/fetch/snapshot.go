package fetch

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSnapshot saves one fetched page under <root>/<source>/<category>/ as a
// gzip-compressed snapshot the FileFetcher can read back. Returns the path
// written.
func WriteSnapshot(root, source, category string, index int, markup string) (string, error) {
	dir := filepath.Join(root, source, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("page%03d.html.gz", index))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}

	w := gzip.NewWriter(f)
	if _, err := w.Write([]byte(markup)); err != nil {
		f.Close()
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
