// Package backup reads legacy inventory backups into restore records.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// ErrUnsupportedFormat is returned for files no reader understands.
var ErrUnsupportedFormat = errors.New("backup: unsupported file format")

// Options selects the part of a backup file to read.
type Options struct {
	// Sheet names the worksheet of an XLSX backup; empty selects the first.
	Sheet string
	// Table names the SQLite table; empty selects DefaultTable.
	Table string
}

// ReadFile dispatches on the file extension.
func ReadFile(ctx context.Context, path string, opts Options) ([]restore.LegacyRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("backup: open %s: %w", path, err)
		}
		defer f.Close()
		return ReadJSON(f)
	case ".db", ".sqlite", ".sqlite3":
		return ReadSQLite(ctx, path, opts.Table)
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("backup: open %s: %w", path, err)
		}
		defer f.Close()
		return ReadXLSX(f, opts.Sheet)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Chunk splits records into consecutive batches of at most size records.
func Chunk(records []restore.LegacyRecord, size int) [][]restore.LegacyRecord {
	if size <= 0 {
		size = len(records)
	}
	var batches [][]restore.LegacyRecord
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, records[start:end])
	}
	return batches
}
