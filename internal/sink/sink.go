// Package sink writes ordered result tables to files and local databases.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned by Open for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Sheet is an ordered table of string cells. Rows keep the order of the records
// or messages that produced them.
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Maps returns each row as a column-to-value map. Short rows yield "" for missing cells.
func (s Sheet) Maps() []map[string]string {
	out := make([]map[string]string, len(s.Rows))
	for i, row := range s.Rows {
		m := make(map[string]string, len(s.Columns))
		for j, col := range s.Columns {
			m[col] = cell(row, j)
		}
		out[i] = m
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// Writer persists sheets. Writing a sheet replaces any earlier output of the same name.
type Writer interface {
	Write(ctx context.Context, s Sheet) error
	Close() error
}

// Known reports whether Open supports format.
func Known(format string) bool {
	switch strings.ToLower(format) {
	case "csv", "jsonl", "yaml", "yml", "sqlite":
		return true
	}
	return false
}

// Open returns the writer for a format. File formats write to path; sqlite opens
// the database file at path.
func Open(format, path string) (Writer, error) {
	switch strings.ToLower(format) {
	case "csv":
		return &CSV{Path: path}, nil
	case "jsonl":
		return &JSONL{Path: path}, nil
	case "yaml", "yml":
		return &YAML{Path: path}, nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}
