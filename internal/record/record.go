package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent from the source.
var ErrMissingColumn = errors.New("missing required column")

// Record is one input row. Index is its position in the source and never changes.
type Record struct {
	Index  int
	Fields map[string]string
}

// Field returns the named value, or "" when the column is absent.
func (r Record) Field(name string) string {
	return r.Fields[name]
}

// Table is an ordered record collection plus the header it was read with.
type Table struct {
	Columns []string
	Records []Record
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads a header row followed by data rows. A UTF-8 byte order mark on the
// header is dropped. Short rows are padded with empty values.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Columns: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Records)+1, err)
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			} else {
				fields[col] = ""
			}
		}
		t.Records = append(t.Records, Record{Index: len(t.Records), Fields: fields})
	}
	return t, nil
}

// FromTexts builds records holding a single content column, used by API callers
// that submit raw strings instead of a file.
func FromTexts(column string, texts []string) *Table {
	t := &Table{Columns: []string{column}}
	for i, text := range texts {
		t.Records = append(t.Records, Record{Index: i, Fields: map[string]string{column: text}})
	}
	return t
}

// Require checks that every named column is present.
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, col := range columns {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s (have %s)", ErrMissingColumn, strings.Join(missing, ", "), strings.Join(t.Columns, ", "))
	}
	return nil
}

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ContentColumn picks the first preferred column that exists, falling back to the
// first column of the table. It returns "" for a table without columns.
func (t *Table) ContentColumn(preferred ...string) string {
	for _, p := range preferred {
		if p != "" && t.HasColumn(p) {
			return p
		}
	}
	if len(t.Columns) == 0 {
		return ""
	}
	return t.Columns[0]
}
