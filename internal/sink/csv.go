package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
)

// bom makes spreadsheet tools detect UTF-8.
const bom = "\ufeff"

// CSV writes a sheet as a UTF-8 CSV file with a byte order mark.
type CSV struct {
	Path string
}

func (c *CSV) Write(_ context.Context, s Sheet) error {
	f, err := create(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	if _, err := buf.WriteString(bom); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	w := csv.NewWriter(buf)
	if err := w.Write(s.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range s.Rows {
		out := make([]string, len(s.Columns))
		for j := range out {
			out[j] = cell(row, j)
		}
		if err := w.Write(out); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

func (c *CSV) Close() error { return nil }
