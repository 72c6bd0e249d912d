package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
)

// JSONL writes one JSON object per row.
type JSONL struct {
	Path string
}

func (j *JSONL) Write(_ context.Context, s Sheet) error {
	f, err := create(j.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for i, m := range s.Maps() {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush jsonl: %w", err)
	}
	return f.Close()
}

func (j *JSONL) Close() error { return nil }
