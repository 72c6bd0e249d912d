package align

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	errNotObject = errors.New("segment is not a JSON object")
	errNoTable   = errors.New("segment has no markdown table with a data row")
	errNoItems   = errors.New("table header names none of the requested items")
)

// StripFence removes a leading ``` marker line and a trailing ``` marker line.
// Either marker may be missing; the rest of the text is returned trimmed.
func StripFence(s string) string {
	cleaned := strings.TrimSpace(s)
	if !strings.Contains(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	if strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseJSON strictly decodes a single JSON object; trailing data is an error.
func parseJSON(s string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if obj == nil {
		return nil, errNotObject
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode json: trailing data after object")
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = render(v)
	}
	return out, nil
}

// parseTable reads a markdown table: a header row, a separator row, then data rows.
// Each data row becomes one object keyed by the header cells. A header sharing no
// cell with items is rejected so a stray table never passes as an empty answer.
func parseTable(s string, items []string) ([]map[string]string, error) {
	var rows []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "|") {
			rows = append(rows, line)
		}
	}
	if len(rows) < 2 {
		return nil, errNoTable
	}

	header := splitRow(rows[0])
	if !namesAny(header, items) {
		return nil, errNoItems
	}
	body := rows[1:]
	if isRule(body[0]) {
		body = body[1:]
	}
	if len(body) == 0 {
		return nil, errNoTable
	}

	out := make([]map[string]string, 0, len(body))
	for _, row := range body {
		cells := splitRow(row)
		obj := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(cells) {
				obj[h] = cells[i]
			} else {
				obj[h] = ""
			}
		}
		out = append(out, obj)
	}
	return out, nil
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func isRule(line string) bool {
	trimmed := strings.Trim(line, "|:- \t")
	return trimmed == "" && strings.Contains(line, "-")
}

func namesAny(header, items []string) bool {
	if len(items) == 0 {
		return true
	}
	for _, h := range header {
		for _, item := range items {
			if h == item {
				return true
			}
		}
	}
	return false
}
