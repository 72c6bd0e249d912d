package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Transcript columns. Each user or assistant text turn becomes one record.
const (
	ColumnRole      = "role"
	ColumnTimestamp = "timestamp"
	ColumnContent   = "content"
)

// turnLine is one line of a chat session log in JSON-lines form. Lines are linked
// into a conversation by parentUuid.
type turnLine struct {
	Type       string  `json:"type"`
	UUID       string  `json:"uuid"`
	ParentUUID *string `json:"parentUuid"`
	Timestamp  string  `json:"timestamp"`
	Message    struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ReadFile picks the reader by extension: .jsonl files are chat transcripts,
// anything else is CSV.
func ReadFile(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return ReadTranscriptFile(path)
	}
	return ReadCSVFile(path)
}

// ReadTranscriptFile opens path and reads it with ReadTranscript.
func ReadTranscriptFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return ReadTranscript(f)
}

// ReadTranscript reads a JSON-lines chat session. Turns are ordered by following
// parent links from each root; turns the chain walk misses are appended in file
// order. Tool results, tool calls and malformed lines are skipped.
func ReadTranscript(r io.Reader) (*Table, error) {
	var (
		lines    []*turnLine
		byID     = make(map[string]int)
		roots    []string
		children = make(map[string]string)
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for sc.Scan() {
		var line turnLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		if line.Type != "user" && line.Type != "assistant" {
			continue
		}
		byID[line.UUID] = len(lines)
		lines = append(lines, &line)
		if line.ParentUUID == nil || *line.ParentUUID == "" {
			roots = append(roots, line.UUID)
		} else {
			children[*line.ParentUUID] = line.UUID
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	visited := make(map[int]bool, len(lines))
	order := make([]int, 0, len(lines))
	for _, root := range roots {
		for id := root; id != ""; id = children[id] {
			i, ok := byID[id]
			if !ok || visited[i] {
				break
			}
			visited[i] = true
			order = append(order, i)
		}
	}
	var orphans []int
	for i := range lines {
		if !visited[i] {
			orphans = append(orphans, i)
		}
	}
	sort.Ints(orphans)
	order = append(order, orphans...)

	t := &Table{Columns: []string{ColumnRole, ColumnTimestamp, ColumnContent}}
	for _, i := range order {
		text, ok := turnText(lines[i].Message.Content)
		if !ok {
			continue
		}
		t.Records = append(t.Records, Record{
			Index: len(t.Records),
			Fields: map[string]string{
				ColumnRole:      lines[i].Type,
				ColumnTimestamp: lines[i].Timestamp,
				ColumnContent:   text,
			},
		})
	}
	return t, nil
}

// turnText returns the text of a message. Content is either a plain string or a
// list of blocks, of which only text blocks count. A message carrying a tool
// result is not a conversational turn.
func turnText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		plain = strings.TrimSpace(plain)
		return plain, plain != ""
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "tool_result":
			return "", false
		case "text":
			if s := strings.TrimSpace(b.Text); s != "" {
				parts = append(parts, s)
			}
		}
	}
	text := strings.Join(parts, "\n")
	return text, text != ""
}
