package align

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/diag"
	"github.com/MikeSquared-Agency/scribe/internal/prompt"
)

// keyField is the field a keyed reply uses to echo the record marker.
const keyField = "record"

// Segment is one delimiter-bounded slice of a raw reply.
type Segment struct {
	Text     string
	Position int
}

// Aligner turns one raw reply into exactly n results.
//
// Correspondence between segments and records is positional: the i-th parsed segment
// belongs to the i-th record. A reply that drops an early record shifts every later
// answer by one. Keyed mode removes that risk when the model echoes the record markers
// the compiler emitted.
type Aligner struct {
	Items     []string
	Delimiter string
	Protocol  prompt.Protocol
	Keyed     bool
	Recorder  diag.Recorder
}

// Align never fails: malformed segments become defaulted results and the count is
// reconciled against n by truncation or padding.
func (a Aligner) Align(ctx context.Context, raw string, n int) []Result {
	if n < 0 {
		n = 0
	}
	segments := a.Split(raw)

	results := make([]Result, 0, len(segments))
	for _, seg := range segments {
		parsed, err := a.Parse(seg)
		if err != nil {
			diag.Emit(ctx, a.Recorder, diag.Event{
				Kind:     diag.KindParseFailure,
				Position: seg.Position,
				Message:  "reply segment did not parse",
				Detail:   fmt.Sprintf("%v: %s", err, preview(seg.Text)),
			})
			results = append(results, Empty(a.Items))
			continue
		}
		results = append(results, parsed...)
	}

	if a.Keyed && a.Protocol != prompt.ProtocolTable {
		if keyed, ok := a.byKey(results, n); ok {
			if len(results) != n {
				a.mismatch(ctx, len(results), n, "keyed")
			}
			return keyed
		}
	}
	return a.reconcile(ctx, results, n)
}

// Split strips fence wrapping from the whole reply and cuts it at every line whose
// trimmed content is exactly the delimiter, dropping segments that are empty after
// trimming. A delimiter run inside a line, such as a markdown table rule, never splits.
func (a Aligner) Split(raw string) []Segment {
	text := StripFence(raw)
	if text == "" {
		return nil
	}

	var (
		segments []Segment
		current  []string
	)
	flush := func() {
		part := strings.TrimSpace(strings.Join(current, "\n"))
		current = current[:0]
		if part != "" {
			segments = append(segments, Segment{Text: part, Position: len(segments)})
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if a.Delimiter != "" && strings.TrimSpace(line) == a.Delimiter {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return segments
}

// Parse decodes one segment. A JSON segment yields one result; a table segment
// yields one result per data row.
func (a Aligner) Parse(seg Segment) ([]Result, error) {
	text := StripFence(seg.Text)

	if a.Protocol == prompt.ProtocolTable {
		rows, err := parseTable(text, a.Items)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(rows))
		for i, row := range rows {
			out[i] = fromObject(a.Items, row)
		}
		return out, nil
	}

	obj, err := parseJSON(text)
	if err != nil {
		return nil, err
	}
	return []Result{fromObject(a.Items, obj)}, nil
}

func (a Aligner) reconcile(ctx context.Context, results []Result, n int) []Result {
	if len(results) == n {
		return results
	}
	a.mismatch(ctx, len(results), n, "positional")
	if len(results) > n {
		return results[:n]
	}
	for len(results) < n {
		results = append(results, Empty(a.Items))
	}
	return results
}

// byKey places results by their echoed record marker. It reports false when any
// parsed result lacks a usable key, so the caller falls back to positional alignment.
func (a Aligner) byKey(results []Result, n int) ([]Result, bool) {
	placed := make([]Result, n)
	filled := make([]bool, n)
	seen := 0
	for _, r := range results {
		if r.Defaulted {
			continue
		}
		pos, err := strconv.Atoi(strings.TrimSpace(r.Extra[keyField]))
		if err != nil || pos < 1 || pos > n || filled[pos-1] {
			return nil, false
		}
		placed[pos-1] = withoutKey(r)
		filled[pos-1] = true
		seen++
	}
	if seen == 0 {
		return nil, false
	}
	for i := range placed {
		if !filled[i] {
			placed[i] = Empty(a.Items)
		}
	}
	return placed, true
}

// withoutKey drops the echoed marker so it never surfaces as an extra column.
func withoutKey(r Result) Result {
	if _, ok := r.Extra[keyField]; !ok {
		return r
	}
	extra := make(map[string]string, len(r.Extra)-1)
	for k, v := range r.Extra {
		if k != keyField {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}
	r.Extra = extra
	return r
}

func (a Aligner) mismatch(ctx context.Context, got, want int, mode string) {
	diag.Emit(ctx, a.Recorder, diag.Event{
		Kind:    diag.KindAlignmentMismatch,
		Message: "reply segment count does not match record count",
		Detail:  fmt.Sprintf("%s alignment: got %d results, expected %d", mode, got, want),
	})
}

func preview(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
