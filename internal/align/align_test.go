package align

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/scribe/internal/diag"
	"github.com/MikeSquared-Agency/scribe/internal/prompt"
)

var testItems = []string{"positive_summary", "highlights", "confidence_tips", "motivation"}

func newAligner(c *diag.Collector) Aligner {
	return Aligner{Items: testItems, Delimiter: "-----", Protocol: prompt.ProtocolJSON, Recorder: c}
}

func jsonSegment(i int) string {
	return fmt.Sprintf(`{"positive_summary": "sum %d", "highlights": "hl %d", "confidence_tips": "tip %d", "motivation": "mot %d"}`, i, i, i, i)
}

func jsonReply(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = jsonSegment(i)
	}
	return strings.Join(parts, "\n-----\n")
}

func assertShape(t *testing.T, results []Result) {
	t.Helper()
	for i, r := range results {
		require.Len(t, r.Items, len(testItems), "result %d item count", i)
		for _, item := range testItems {
			_, ok := r.Items[item]
			assert.True(t, ok, "result %d missing item %q", i, item)
		}
	}
}

func TestAlign_ExactCount(t *testing.T) {
	var c diag.Collector
	results := newAligner(&c).Align(context.Background(), jsonReply(10), 10)

	require.Len(t, results, 10)
	assertShape(t, results)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("sum %d", i), r.Get("positive_summary"))
		assert.False(t, r.Defaulted)
	}
	assert.Empty(t, c.Events())
}

func TestAlign_ShortReplyPadded(t *testing.T) {
	var c diag.Collector
	results := newAligner(&c).Align(context.Background(), jsonReply(8), 10)

	require.Len(t, results, 10)
	assertShape(t, results)
	assert.Equal(t, "sum 7", results[7].Get("positive_summary"))
	for _, r := range results[8:] {
		assert.True(t, r.Defaulted)
		for _, item := range testItems {
			assert.Equal(t, "", r.Get(item))
		}
	}
	assert.Equal(t, 1, c.Count(diag.KindAlignmentMismatch))
}

func TestAlign_LongReplyTruncated(t *testing.T) {
	var c diag.Collector
	results := newAligner(&c).Align(context.Background(), jsonReply(12), 10)

	require.Len(t, results, 10)
	assert.Equal(t, "sum 0", results[0].Get("positive_summary"))
	assert.Equal(t, "sum 9", results[9].Get("positive_summary"))
	assert.Equal(t, 1, c.Count(diag.KindAlignmentMismatch))
}

func TestAlign_MalformedSegment(t *testing.T) {
	var c diag.Collector
	reply := jsonSegment(0) + "\n-----\n" + `{"positive_summary": "trunc` + "\n-----\n" + jsonSegment(2)

	results := newAligner(&c).Align(context.Background(), reply, 3)

	require.Len(t, results, 3)
	assertShape(t, results)
	assert.Equal(t, "sum 0", results[0].Get("positive_summary"))
	assert.True(t, results[1].Defaulted)
	for _, item := range testItems {
		assert.Equal(t, "", results[1].Get(item))
	}
	assert.Equal(t, "sum 2", results[2].Get("positive_summary"))

	events := c.Events()
	require.Len(t, events, 1)
	assert.Equal(t, diag.KindParseFailure, events[0].Kind)
	assert.Equal(t, 1, events[0].Position)
}

func TestAlign_DegenerateReplies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		n    int
	}{
		{"empty string", "", 4},
		{"whitespace", "  \n\t ", 3},
		{"no delimiters", jsonSegment(0), 5},
		{"only delimiters", "-----\n-----\n-----", 2},
		{"more delimiters than records", jsonReply(3) + "\n-----\n-----\n" + jsonReply(4), 2},
		{"prose", "Sorry, I cannot help with that.", 3},
		{"zero records", jsonReply(3), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := newAligner(&diag.Collector{}).Align(context.Background(), tt.raw, tt.n)
			require.Len(t, results, tt.n)
			assertShape(t, results)
		})
	}
}

func TestAlign_FencedReply(t *testing.T) {
	reply := "```json\n" + jsonReply(2) + "\n```"

	results := newAligner(&diag.Collector{}).Align(context.Background(), reply, 2)

	require.Len(t, results, 2)
	assert.False(t, results[0].Defaulted)
	assert.False(t, results[1].Defaulted)
	assert.Equal(t, "hl 1", results[1].Get("highlights"))
}

func TestAlign_PerSegmentFences(t *testing.T) {
	reply := "```json\n" + jsonSegment(0) + "\n```\n-----\n```json\n" + jsonSegment(1) + "\n```"
	var c diag.Collector

	results := newAligner(&c).Align(context.Background(), reply, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "sum 0", results[0].Get("positive_summary"))
	assert.Equal(t, "sum 1", results[1].Get("positive_summary"))
	assert.Zero(t, c.Count(diag.KindParseFailure))
}

func TestAlign_MissingItemsFilledExtraKept(t *testing.T) {
	reply := `{"positive_summary": "good day", "mood": "calm", "score": 7, "tags": ["a","b"], "highlights": null}`

	results := newAligner(&diag.Collector{}).Align(context.Background(), reply, 1)

	require.Len(t, results, 1)
	r := results[0]
	assertShape(t, results)
	assert.Equal(t, "good day", r.Get("positive_summary"))
	assert.Equal(t, "", r.Get("highlights"))
	assert.Equal(t, "", r.Get("motivation"))
	assert.Equal(t, []string{"mood", "score", "tags"}, r.ExtraKeys())
	assert.Equal(t, "7", r.Extra["score"])
	assert.Equal(t, `["a","b"]`, r.Extra["tags"])
	_, leaked := r.Items["mood"]
	assert.False(t, leaked)
}

func TestAlign_NonObjectSegments(t *testing.T) {
	var c diag.Collector
	reply := "[1,2,3]\n-----\nnull\n-----\n" + jsonSegment(2) + " trailing"

	results := newAligner(&c).Align(context.Background(), reply, 3)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Defaulted)
	}
	assert.Equal(t, 3, c.Count(diag.KindParseFailure))
}

func TestAlign_Idempotent(t *testing.T) {
	a := newAligner(&diag.Collector{})
	reply := jsonReply(6) + "\n-----\n{broken"

	first := a.Align(context.Background(), reply, 7)
	second := a.Align(context.Background(), reply, 7)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("aligner not idempotent (-first +second):\n%s", diff)
	}
}

func TestAlign_TableProtocol(t *testing.T) {
	a := Aligner{Items: []string{"mood", "highlight"}, Delimiter: "-----", Protocol: prompt.ProtocolTable}
	reply := "| mood | highlight |\n|---|---|\n| calm | helped grandpa |\n-----\n" +
		"Here you go:\n| mood | highlight | extra |\n| :--- | ---: | --- |\n| tired | finished book | x |"

	results := a.Align(context.Background(), reply, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "calm", results[0].Get("mood"))
	assert.Equal(t, "helped grandpa", results[0].Get("highlight"))
	assert.Equal(t, "tired", results[1].Get("mood"))
	assert.Equal(t, "x", results[1].Extra["extra"])
}

func TestAlign_TableSingleSegmentManyRows(t *testing.T) {
	a := Aligner{Items: []string{"mood"}, Delimiter: "-----", Protocol: prompt.ProtocolTable}
	reply := "| date | mood |\n|---|---|\n| 04-10 | calm |\n| 04-11 | proud |\n| 04-12 | warm |"

	results := a.Align(context.Background(), reply, 3)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"calm", "proud", "warm"}, []string{results[0].Get("mood"), results[1].Get("mood"), results[2].Get("mood")})
	assert.Equal(t, "04-11", results[1].Extra["date"])
}

func TestAlign_TableLongRule(t *testing.T) {
	var c diag.Collector
	a := Aligner{Items: []string{"a", "b"}, Delimiter: "-----", Protocol: prompt.ProtocolTable, Recorder: &c}
	reply := "| a | b |\n|---------|---------|\n| x | y |\n-----\n| a | b |\n|---|---|\n| z | w |"

	results := a.Align(context.Background(), reply, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].Get("a"))
	assert.Equal(t, "y", results[0].Get("b"))
	assert.Equal(t, "z", results[1].Get("a"))
	assert.Equal(t, "w", results[1].Get("b"))
	assert.False(t, results[0].Defaulted)
	assert.False(t, results[1].Defaulted)
	assert.Zero(t, c.Count(diag.KindParseFailure))
	assert.Zero(t, c.Count(diag.KindAlignmentMismatch))
}

func TestAlign_TableForeignHeader(t *testing.T) {
	var c diag.Collector
	a := Aligner{Items: []string{"mood"}, Delimiter: "-----", Protocol: prompt.ProtocolTable, Recorder: &c}

	results := a.Align(context.Background(), "|---|\n|---|\n| x |", 1)

	require.Len(t, results, 1)
	assert.True(t, results[0].Defaulted)
	assert.Equal(t, 1, c.Count(diag.KindParseFailure))
}

func TestAlign_TableMalformed(t *testing.T) {
	var c diag.Collector
	a := Aligner{Items: []string{"mood"}, Delimiter: "-----", Protocol: prompt.ProtocolTable, Recorder: &c}

	results := a.Align(context.Background(), "| mood |\n|---|\n-----\nno table here", 2)

	require.Len(t, results, 2)
	assert.True(t, results[0].Defaulted)
	assert.True(t, results[1].Defaulted)
	assert.Equal(t, 2, c.Count(diag.KindParseFailure))
}

func TestAlign_KeyedReordersByMarker(t *testing.T) {
	var c diag.Collector
	a := Aligner{Items: []string{"mood"}, Delimiter: "-----", Protocol: prompt.ProtocolJSON, Keyed: true, Recorder: &c}
	reply := `{"record": 3, "mood": "c"}` + "\n-----\n" + `{"record": "1", "mood": "a"}`

	results := a.Align(context.Background(), reply, 3)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Get("mood"))
	assert.True(t, results[1].Defaulted)
	assert.Equal(t, "c", results[2].Get("mood"))
	assert.Equal(t, 1, c.Count(diag.KindAlignmentMismatch))
	assert.NotContains(t, results[0].Extra, "record")
	assert.Nil(t, results[2].Extra)
}

func TestAlign_KeyedKeepsOtherExtras(t *testing.T) {
	a := Aligner{Items: []string{"mood"}, Delimiter: "-----", Protocol: prompt.ProtocolJSON, Keyed: true}
	reply := `{"record": 2, "mood": "b", "note": "late"}` + "\n-----\n" + `{"record": 1, "mood": "a"}`

	results := a.Align(context.Background(), reply, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Get("mood"))
	assert.Equal(t, map[string]string{"note": "late"}, results[1].Extra)
	assert.Equal(t, []string{"note"}, results[1].ExtraKeys())
}

func TestAlign_KeyedFallsBackToPositional(t *testing.T) {
	a := Aligner{Items: []string{"mood"}, Delimiter: "-----", Protocol: prompt.ProtocolJSON, Keyed: true}

	tests := []struct {
		name  string
		reply string
	}{
		{"missing key", `{"record": 2, "mood": "a"}` + "\n-----\n" + `{"mood": "b"}`},
		{"duplicate key", `{"record": 1, "mood": "a"}` + "\n-----\n" + `{"record": 1, "mood": "b"}`},
		{"out of range", `{"record": 9, "mood": "a"}` + "\n-----\n" + `{"record": 1, "mood": "b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := a.Align(context.Background(), tt.reply, 2)
			require.Len(t, results, 2)
			assert.Equal(t, "a", results[0].Get("mood"))
			assert.Equal(t, "b", results[1].Get("mood"))
		})
	}
}

func TestSplit_DropsEmptySegments(t *testing.T) {
	a := Aligner{Delimiter: "-----"}
	segs := a.Split("\n-----\n one \n-----\n\n-----\n two ")

	require.Len(t, segs, 2)
	assert.Equal(t, Segment{Text: "one", Position: 0}, segs[0])
	assert.Equal(t, Segment{Text: "two", Position: 1}, segs[1])
}

func TestSplit_DelimiterMustFillLine(t *testing.T) {
	a := Aligner{Delimiter: "-----"}
	segs := a.Split("one ------- still one\n  -----  \ntwo-----two")

	require.Len(t, segs, 2)
	assert.Equal(t, "one ------- still one", segs[0].Text)
	assert.Equal(t, "two-----two", segs[1].Text)
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```  ", `{"a":1}`},
		{"```json\n{\"a\":1}", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"{\"a\":1}\n```", `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripFence(tt.in); got != tt.want {
			t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
