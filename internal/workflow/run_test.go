package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/diag"
	"github.com/MikeSquared-Agency/scribe/internal/gateway"
	"github.com/MikeSquared-Agency/scribe/internal/gateway/gatewaytest"
	"github.com/MikeSquared-Agency/scribe/internal/record"
	"github.com/MikeSquared-Agency/scribe/internal/report"
	"github.com/MikeSquared-Agency/scribe/internal/sink"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// memSink keeps written sheets in memory.
type memSink struct {
	mu     sync.Mutex
	sheets []sink.Sheet
	closed bool
}

func (m *memSink) Write(_ context.Context, s sink.Sheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets = append(m.sheets, s)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func (m *memSink) open(uuid.UUID) (sink.Writer, error) { return m, nil }

func (m *memSink) sheet(t *testing.T) sink.Sheet {
	t.Helper()
	require.Len(t, m.sheets, 1)
	return m.sheets[0]
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.Items = []string{"mood", "highlight"}
	cfg.Concurrency = 1
	cfg.DiagnosticLog = filepath.Join(t.TempDir(), "diag.json")
	return cfg
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("entry %d", i)
	}
	return out
}

func replyFor(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"mood": "m%d", "highlight": "h%d"}`, i, i)
	}
	return strings.Join(parts, "\n-----\n")
}

func TestRun_Evaluate(t *testing.T) {
	cfg := testConfig(t)
	gw := gatewaytest.NewScript(
		gatewaytest.Step{Reply: gateway.Reply{Text: replyFor(10)}},
		gatewaytest.Step{Reply: gateway.Reply{Text: replyFor(8)}},
		gatewaytest.Step{Err: errors.New("upstream unavailable")},
	)
	out := &memSink{}
	runs := store.NewMemory()
	pub := &recordingPublisher{}
	var notified []string
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open, Runs: runs, Events: pub,
		Notify: func(_ context.Context, s report.Summary) { notified = append(notified, s.RunID) },
	}

	id := uuid.New()
	summary, err := r.Run(context.Background(), id, record.FromTexts("content", texts(25)), WorkflowEvaluate)
	require.NoError(t, err)

	assert.Equal(t, 25, summary.Records)
	assert.Equal(t, 3, summary.Chunks)
	assert.Equal(t, 1, summary.ChunksFailed)
	assert.Equal(t, 25, summary.Rows)
	assert.Equal(t, 1, summary.Diagnostics[string(diag.KindAlignmentMismatch)])
	assert.Equal(t, 1, summary.Diagnostics[string(diag.KindGatewayFailure)])

	sheet := out.sheet(t)
	assert.True(t, out.closed)
	assert.Equal(t, []string{"content", "mood", "highlight"}, sheet.Columns)
	require.Len(t, sheet.Rows, 25)
	for i, row := range sheet.Rows {
		assert.Equal(t, fmt.Sprintf("entry %d", i), row[0], "row %d out of order", i)
	}
	assert.Equal(t, []string{"entry 0", "m0", "h0"}, sheet.Rows[0])
	assert.Equal(t, []string{"entry 17", "m7", "h7"}, sheet.Rows[17])
	assert.Equal(t, []string{"entry 18", "", ""}, sheet.Rows[18])
	assert.Equal(t, []string{"entry 24", "", ""}, sheet.Rows[24])

	run, err := runs.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.ChunksFailed)
	assert.NotNil(t, run.FinishedAt)

	journal, err := diag.LoadJournal(cfg.DiagnosticLog)
	require.NoError(t, err)
	assert.Equal(t, 2, journal.ChunksOK)
	assert.Len(t, journal.Events, 2)

	assert.Contains(t, pub.subjects, "swarm.scribe.run.started")
	assert.Contains(t, pub.subjects, "swarm.scribe.run.completed")
	assert.Contains(t, pub.subjects, "swarm.scribe.diagnostic.gateway_failure")
	assert.Equal(t, []string{id.String()}, notified)
}

func TestRun_EvaluateKeepsExtraKeys(t *testing.T) {
	cfg := testConfig(t)
	gw := gatewaytest.Texts(`{"mood": "calm", "score": 7}`)
	out := &memSink{}
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open}

	_, err := r.Run(context.Background(), uuid.New(), record.FromTexts("content", texts(1)), WorkflowEvaluate)
	require.NoError(t, err)

	sheet := out.sheet(t)
	assert.Equal(t, []string{"content", "mood", "highlight", "extra"}, sheet.Columns)
	assert.Equal(t, []string{"entry 0", "calm", "", `{"score":"7"}`}, sheet.Rows[0])
}

func TestRun_KeyedOmitsMarkerColumn(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keyed = true
	gw := gatewaytest.Texts(`{"record": 2, "mood": "b", "highlight": "hb"}` + "\n-----\n" + `{"record": 1, "mood": "a", "highlight": "ha"}`)
	out := &memSink{}
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open}

	_, err := r.Run(context.Background(), uuid.New(), record.FromTexts("content", texts(2)), WorkflowEvaluate)
	require.NoError(t, err)

	sheet := out.sheet(t)
	assert.Equal(t, []string{"content", "mood", "highlight"}, sheet.Columns)
	assert.Equal(t, []string{"entry 0", "a", "ha"}, sheet.Rows[0])
	assert.Equal(t, []string{"entry 1", "b", "hb"}, sheet.Rows[1])
}

func TestRun_JournalPerRun(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	r := &Runner{
		Config:      cfg,
		Gateway:     gatewaytest.Texts(replyFor(2), replyFor(2)),
		Output:      (&memSink{}).open,
		JournalPath: func(id uuid.UUID) string { return filepath.Join(dir, id.String()+".json") },
	}

	idA, idB := uuid.New(), uuid.New()
	sumA, err := r.Run(context.Background(), idA, record.FromTexts("content", texts(2)), WorkflowEvaluate)
	require.NoError(t, err)
	sumB, err := r.Run(context.Background(), idB, record.FromTexts("content", texts(2)), WorkflowEvaluate)
	require.NoError(t, err)

	require.NotEqual(t, sumA.Journal, sumB.Journal)
	for id, path := range map[uuid.UUID]string{idA: sumA.Journal, idB: sumB.Journal} {
		journal, err := diag.LoadJournal(path)
		require.NoError(t, err)
		assert.Equal(t, id.String(), journal.RunID)
	}
	assert.NoFileExists(t, cfg.DiagnosticLog)
}

func TestRun_Reflect(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkSize = 2
	gw := gateway.Func(func(_ context.Context, prompt string) (gateway.Reply, error) {
		usage := &gateway.Usage{PromptTokens: 11, CompletionTokens: 3}
		if strings.HasSuffix(prompt, "Respond as assistant.") {
			return gateway.Reply{Text: "Lovely week. exit", Usage: usage}, nil
		}
		return gateway.Reply{Text: "gratitude journaling", Usage: usage}, nil
	})
	out := &memSink{}
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open}

	summary, err := r.Run(context.Background(), uuid.New(), record.FromTexts("content", texts(3)), WorkflowReflect)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Chunks)
	assert.Zero(t, summary.ChunksFailed)

	sheet := out.sheet(t)
	assert.Equal(t, messageColumns, sheet.Columns)
	require.Len(t, sheet.Rows, 6)

	assert.Equal(t, []string{"0", "1", "data_agent", "gratitude journaling", "TextMessage", "11", "3"}, sheet.Rows[0])
	assert.Equal(t, "web_surfer", sheet.Rows[1][2])
	assert.Equal(t, "SearchResultMessage", sheet.Rows[1][4])
	assert.Equal(t, "assistant", sheet.Rows[2][2])
	assert.Equal(t, []string{"2", "2"}, sheet.Rows[3][:2])
	assert.Equal(t, "Lovely week. exit", sheet.Rows[5][3])
}

func TestRun_ReflectFailedChunkLeavesErrorRow(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkSize = 1
	gw := gateway.Func(func(_ context.Context, prompt string) (gateway.Reply, error) {
		if strings.Contains(prompt, "entry 1") {
			return gateway.Reply{}, errors.New("quota exceeded")
		}
		return gateway.Reply{Text: "done, exit"}, nil
	})
	out := &memSink{}
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open}

	summary, err := r.Run(context.Background(), uuid.New(), record.FromTexts("content", texts(2)), WorkflowReflect)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ChunksFailed)
	assert.Equal(t, 1, summary.Diagnostics[string(diag.KindGatewayFailure)])
	assert.Zero(t, summary.Diagnostics[string(diag.KindChunkFailure)])

	sheet := out.sheet(t)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "data_agent", sheet.Rows[0][2])
	last := sheet.Rows[1]
	assert.Equal(t, []string{"1", "1", "scribe"}, last[:3])
	assert.Contains(t, last[3], "quota exceeded")
	assert.Equal(t, "Error", last[4])
}

func TestRun_ReflectForcedTermination(t *testing.T) {
	cfg := testConfig(t)
	cfg.TurnCap = 5
	gw := gateway.Func(func(context.Context, string) (gateway.Reply, error) {
		return gateway.Reply{Text: "still thinking"}, nil
	})
	out := &memSink{}
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open, UserReplies: []string{"go on"}}

	summary, err := r.Run(context.Background(), uuid.New(), record.FromTexts("content", texts(1)), WorkflowReflect)
	require.NoError(t, err)
	assert.Len(t, out.sheet(t).Rows, 5)
	assert.Equal(t, 1, summary.Diagnostics[string(diag.KindForcedTermination)])
}

func TestRun_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		table  *record.Table
		wf     Workflow
	}{
		{"zero chunk size", func(c *config.Config) { c.ChunkSize = 0 }, record.FromTexts("content", texts(3)), WorkflowEvaluate},
		{"missing column", func(c *config.Config) { c.RequiredColumns = []string{"date"} }, record.FromTexts("content", texts(3)), WorkflowEvaluate},
		{"no items", func(c *config.Config) { c.Items = nil }, record.FromTexts("content", texts(3)), WorkflowEvaluate},
		{"zero turn cap", func(c *config.Config) { c.TurnCap = 0 }, record.FromTexts("content", texts(3)), WorkflowReflect},
		{"unknown workflow", func(*config.Config) {}, record.FromTexts("content", texts(3)), Workflow("summarise")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			gw := gatewaytest.NewScript()
			runs := store.NewMemory()
			out := &memSink{}
			r := &Runner{Config: cfg, Gateway: gw, Output: out.open, Runs: runs}

			id := uuid.New()
			_, err := r.Run(context.Background(), id, tt.table, tt.wf)
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Zero(t, gw.Calls())
			assert.Empty(t, out.sheets)
			_, err = runs.GetRun(context.Background(), id)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestRun_CancelledStillWritesOutput(t *testing.T) {
	cfg := testConfig(t)
	gw := gatewaytest.NewScript()
	out := &memSink{}
	runs := store.NewMemory()
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open, Runs: runs}

	id := uuid.New()
	job, err := r.Begin(context.Background(), id, record.FromTexts("content", texts(15)), WorkflowEvaluate)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := job.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, summary.ChunksFailed)
	assert.Zero(t, gw.Calls())
	assert.Len(t, out.sheet(t).Rows, 15)

	run, err := runs.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "canceled")
}

func TestRun_EmptyInput(t *testing.T) {
	cfg := testConfig(t)
	gw := gatewaytest.NewScript()
	out := &memSink{}
	r := &Runner{Config: cfg, Gateway: gw, Output: out.open}

	summary, err := r.Run(context.Background(), uuid.New(), &record.Table{Columns: []string{"content"}}, WorkflowEvaluate)
	require.NoError(t, err)
	assert.Zero(t, summary.Chunks)
	assert.Zero(t, gw.Calls())
	assert.Empty(t, out.sheet(t).Rows)
}

func TestParseWorkflow(t *testing.T) {
	for in, want := range map[string]Workflow{"evaluate": WorkflowEvaluate, " Reflect ": WorkflowReflect} {
		got, err := ParseWorkflow(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseWorkflow("translate")
	assert.ErrorIs(t, err, config.ErrInvalid)
}
