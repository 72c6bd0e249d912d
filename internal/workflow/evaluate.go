package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MikeSquared-Agency/scribe/internal/align"
	"github.com/MikeSquared-Agency/scribe/internal/chunk"
	"github.com/MikeSquared-Agency/scribe/internal/gateway"
	"github.com/MikeSquared-Agency/scribe/internal/prompt"
	"github.com/MikeSquared-Agency/scribe/internal/record"
	"github.com/MikeSquared-Agency/scribe/internal/sink"
)

// Evaluation pairs a record with its aligned result.
type Evaluation struct {
	Record record.Record
	Result align.Result
}

// Evaluator is the per-chunk compile, call and align step.
type Evaluator struct {
	Compiler prompt.Compiler
	Aligner  align.Aligner
	Gateway  gateway.Gateway
	// Field is the record column holding the text to evaluate.
	Field string
}

// Evaluate returns exactly one evaluation per record of ch, in record order.
// Only a gateway failure is an error; reply problems become defaulted results.
func (e Evaluator) Evaluate(ctx context.Context, ch chunk.Chunk) ([]Evaluation, error) {
	env := e.Compiler.Compile(ch, e.Field)

	reply, err := e.Gateway.Generate(ctx, env.Text())
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", ch.Ref(), gateway.Wrap(err))
	}

	results := e.Aligner.Align(ctx, reply.Text, ch.Len())
	out := make([]Evaluation, ch.Len())
	for i, rec := range ch.Records {
		out[i] = Evaluation{Record: rec, Result: results[i]}
	}
	return out, nil
}

// defaultEvaluations is the fallback for a chunk whose gateway call failed.
func defaultEvaluations(ch chunk.Chunk, items []string) []Evaluation {
	out := make([]Evaluation, ch.Len())
	for i, rec := range ch.Records {
		out[i] = Evaluation{Record: rec, Result: align.Empty(items)}
	}
	return out
}

// EvaluationSheet lays out one row per record: the input columns followed by one
// column per item. An "extra" column holding undeclared keys as JSON is added
// when any result has them.
func EvaluationSheet(columns, items []string, evals []Evaluation) sink.Sheet {
	withExtra := false
	for _, ev := range evals {
		if len(ev.Result.Extra) > 0 {
			withExtra = true
			break
		}
	}

	header := make([]string, 0, len(columns)+len(items)+1)
	header = append(header, columns...)
	header = append(header, items...)
	if withExtra {
		header = append(header, "extra")
	}

	rows := make([][]string, len(evals))
	for i, ev := range evals {
		row := make([]string, 0, len(header))
		for _, col := range columns {
			row = append(row, ev.Record.Field(col))
		}
		for _, item := range items {
			row = append(row, ev.Result.Get(item))
		}
		if withExtra {
			row = append(row, extraJSON(ev.Result.Extra))
		}
		rows[i] = row
	}
	return sink.Sheet{Name: "evaluations", Columns: header, Rows: rows}
}

func extraJSON(extra map[string]string) string {
	if len(extra) == 0 {
		return ""
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return string(b)
}
