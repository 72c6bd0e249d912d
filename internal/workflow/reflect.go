package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/chunk"
	"github.com/MikeSquared-Agency/scribe/internal/conversation"
	"github.com/MikeSquared-Agency/scribe/internal/prompt"
	"github.com/MikeSquared-Agency/scribe/internal/sink"
)

// Reflection is the transcript of the conversation held about one chunk.
type Reflection struct {
	BatchStart int
	BatchEnd   int
	Messages   []conversation.Message
	Forced     bool
}

// Reflector runs one conversation per chunk.
type Reflector struct {
	Engine conversation.Engine
	Field  string
	// Total is the number of records in the whole run, quoted in the task.
	Total int
}

func (r Reflector) Reflect(ctx context.Context, ch chunk.Chunk) (Reflection, error) {
	tr, err := r.Engine.Run(ctx, r.Task(ch))
	if err != nil {
		return Reflection{}, fmt.Errorf("conversation %s: %w", ch.Ref(), err)
	}
	return Reflection{
		BatchStart: ch.Start,
		BatchEnd:   ch.End,
		Messages:   tr.Messages(),
		Forced:     tr.Forced,
	}, nil
}

// Task is the opening request for the conversation about ch.
func (r Reflector) Task(ch chunk.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, reflectionTask, ch.Start, ch.End, r.Total)
	sb.WriteString("\n\nEntries:\n")
	for i, rec := range ch.Records {
		fmt.Fprintf(&sb, "%s %s\n", prompt.Marker(i+1), strings.TrimSpace(rec.Field(r.Field)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

const reflectionTask = `Analysing journal entries %d to %d (%d in total).
For each entry give concrete, positive feedback:
  1. summarise the positive aspects;
  2. point out the highlights;
  3. suggest ways to build confidence;
  4. use web search to find related motivational material that supports the suggestions.`

var messageColumns = []string{"batch_start", "batch_end", "source", "content", "type", "prompt_tokens", "completion_tokens"}

// MessageSheet lays out one row per message. A failed chunk contributes a single
// error row so the gap is visible in the output.
func MessageSheet(reflections []Reflection, failures map[int]error) sink.Sheet {
	var rows [][]string
	for i, r := range reflections {
		if err, ok := failures[i]; ok {
			rows = append(rows, []string{
				strconv.Itoa(r.BatchStart), strconv.Itoa(r.BatchEnd),
				"scribe", err.Error(), "Error", "", "",
			})
			continue
		}
		for _, m := range r.Messages {
			rows = append(rows, []string{
				strconv.Itoa(r.BatchStart), strconv.Itoa(r.BatchEnd),
				m.Source, m.Content, string(m.Kind),
				optInt(m.PromptTokens), optInt(m.CompletionTokens),
			})
		}
	}
	return sink.Sheet{Name: "messages", Columns: messageColumns, Rows: rows}
}

func optInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
