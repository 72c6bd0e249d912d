package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/gateway"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
)

// Role names used in transcripts.
const (
	RoleDataAnalyst  = "data_agent"
	RoleWebRetriever = "web_surfer"
	RoleAssistant    = "assistant"
	RoleUserProxy    = "user_proxy"
)

// ModelParticipant answers by sending the task and the transcript to a gateway.
type ModelParticipant struct {
	name         string
	instructions string
	gw           gateway.Gateway
}

func NewModelParticipant(name, instructions string, gw gateway.Gateway) *ModelParticipant {
	return &ModelParticipant{name: name, instructions: instructions, gw: gw}
}

// NewDataAnalyst reads the records and reports patterns in them.
func NewDataAnalyst(gw gateway.Gateway) *ModelParticipant {
	return NewModelParticipant(RoleDataAnalyst, dataAnalystInstructions, gw)
}

// NewAssistant writes the final answer and ends the session with the termination token.
func NewAssistant(gw gateway.Gateway, terminationToken string) *ModelParticipant {
	return NewModelParticipant(RoleAssistant, fmt.Sprintf(assistantInstructions, terminationToken), gw)
}

func (p *ModelParticipant) Name() string { return p.name }

func (p *ModelParticipant) Respond(ctx context.Context, turn Context) (Message, error) {
	reply, err := p.gw.Generate(ctx, renderTurn(p.name, p.instructions, turn))
	if err != nil {
		return Message{}, gateway.Wrap(err)
	}
	msg := Message{Source: p.name, Content: strings.TrimSpace(reply.Text), Kind: KindText}
	withUsage(&msg, reply.Usage)
	return msg, nil
}

// WebRetriever searches the web and folds the results into its message. With a
// gateway it asks the model for the query; otherwise the query is the task's first line.
type WebRetriever struct {
	searcher retrieval.Searcher
	gw       gateway.Gateway
}

func NewWebRetriever(searcher retrieval.Searcher, gw gateway.Gateway) *WebRetriever {
	return &WebRetriever{searcher: searcher, gw: gw}
}

func (w *WebRetriever) Name() string { return RoleWebRetriever }

func (w *WebRetriever) Respond(ctx context.Context, turn Context) (Message, error) {
	msg := Message{Source: RoleWebRetriever, Kind: KindSearch}

	query := fallbackQuery(turn.Task)
	if w.gw != nil {
		reply, err := w.gw.Generate(ctx, renderTurn(RoleWebRetriever, webQueryInstructions, turn))
		if err != nil {
			return Message{}, gateway.Wrap(err)
		}
		if q := firstLine(reply.Text); q != "" {
			query = q
		}
		withUsage(&msg, reply.Usage)
	}

	results, err := w.searcher.Search(ctx, query)
	if err != nil {
		// A failed lookup is reported in the transcript rather than ending the session.
		msg.Content = fmt.Sprintf("Web search for %q failed: %v", query, err)
		return msg, nil
	}
	msg.Content = retrieval.Format(query, results)
	return msg, nil
}

// UserProxy stands in for a human. Its k-th turn returns Replies[k]; once the
// script runs out it answers with the termination token.
type UserProxy struct {
	Replies          []string
	TerminationToken string
}

func (u UserProxy) Name() string { return RoleUserProxy }

func (u UserProxy) Respond(ctx context.Context, turn Context) (Message, error) {
	own := 0
	for _, m := range turn.Transcript {
		if m.Source == RoleUserProxy {
			own++
		}
	}
	content := u.TerminationToken
	if own < len(u.Replies) {
		content = u.Replies[own]
	}
	return Message{Source: RoleUserProxy, Content: content, Kind: KindText}, nil
}

// DefaultTeam is the analyst, retriever, assistant and user proxy rotation.
func DefaultTeam(gw gateway.Gateway, searcher retrieval.Searcher, terminationToken string, replies []string) []Participant {
	return []Participant{
		NewDataAnalyst(gw),
		NewWebRetriever(searcher, gw),
		NewAssistant(gw, terminationToken),
		UserProxy{Replies: replies, TerminationToken: terminationToken},
	}
}

func renderTurn(name, instructions string, turn Context) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nTask:\n")
	sb.WriteString(turn.Task)
	if len(turn.Transcript) > 0 {
		sb.WriteString("\n\nConversation so far:\n")
		for _, m := range turn.Transcript {
			fmt.Fprintf(&sb, "[%s] %s\n", m.Source, m.Content)
		}
	}
	fmt.Fprintf(&sb, "\nRespond as %s.", name)
	return sb.String()
}

func withUsage(m *Message, u *gateway.Usage) {
	if u == nil {
		return
	}
	prompt, completion := u.PromptTokens, u.CompletionTokens
	m.PromptTokens = &prompt
	m.CompletionTokens = &completion
}

func fallbackQuery(task string) string {
	q := firstLine(task)
	if len(q) > 100 {
		q = q[:100]
	}
	return q
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"`)
}
