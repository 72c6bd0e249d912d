// Package conversation runs round-robin sessions between role-tagged participants.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/diag"
)

var (
	ErrNoParticipants     = errors.New("conversation needs at least one participant")
	ErrInvalidTurnCap     = errors.New("turn cap must be positive")
	ErrNoTerminationToken = errors.New("termination token is required")
)

// Kind classifies a message for the result sink.
type Kind string

const (
	KindText   Kind = "TextMessage"
	KindSearch Kind = "SearchResultMessage"
)

// Message is one turn's output. Token counts are nil when the producer made no
// model call or the provider did not report usage.
type Message struct {
	ID               uuid.UUID `json:"id"`
	Turn             int       `json:"turn"`
	Source           string    `json:"source"`
	Content          string    `json:"content"`
	Kind             Kind      `json:"type"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Context is what a participant sees on its turn. Transcript is a copy; changing it
// has no effect on the session.
type Context struct {
	Task       string
	Turn       int
	Transcript []Message
}

// Participant produces the next message of a session.
type Participant interface {
	Name() string
	Respond(ctx context.Context, turn Context) (Message, error)
}

// Transcript is the append-only record of a session.
type Transcript struct {
	messages   []Message
	Terminated bool
	// Forced is set when the turn cap ended the session before any participant
	// mentioned the termination token.
	Forced bool
}

// Messages returns a copy of the messages in turn order.
func (t *Transcript) Messages() []Message {
	return append([]Message(nil), t.messages...)
}

func (t *Transcript) Len() int { return len(t.messages) }

// TurnCount is the number of turns taken, which equals the number of messages.
func (t *Transcript) TurnCount() int { return len(t.messages) }

func (t *Transcript) append(m Message) error {
	if t.Terminated {
		return errors.New("transcript is closed")
	}
	t.messages = append(t.messages, m)
	return nil
}

// Engine runs sessions. It holds no per-session state and may run several
// sessions concurrently.
type Engine struct {
	Participants     []Participant
	TerminationToken string
	TurnCap          int
	Recorder         diag.Recorder
}

func (e Engine) validate() error {
	if len(e.Participants) == 0 {
		return ErrNoParticipants
	}
	if e.TurnCap <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidTurnCap, e.TurnCap)
	}
	if strings.TrimSpace(e.TerminationToken) == "" {
		return ErrNoTerminationToken
	}
	return nil
}

// Run takes turns in cyclic participant order until a message mentions the
// termination token or the turn cap is reached. A participant error or context
// cancellation stops the session and is returned with the transcript so far.
func (e Engine) Run(ctx context.Context, task string) (*Transcript, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	tr := &Transcript{}
	for turn := 0; turn < e.TurnCap; turn++ {
		if err := ctx.Err(); err != nil {
			return tr, err
		}

		p := e.Participants[turn%len(e.Participants)]
		msg, err := p.Respond(ctx, Context{Task: task, Turn: turn, Transcript: tr.Messages()})
		if err != nil {
			return tr, fmt.Errorf("participant %s turn %d: %w", p.Name(), turn, err)
		}

		msg.ID = uuid.New()
		msg.Turn = turn
		if msg.Source == "" {
			msg.Source = p.Name()
		}
		if msg.Kind == "" {
			msg.Kind = KindText
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		if err := tr.append(msg); err != nil {
			return tr, err
		}

		if strings.Contains(msg.Content, e.TerminationToken) {
			tr.Terminated = true
			return tr, nil
		}
	}

	tr.Terminated = true
	tr.Forced = true
	diag.Emit(ctx, e.Recorder, diag.Event{
		Kind:    diag.KindForcedTermination,
		Message: "turn cap reached before termination token",
		Detail:  fmt.Sprintf("%d turns, token %q never mentioned", e.TurnCap, e.TerminationToken),
	})
	return tr, nil
}
