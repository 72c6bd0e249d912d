package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyReply is returned when a provider answers without any text.
	ErrEmptyReply = errors.New("empty reply")
	// ErrCall marks an error as a failed model call, as opposed to a local fault.
	ErrCall = errors.New("model call failed")
)

// Wrap marks err as a failed model call. It returns nil for nil and leaves
// already marked errors alone.
func Wrap(err error) error {
	if err == nil || errors.Is(err, ErrCall) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCall, err)
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Reply is the text a model returned for one prompt. Usage is nil when the provider
// does not report it.
type Reply struct {
	Text  string
	Usage *Usage
}

// Gateway sends one prompt to a language model and returns its reply.
// Implementations must be safe for concurrent use.
type Gateway interface {
	Generate(ctx context.Context, prompt string) (Reply, error)
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, prompt string) (Reply, error)

func (f Func) Generate(ctx context.Context, prompt string) (Reply, error) {
	return f(ctx, prompt)
}

// StatusError is a non-success HTTP answer from a provider.
type StatusError struct {
	Provider string
	Code     int
	Type     string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s api error %d: %s: %s", e.Provider, e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.Code, e.Message)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout || e.Code >= 500
}

// IsRetryable classifies an error returned by a Gateway. Status errors decide for
// themselves, cancellation and empty replies are final, and anything else is treated
// as a transient transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyReply) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
