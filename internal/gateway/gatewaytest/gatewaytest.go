// Package gatewaytest provides scripted gateways for tests.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/MikeSquared-Agency/scribe/internal/gateway"
)

// ErrExhausted is returned once a Script has handed out every reply.
var ErrExhausted = errors.New("gatewaytest: script exhausted")

// Step is one scripted answer.
type Step struct {
	Reply gateway.Reply
	Err   error
}

// Script answers calls in order and records every prompt it receives.
type Script struct {
	mu      sync.Mutex
	steps   []Step
	prompts []string
}

func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Texts builds a script of successful plain-text replies.
func Texts(texts ...string) *Script {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = Step{Reply: gateway.Reply{Text: t}}
	}
	return NewScript(steps...)
}

func (s *Script) Generate(ctx context.Context, prompt string) (gateway.Reply, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Reply{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.steps) == 0 {
		return gateway.Reply{}, ErrExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Reply, step.Err
}

// Prompts returns a copy of the prompts received so far.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Calls returns the number of Generate calls.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
