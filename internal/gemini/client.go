// Package gemini is the Google Gemini model gateway.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MikeSquared-Agency/scribe/internal/gateway"
)

type Client struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// Option adjusts the underlying genai client configuration.
type Option func(*genai.ClientConfig)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPClient = hc
	}
}

func NewClient(ctx context.Context, apiKey, model string, maxTokens int, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client, model: model, maxTokens: maxTokens}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (gateway.Reply, error) {
	var config *genai.GenerateContentConfig
	if c.maxTokens > 0 {
		config = &genai.GenerateContentConfig{MaxOutputTokens: int32(c.maxTokens)}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return gateway.Reply{}, &gateway.StatusError{
				Provider: "gemini",
				Code:     apiErr.Code,
				Type:     apiErr.Status,
				Message:  apiErr.Message,
			}
		}
		return gateway.Reply{}, fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return gateway.Reply{}, gateway.ErrEmptyReply
	}

	reply := gateway.Reply{Text: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		reply.Usage = &gateway.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
		}
	}
	return reply, nil
}
