// Package openai is the gateway for OpenAI and OpenAI-compatible chat endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MikeSquared-Agency/scribe/internal/gateway"
)

type Client struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewClient builds a client. An empty baseURL uses the public OpenAI endpoint.
// Retries are left to the gateway decorator.
func NewClient(apiKey, baseURL, model string, maxTokens int) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *Client) Generate(ctx context.Context, prompt string) (gateway.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(c.model),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return gateway.Reply{}, &gateway.StatusError{
				Provider: "openai",
				Code:     apiErr.StatusCode,
				Type:     apiErr.Type,
				Message:  apiErr.Message,
			}
		}
		return gateway.Reply{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return gateway.Reply{}, gateway.ErrEmptyReply
	}

	return gateway.Reply{
		Text: resp.Choices[0].Message.Content,
		Usage: &gateway.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}
