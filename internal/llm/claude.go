package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

const claudeDefaultMaxTokens = 1000

type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

func NewClaudeClient(apiKey, model, baseURL string) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}
	temperature := float32(opts.Temperature)
	req := anthropic.MessagesRequest{
		Model:  anthropic.Model(c.model),
		System: opts.System,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens:     maxTokens,
		StopSequences: opts.Stop,
		Temperature:   &temperature,
	}
	// top_p is only sent when it actually truncates.
	if opts.TopP > 0 && opts.TopP < 1 {
		topP := float32(opts.TopP)
		req.TopP = &topP
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, part := range resp.Content {
		if part.Text != nil {
			sb.WriteString(*part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no response content: %w", ErrEmptyResponse)
	}
	return strings.TrimSpace(sb.String()), nil
}
