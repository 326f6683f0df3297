package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to OpenAI or any server exposing the OpenAI chat API
// (ollama, llama.cpp server).
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	var messages []openai.ChatCompletionMessage
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: openAITemperature(opts.Temperature),
		TopP:        float32(opts.TopP),
		Stop:        opts.Stop,
	}
	if opts.RepetitionPenalty > 0 {
		req.FrequencyPenalty = float32(repetitionToFrequency(opts.RepetitionPenalty))
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices: %w", ErrEmptyResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// openAITemperature keeps an explicit 0 on the wire: the request field is
// omitempty, and servers treat a missing temperature as their default.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// repetitionToFrequency maps a llama-style multiplicative repetition penalty
// (1.0 = off) onto OpenAI's additive frequency penalty in [-2, 2].
func repetitionToFrequency(rp float64) float64 {
	return math.Max(-2, math.Min(2, rp-1))
}
