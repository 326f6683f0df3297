// Package llm is the text generation capability: given a prompt and sampling
// options it returns raw text. Providers are thin adapters over the vendor
// SDKs; Guard serializes calls so only one generation runs at a time.
package llm

import (
	"context"
	"errors"
)

// Options are the sampling parameters of one generation call. Zero values
// mean "provider default" except Temperature, which is always sent.
type Options struct {
	System            string   `json:"system,omitempty"`
	MaxTokens         int      `json:"max_tokens,omitempty"`
	Temperature       float64  `json:"temperature"`
	TopP              float64  `json:"top_p,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
	Stop              []string `json:"stop,omitempty"`
}

// AnalysisOptions are the deterministic settings used for extraction prompts.
func AnalysisOptions(maxTokens int) Options {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return Options{MaxTokens: maxTokens, Temperature: 0, TopP: 1}
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

var (
	// ErrUnavailable wraps every failure of the underlying provider.
	ErrUnavailable = errors.New("text generation unavailable")
	// ErrBusy is returned when another generation holds the lock.
	ErrBusy = errors.New("a generation is already in progress, try again later")
	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Disabled is the generator of provider "none": every call is unavailable.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, Options) (string, error) {
	return "", ErrUnavailable
}
