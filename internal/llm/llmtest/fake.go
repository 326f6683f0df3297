// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/Napageneral/journai/internal/llm"
)

// Call records one Generate invocation.
type Call struct {
	Prompt string
	Opts   llm.Options
}

// Fake answers prompts from a script. Respond takes precedence; otherwise
// Replies are matched by substring of the prompt, then Default is used.
type Fake struct {
	Respond func(prompt string, opts llm.Options) (string, error)
	Replies map[string]string
	Default string
	Err     error
	// Block, when set, holds every call until it is closed or ctx ends.
	Block chan struct{}

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt, Opts: opts})
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Respond != nil {
		return f.Respond(prompt, opts)
	}
	if f.Err != nil {
		return "", f.Err
	}
	for key, reply := range f.Replies {
		if strings.Contains(prompt, key) {
			return reply, nil
		}
	}
	return f.Default, nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// AnalyzerKey is the prompt marker of an analyzer, for use in Replies.
func AnalyzerKey(name string) string {
	return `Key "` + name + `"`
}
