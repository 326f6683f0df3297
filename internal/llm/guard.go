package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Napageneral/journai/internal/logger"
)

// Guard allows one generation at a time. Conversational callers use
// TryGenerate and get ErrBusy while another call runs; background analysis
// uses Generate and queues. Each call gets its own timeout, and the slot is
// released on every exit path.
type Guard struct {
	gen     Generator
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *logger.Logger
}

// NewGuard wraps gen. timeout <= 0 disables the per-call deadline.
func NewGuard(gen Generator, timeout time.Duration, log *logger.Logger) *Guard {
	if gen == nil {
		gen = Disabled{}
	}
	return &Guard{
		gen:     gen,
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
		log:     logger.OrNop(log),
	}
}

// TryGenerate runs the call only if no other generation is in flight.
func (g *Guard) TryGenerate(ctx context.Context, prompt string, opts Options) (string, error) {
	if !g.sem.TryAcquire(1) {
		return "", ErrBusy
	}
	defer g.sem.Release(1)
	return g.call(ctx, prompt, opts)
}

// Generate waits for the slot (or ctx) and then runs the call.
func (g *Guard) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer g.sem.Release(1)
	return g.call(ctx, prompt, opts)
}

// Busy reports whether a generation currently holds the slot.
func (g *Guard) Busy() bool {
	if g.sem.TryAcquire(1) {
		g.sem.Release(1)
		return false
	}
	return true
}

func (g *Guard) call(ctx context.Context, prompt string, opts Options) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.gen.Generate(ctx, prompt, opts)
	if err != nil {
		g.log.Warn("generation failed", "error", err, "elapsed", time.Since(start))
		if errors.Is(err, ErrUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	g.log.Debug("generation done", "chars", len(out), "elapsed", time.Since(start))
	return out, nil
}
