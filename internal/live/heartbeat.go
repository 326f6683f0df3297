package live

import (
	"context"
	"time"
)

// keepBeating calls beat every interval until ctx ends. The returned
// function stops it early and waits for the last beat to finish.
func keepBeating(ctx context.Context, interval time.Duration, beat func()) (stop func()) {
	if interval <= 0 || beat == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				beat()
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
