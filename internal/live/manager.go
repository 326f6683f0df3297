// Package live runs long-lived background watchers (the journal inbox) and
// restarts them with backoff when they fail. Status, heartbeats and restart
// counts are kept in the state table so the CLI can report them.
package live

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Napageneral/journai/internal/logger"
)

type WatcherSpec struct {
	Name string
	Run  func(ctx context.Context, beat func()) error
}

type Manager struct {
	DB                *sql.DB
	Specs             []WatcherSpec
	HeartbeatInterval time.Duration
	RestartBackoff    time.Duration
	MaxBackoff        time.Duration
	Log               *logger.Logger
}

func NewManager(db *sql.DB, log *logger.Logger, specs ...WatcherSpec) *Manager {
	return &Manager{
		DB:                db,
		Specs:             specs,
		HeartbeatInterval: 10 * time.Second,
		RestartBackoff:    3 * time.Second,
		MaxBackoff:        30 * time.Second,
		Log:               logger.OrNop(log),
	}
}

// Run starts every watcher and blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.Specs) == 0 {
		return fmt.Errorf("no live watchers enabled")
	}

	done := make(chan struct{}, len(m.Specs))
	for _, spec := range m.Specs {
		spec := spec
		go func() {
			m.runWatcher(ctx, spec)
			done <- struct{}{}
		}()
	}

	<-ctx.Done()
	for range m.Specs {
		<-done
	}
	return nil
}

func (m *Manager) runWatcher(ctx context.Context, spec WatcherSpec) {
	backoff := m.RestartBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := m.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	log := m.Log.With("watcher", spec.Name)

	for {
		if ctx.Err() != nil {
			setLiveStatus(m.DB, spec.Name, statusStopped)
			return
		}

		setLiveStatus(m.DB, spec.Name, statusRunning)
		setLiveError(m.DB, spec.Name, nil)
		beat := func() { setLiveHeartbeat(m.DB, spec.Name, time.Now()) }
		beat()

		err := spec.Run(ctx, beat)
		if ctx.Err() != nil {
			setLiveStatus(m.DB, spec.Name, statusStopped)
			return
		}

		setLiveStatus(m.DB, spec.Name, statusError)
		setLiveError(m.DB, spec.Name, err)
		incrementLiveRestarts(m.DB, spec.Name)
		log.Warn("watcher stopped, restarting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			setLiveStatus(m.DB, spec.Name, statusStopped)
			return
		}

		backoff = backoff * 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
