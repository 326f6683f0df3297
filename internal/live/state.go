package live

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/Napageneral/journai/internal/state"
)

const (
	statusRunning = "running"
	statusStopped = "stopped"
	statusError   = "error"
)

const (
	keyLiveStatus        = "live_status"
	keyLiveLastHeartbeat = "live_last_heartbeat"
	keyLiveLastError     = "live_last_error"
	keyLiveRestarts      = "live_restarts"
)

func namespace(watcher string) string { return "live:" + watcher }

// Status writes are best effort; a failing state table must not stop a watcher.
func setLiveStatus(db *sql.DB, watcher, status string) {
	_ = state.Set(context.Background(), db, namespace(watcher), keyLiveStatus, status)
}

func setLiveHeartbeat(db *sql.DB, watcher string, t time.Time) {
	_ = state.Set(context.Background(), db, namespace(watcher), keyLiveLastHeartbeat, fmt.Sprintf("%d", t.Unix()))
}

func setLiveError(db *sql.DB, watcher string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = state.Set(context.Background(), db, namespace(watcher), keyLiveLastError, msg)
}

func incrementLiveRestarts(db *sql.DB, watcher string) {
	ctx := context.Background()
	v, ok, err := state.Get(ctx, db, namespace(watcher), keyLiveRestarts)
	if err != nil {
		return
	}
	cur := 0
	if ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cur = n
		}
	}
	_ = state.Set(ctx, db, namespace(watcher), keyLiveRestarts, fmt.Sprintf("%d", cur+1))
}

func readLiveStatus(ctx context.Context, db *sql.DB, watcher string) (status string, lastHeartbeat *int64, lastError string, restarts int) {
	ns := namespace(watcher)
	if v, ok, _ := state.Get(ctx, db, ns, keyLiveStatus); ok {
		status = v
	}
	if v, ok, _ := state.Get(ctx, db, ns, keyLiveLastHeartbeat); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastHeartbeat = &n
		}
	}
	if v, ok, _ := state.Get(ctx, db, ns, keyLiveLastError); ok {
		lastError = v
	}
	if v, ok, _ := state.Get(ctx, db, ns, keyLiveRestarts); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			restarts = n
		}
	}
	return status, lastHeartbeat, lastError, restarts
}
