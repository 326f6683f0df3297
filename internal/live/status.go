package live

import (
	"context"
	"database/sql"
)

type WatcherStatus struct {
	Watcher       string `json:"watcher"`
	Status        string `json:"status,omitempty"`
	LastHeartbeat *int64 `json:"last_heartbeat,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	Restarts      int    `json:"restarts,omitempty"`
}

// GetStatuses reads the recorded state of the named watchers.
func GetStatuses(ctx context.Context, db *sql.DB, watchers ...string) []WatcherStatus {
	out := make([]WatcherStatus, 0, len(watchers))
	for _, name := range watchers {
		status, lastHeartbeat, lastError, restarts := readLiveStatus(ctx, db, name)
		out = append(out, WatcherStatus{
			Watcher:       name,
			Status:        status,
			LastHeartbeat: lastHeartbeat,
			LastError:     lastError,
			Restarts:      restarts,
		})
	}
	return out
}
