package live

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Napageneral/journai/internal/analysis"
	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/journal"
	"github.com/Napageneral/journai/internal/logger"
	"github.com/Napageneral/journai/internal/state"
)

// InboxWatcherName is the name the inbox watcher reports status under.
const InboxWatcherName = "inbox"

const inboxNamespace = "inbox"

// Inbox turns text files dropped into a directory into journal entries.
// A file is imported again only when its content hash changes.
type Inbox struct {
	Dir        string
	Extensions []string
	Debounce   time.Duration

	conn    db.Querier
	journal *journal.Journal
	runner  *analysis.Runner
	log     *logger.Logger

	mu sync.Mutex
}

// NewInbox creates an Inbox. runner may be nil to import without analysis.
func NewInbox(dir string, extensions []string, conn db.Querier, j *journal.Journal, runner *analysis.Runner, log *logger.Logger) *Inbox {
	return &Inbox{
		Dir:        dir,
		Extensions: extensions,
		Debounce:   2 * time.Second,
		conn:       conn,
		journal:    j,
		runner:     runner,
		log:        logger.OrNop(log).With("watcher", InboxWatcherName),
	}
}

func (in *Inbox) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(in.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range in.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// ImportResult describes what happened to one file.
type ImportResult struct {
	Path     string `json:"path"`
	EntryID  int64  `json:"entry_id,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Analyzed bool   `json:"analyzed,omitempty"`
}

// ImportFile imports path unless its current content was imported before.
// Analysis failures are logged; the entry stays imported.
func (in *Inbox) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	res := ImportResult{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	prev, ok, err := state.Get(ctx, in.conn, inboxNamespace, path)
	if err != nil {
		return res, err
	}
	if ok && prev == hash {
		res.Skipped = true
		return res, nil
	}
	if strings.TrimSpace(string(data)) == "" {
		res.Skipped = true
		return res, nil
	}

	scope, err := in.journal.Today(ctx)
	if err != nil {
		return res, err
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	remember := func(ctx context.Context, q db.Querier, _ *journal.Entry) error {
		return state.Set(ctx, q, inboxNamespace, path, hash)
	}
	entry, err := in.journal.ImportEntry(ctx, scope, title, string(data), path, remember)
	if err != nil {
		return res, err
	}
	res.EntryID = entry.ID
	in.log.Info("inbox file imported", "path", path, "entry_id", entry.ID)

	if in.runner != nil {
		report, err := in.runner.AnalyzeAll(ctx, entry.ID)
		if err != nil {
			in.log.Warn("inbox analysis failed", "entry_id", entry.ID, "error", err, "retryable", apierr.Retryable(err))
			return res, nil
		}
		res.Analyzed = true
		if len(report.Failed) > 0 {
			in.log.Warn("inbox analysis incomplete", "entry_id", entry.ID, "failed", len(report.Failed))
		}
	}
	return res, nil
}

// Scan imports every accepted file in the directory, in name order.
func (in *Inbox) Scan(ctx context.Context) ([]ImportResult, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	dirents, err := os.ReadDir(in.Dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox %s: %w", in.Dir, err)
	}
	var paths []string
	for _, d := range dirents {
		if d.Type().IsRegular() && in.accepts(d.Name()) {
			paths = append(paths, filepath.Join(in.Dir, d.Name()))
		}
	}
	sort.Strings(paths)

	var out []ImportResult
	for _, p := range paths {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := in.ImportFile(ctx, p)
		if err != nil {
			in.log.Warn("inbox import failed", "path", p, "error", err)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Watcher returns the spec the Manager runs: an initial scan, then a
// debounced rescan after every change in the directory.
func (in *Inbox) Watcher(heartbeatInterval time.Duration) WatcherSpec {
	return WatcherSpec{
		Name: InboxWatcherName,
		Run: func(ctx context.Context, beat func()) error {
			if err := os.MkdirAll(in.Dir, 0o755); err != nil {
				return fmt.Errorf("create inbox: %w", err)
			}
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Add(in.Dir); err != nil {
				return fmt.Errorf("watch %s: %w", in.Dir, err)
			}
			in.log.Info("watching inbox", "dir", in.Dir, "debounce", in.Debounce)

			defer keepBeating(ctx, heartbeatInterval, beat)()

			scan := func() {
				beat()
				if _, err := in.Scan(ctx); err != nil && ctx.Err() == nil {
					in.log.Warn("inbox scan failed", "error", err)
				}
			}
			scan()

			var debounceTimer *time.Timer
			defer func() {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return fmt.Errorf("inbox watcher closed")
					}
					if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
						continue
					}
					if !in.accepts(event.Name) {
						continue
					}
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(in.Debounce, scan)
				case err, ok := <-watcher.Errors:
					if !ok {
						return fmt.Errorf("inbox watcher closed")
					}
					return fmt.Errorf("watch inbox: %w", err)
				}
			}
		},
	}
}
