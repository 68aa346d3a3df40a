// Package watch is the boundary to the platform file-watch facility. It
// exposes a narrow Source interface yielding raw path-change
// notifications, so the engine can be driven by a synthetic source in
// tests and by fsnotify in production.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the raw change kind reported for a path.
type Op int

const (
	OpAdd Op = iota
	OpChange
	OpUnlink
	OpAddDir
	OpUnlinkDir
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpUnlink:
		return "unlink"
	case OpAddDir:
		return "add-dir"
	case OpUnlinkDir:
		return "unlink-dir"
	default:
		return "unknown"
	}
}

// Change is one raw file-change notification.
type Change struct {
	Path string
	Op   Op
}

// Source delivers change notifications for a directory tree. The
// returned channel is closed when the context is cancelled or the
// underlying facility fails.
type Source interface {
	Watch(ctx context.Context, dir string) (<-chan Change, error)
}

const (
	// debounceInterval is how often pending write events are flushed.
	debounceInterval = 200 * time.Millisecond

	// settleDelay is how long a path must be quiet before its coalesced
	// event is delivered. Batches rapid editor writes into one change.
	settleDelay = 150 * time.Millisecond

	changeBuffer = 64
)

// FSSource watches directories with fsnotify. Subdirectories are watched
// recursively, including ones created after the watch starts.
type FSSource struct {
	logger *slog.Logger
}

// NewFSSource creates an fsnotify-backed change source.
func NewFSSource(logger *slog.Logger) *FSSource {
	return &FSSource{logger: logger}
}

// Watch starts watching dir and returns the change stream.
func (s *FSSource) Watch(ctx context.Context, dir string) (<-chan Change, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	dirs := map[string]bool{}

	if err := addRecursive(watcher, dir, dirs); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	ch := make(chan Change, changeBuffer)

	go s.run(ctx, watcher, dirs, ch)

	return ch, nil
}

type pendingChange struct {
	op   Op
	seen time.Time
}

func (s *FSSource) run(ctx context.Context, watcher *fsnotify.Watcher, dirs map[string]bool, out chan<- Change) {
	defer watcher.Close()
	defer close(out)

	// Debounce: batch rapid writes into a single change per file.
	pending := make(map[string]pendingChange)

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			s.handleEvent(ev, watcher, dirs, pending, out, ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			// fsnotify errors are non-fatal (e.g. too many watches).
			s.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()

			for path, pc := range pending {
				if now.Sub(pc.seen) < settleDelay {
					continue
				}

				delete(pending, path)
				deliver(ctx, out, Change{Path: path, Op: pc.op})
			}
		}
	}
}

func (s *FSSource) handleEvent(ev fsnotify.Event, watcher *fsnotify.Watcher, dirs map[string]bool, pending map[string]pendingChange, out chan<- Change, ctx context.Context) {
	if shouldIgnore(ev.Name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		// A new directory must be watched so files created inside it are
		// seen. Lstat avoids following symlinks out of the tree.
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
			if err := addRecursive(watcher, ev.Name, dirs); err != nil {
				s.logger.Warn("watching new directory", slog.String("dir", ev.Name), slog.String("error", err.Error()))
			}

			deliver(ctx, out, Change{Path: ev.Name, Op: OpAddDir})

			return
		}

		pending[ev.Name] = pendingChange{op: OpAdd, seen: time.Now()}

		return
	}

	if ev.Has(fsnotify.Write) {
		pc, exists := pending[ev.Name]
		if exists && pc.op == OpAdd {
			// A write right after create is still an add.
			pending[ev.Name] = pendingChange{op: OpAdd, seen: time.Now()}
		} else {
			pending[ev.Name] = pendingChange{op: OpChange, seen: time.Now()}
		}

		return
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// For rename, fsnotify fires Remove on the old path; the new
		// path fires Create separately.
		delete(pending, ev.Name)

		op := OpUnlink
		if dirs[ev.Name] {
			op = OpUnlinkDir

			delete(dirs, ev.Name)
			_ = watcher.Remove(ev.Name)
		}

		deliver(ctx, out, Change{Path: ev.Name, Op: op})
	}
}

// deliver sends a change unless the context is already cancelled.
func deliver(ctx context.Context, out chan<- Change, c Change) {
	select {
	case out <- c:
	case <-ctx.Done():
	}
}

// addRecursive walks dir and adds every non-hidden directory to the
// watcher, tracking them in dirs so unlinks can be classified later.
func addRecursive(watcher *fsnotify.Watcher, dir string, dirs map[string]bool) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		// The watch root itself may be hidden (.ai-project); only skip
		// hidden directories below it.
		if path != dir {
			if name := d.Name(); strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}

		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			return err
		}

		dirs[path] = true

		return nil
	})
}

// shouldIgnore filters hidden paths, editor temp files, and our own
// atomic-write temps. The backup directory is hidden, so backup churn
// never reaches the change stream.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}

	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return true
	}

	// Atomic write temp files: <name>.tmp.<epoch-ms>.
	if strings.Contains(base, ".tmp.") {
		return true
	}

	return false
}
