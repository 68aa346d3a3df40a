// Package syncer turns raw per-project file-change notifications into
// typed domain events, while maintaining a document content cache so
// consumers can read the current known documents without touching the
// filesystem. Errors inside the watch loop are captured per operation
// and re-emitted as typed sync-error events; a single bad file never
// takes down watching for the rest of the project.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/the13nth/roki-vscode-sub004/internal/conflict"
	rokierrors "github.com/the13nth/roki-vscode-sub004/internal/errors"
	"github.com/the13nth/roki-vscode-sub004/internal/event"
	"github.com/the13nth/roki-vscode-sub004/internal/journal"
	"github.com/the13nth/roki-vscode-sub004/internal/project"
	"github.com/the13nth/roki-vscode-sub004/internal/watch"
)

// cachedDocument is one entry in the per-project content cache.
type cachedDocument struct {
	Content     string
	RefreshedAt time.Time
}

// projectSync is the live state for one watched project.
type projectSync struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	cache map[project.DocumentKind]cachedDocument
}

// Bridge orchestrates the change watcher, the content cache, and the
// conflict registry, publishing typed events for every classified
// change. The bridge is the only writer of the cache.
type Bridge struct {
	source   watch.Source
	registry *conflict.Registry
	bus      *event.Bus
	journal  *journal.Journal
	logger   *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectSync
}

// New creates a bridge. registry and jrnl may be nil; bus must not be.
func New(source watch.Source, registry *conflict.Registry, bus *event.Bus, jrnl *journal.Journal, logger *slog.Logger) *Bridge {
	return &Bridge{
		source:   source,
		registry: registry,
		bus:      bus,
		journal:  jrnl,
		logger:   logger,
		projects: make(map[string]*projectSync),
	}
}

// Start begins watching a project's document directory, loads the known
// document set into the cache, and signals sync-started. Starting an
// already-active project fails with ErrSyncActive rather than
// registering a second watch.
func (b *Bridge) Start(ctx context.Context, projectPath string) error {
	pctx, cancel := context.WithCancel(ctx)

	ps := &projectSync{
		cancel: cancel,
		done:   make(chan struct{}),
		cache:  make(map[project.DocumentKind]cachedDocument),
	}

	b.mu.Lock()
	if _, active := b.projects[projectPath]; active {
		b.mu.Unlock()
		cancel()

		return fmt.Errorf("%w: %s", rokierrors.ErrSyncActive, projectPath)
	}

	b.projects[projectPath] = ps
	b.mu.Unlock()

	docDir := project.DocDir(projectPath)

	if err := os.MkdirAll(docDir, 0o755); err != nil {
		b.abortStart(projectPath, cancel)
		err = fmt.Errorf("preparing document root: %w", err)
		b.publishSyncError(projectPath, event.KindSyncStartError, err)

		return err
	}

	ch, err := b.source.Watch(pctx, docDir)
	if err != nil {
		b.abortStart(projectPath, cancel)
		err = fmt.Errorf("starting watch: %w", err)
		b.publishSyncError(projectPath, event.KindSyncStartError, err)

		return err
	}

	b.initialLoad(pctx, ps, projectPath)

	if b.journal != nil {
		if err := b.journal.SetSyncMark(projectPath, true); err != nil {
			b.logger.Warn("journaling sync start", slog.String("project", projectPath), slog.String("error", err.Error()))
		}
	}

	b.bus.Publish(event.SyncStarted{Meta: event.NewMeta(projectPath)})
	b.logger.Info("sync started", slog.String("project", projectPath))

	go b.run(ps, projectPath, ch)

	return nil
}

// initialLoad fills the cache with every well-known document that exists
// on disk. Documents are loaded concurrently; a missing document is not
// an error, an unreadable one becomes a sync-start error event.
func (b *Bridge) initialLoad(ctx context.Context, ps *projectSync, projectPath string) {
	g, _ := errgroup.WithContext(ctx)

	for _, kind := range project.DocumentKinds {
		kind := kind
		g.Go(func() error {
			path := project.DocumentPath(projectPath, kind)

			data, err := os.ReadFile(path)
			if err != nil {
				if !os.IsNotExist(err) {
					b.publishSyncError(projectPath, event.KindSyncStartError,
						fmt.Errorf("loading %s: %w", kind, err))
				}

				return nil
			}

			ps.mu.Lock()
			ps.cache[kind] = cachedDocument{Content: string(data), RefreshedAt: time.Now()}
			ps.mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()
}

// run consumes the change stream until the source closes it.
func (b *Bridge) run(ps *projectSync, projectPath string, ch <-chan watch.Change) {
	defer close(ps.done)

	for change := range ch {
		b.handleChange(ps, projectPath, change)
	}
}

// handleChange classifies one raw change and dispatches it.
func (b *Bridge) handleChange(ps *projectSync, projectPath string, change watch.Change) {
	kind, rel, ok := project.Classify(projectPath, change.Path)
	if !ok {
		b.logger.Debug("ignoring unclassified change",
			slog.String("path", change.Path),
			slog.String("op", change.Op.String()),
		)

		return
	}

	if kind == project.KindContext {
		b.handleContextChange(projectPath, rel, change)
		return
	}

	switch change.Op {
	case watch.OpAdd, watch.OpChange:
		b.handleDocumentChange(ps, projectPath, kind, rel, change.Path)

	case watch.OpUnlink:
		// A deleted document leaves no content to publish; evict the
		// cache entry so reads reflect reality.
		ps.mu.Lock()
		delete(ps.cache, kind)
		ps.mu.Unlock()

		b.logger.Info("document removed",
			slog.String("project", projectPath),
			slog.String("document", string(kind)),
		)

	default:
		b.logger.Debug("ignoring document op",
			slog.String("path", change.Path),
			slog.String("op", change.Op.String()),
		)
	}
}

// handleDocumentChange re-reads the document, runs the staleness check,
// refreshes the cache, and emits document-updated (plus
// progress-updated for tasks changes).
func (b *Bridge) handleDocumentChange(ps *projectSync, projectPath string, kind project.DocumentKind, rel, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		b.publishSyncError(projectPath, event.KindDocumentSyncError,
			fmt.Errorf("reading %s: %w", rel, err))

		return
	}

	if kind == project.KindConfig {
		if err := project.ValidateConfig(data); err != nil {
			b.publishSyncError(projectPath, event.KindDocumentSyncError,
				fmt.Errorf("parsing %s: %w", rel, err))

			return
		}

		if name := project.ConfigName(data); name != "" {
			b.logger.Debug("project config updated",
				slog.String("project", projectPath),
				slog.String("name", name),
			)
		}
	}

	content := string(data)

	// Staleness check: a cached copy that no longer matches disk means
	// the file changed underneath the last known content. The registry
	// decides whether that is a conflict.
	ps.mu.Lock()
	prev, hadPrev := ps.cache[kind]
	ps.mu.Unlock()

	if b.registry != nil && hadPrev && prev.Content != content {
		if _, err := b.registry.Detect(projectPath, rel, path, prev.Content, prev.RefreshedAt); err != nil {
			b.publishSyncError(projectPath, event.KindSyncCheckError,
				fmt.Errorf("checking %s for conflicts: %w", rel, err))
		}
	}

	ps.mu.Lock()
	ps.cache[kind] = cachedDocument{Content: content, RefreshedAt: time.Now()}
	ps.mu.Unlock()

	b.bus.Publish(event.DocumentUpdated{
		Meta:     event.NewMeta(projectPath),
		Document: string(kind),
		FilePath: path,
		Content:  content,
	})

	if kind == project.KindTasks {
		b.recomputeProgress(projectPath, content)
	}
}

// recomputeProgress re-parses task checkboxes, persists the totals, and
// emits progress-updated.
func (b *Bridge) recomputeProgress(projectPath, tasksContent string) {
	p := project.ParseProgress(tasksContent)

	if err := project.WriteProgress(projectPath, p); err != nil {
		b.publishSyncError(projectPath, event.KindProgressSyncError,
			fmt.Errorf("persisting progress: %w", err))

		return
	}

	b.bus.Publish(event.ProgressUpdated{
		Meta:       event.NewMeta(projectPath),
		Total:      p.Total,
		Completed:  p.Completed,
		Percentage: p.Percentage,
	})
}

// handleContextChange maps a context-directory change onto an
// added/modified/removed asset event.
func (b *Bridge) handleContextChange(projectPath, rel string, change watch.Change) {
	var action string

	switch change.Op {
	case watch.OpAdd, watch.OpAddDir:
		action = "added"
	case watch.OpChange:
		action = "modified"
	case watch.OpUnlink, watch.OpUnlinkDir:
		action = "removed"
	default:
		b.publishSyncError(projectPath, event.KindContextSyncError,
			fmt.Errorf("unrecognized context change op %q for %s", change.Op, rel))

		return
	}

	b.bus.Publish(event.ContextAssetUpdated{
		Meta:   event.NewMeta(projectPath),
		Asset:  assetName(rel),
		Action: action,
		Path:   change.Path,
	})
}

// Stop ends watching for a project, evicts its cache entries, and
// signals sync-stopped.
func (b *Bridge) Stop(projectPath string) error {
	b.mu.Lock()
	ps, ok := b.projects[projectPath]
	if ok {
		delete(b.projects, projectPath)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", rokierrors.ErrSyncNotActive, projectPath)
	}

	ps.cancel()
	<-ps.done

	if b.journal != nil {
		if err := b.journal.SetSyncMark(projectPath, false); err != nil {
			b.logger.Warn("journaling sync stop", slog.String("project", projectPath), slog.String("error", err.Error()))
		}
	}

	b.bus.Publish(event.SyncStopped{Meta: event.NewMeta(projectPath)})
	b.logger.Info("sync stopped", slog.String("project", projectPath))

	return nil
}

// StopAll stops every active project watch.
func (b *Bridge) StopAll() {
	b.mu.Lock()
	paths := make([]string, 0, len(b.projects))

	for path := range b.projects {
		paths = append(paths, path)
	}
	b.mu.Unlock()

	for _, path := range paths {
		if err := b.Stop(path); err != nil {
			b.logger.Warn("stopping sync", slog.String("project", path), slog.String("error", err.Error()))
		}
	}
}

// IsActive reports whether sync is running for a project.
func (b *Bridge) IsActive(projectPath string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.projects[projectPath]

	return ok
}

// CachedDocument returns the last known content of a document, without
// touching the filesystem. Returns ok=false when the document was never
// loaded or sync is not active for the project.
func (b *Bridge) CachedDocument(projectPath string, kind project.DocumentKind) (string, bool) {
	b.mu.Lock()
	ps, ok := b.projects[projectPath]
	b.mu.Unlock()

	if !ok {
		return "", false
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	doc, ok := ps.cache[kind]
	if !ok {
		return "", false
	}

	return doc.Content, true
}

// abortStart rolls back a failed Start.
func (b *Bridge) abortStart(projectPath string, cancel context.CancelFunc) {
	cancel()

	b.mu.Lock()
	delete(b.projects, projectPath)
	b.mu.Unlock()
}

func (b *Bridge) publishSyncError(projectPath string, kind event.SyncErrorKind, err error) {
	b.bus.Publish(event.SyncError{
		Meta: event.NewMeta(projectPath),
		Kind: kind,
		Err:  err.Error(),
	})

	b.logger.Warn("sync error",
		slog.String("project", projectPath),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
}

// assetName extracts the asset name from a context-relative path.
func assetName(rel string) string {
	// rel is like "context/notes/api.md"; the asset name is the final
	// path element.
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			return rel[i+1:]
		}
	}

	return rel
}
