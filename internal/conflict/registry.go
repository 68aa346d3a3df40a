// Package conflict tracks open disagreements between the content a
// caller intends to write and what is currently on disk, and resolves
// them with a backup-first, atomic-write workflow. Open conflicts live
// only in memory; they do not survive a process restart.
package conflict

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/the13nth/roki-vscode-sub004/internal/backup"
	rokierrors "github.com/the13nth/roki-vscode-sub004/internal/errors"
	"github.com/the13nth/roki-vscode-sub004/internal/event"
	"github.com/the13nth/roki-vscode-sub004/internal/journal"
	"github.com/the13nth/roki-vscode-sub004/internal/merge"
	"github.com/the13nth/roki-vscode-sub004/internal/project"
)

// Type tags why a conflict was opened.
type Type string

const (
	TypeSimultaneousEdit Type = "simultaneous-edit"
	TypeExternalChange   Type = "external-change"
	TypeVersionMismatch  Type = "version-mismatch"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
	StrategyMerge  Strategy = "merge"
	StrategyManual Strategy = "manual"
)

// FileConflict is one unresolved disagreement over a single file.
type FileConflict struct {
	ID            string
	FilePath      string
	ProjectPath   string
	RelPath       string
	LocalContent  string
	RemoteContent string
	// BaseContent is the last backup's content, when one exists. HasBase
	// distinguishes "empty base" from "no base"; without a base the merge
	// strategy falls back to a two-way merge.
	BaseContent   string
	HasBase       bool
	LocalModTime  time.Time
	RemoteModTime time.Time
	Type          Type
	Description   string
}

// Resolution records how a conflict was closed. Created once, immutable,
// emitted as an event and then discarded; the registry does not retain it.
type Resolution struct {
	ConflictID      string
	Strategy        Strategy
	ResolvedContent string
	ResolvedBy      string
	ResolvedAt      time.Time
}

// Registry owns all open FileConflict records. At most one open conflict
// exists per file path: a new detection for a path replaces the prior
// entry rather than duplicating it.
type Registry struct {
	mu        sync.Mutex
	open      map[string]*FileConflict // by conflict id
	byPath    map[string]string        // file path -> conflict id
	resolving map[string]bool          // conflict ids with a resolution in flight

	backups *backup.Store
	bus     *event.Bus
	journal *journal.Journal
	logger  *slog.Logger
}

// NewRegistry creates a registry. bus and jrnl may be nil.
func NewRegistry(backups *backup.Store, bus *event.Bus, jrnl *journal.Journal, logger *slog.Logger) *Registry {
	return &Registry{
		open:      make(map[string]*FileConflict),
		byPath:    make(map[string]string),
		resolving: make(map[string]bool),
		backups:   backups,
		bus:       bus,
		journal:   jrnl,
		logger:    logger,
	}
}

// Detect checks whether writing proposedContent to path would clobber a
// newer on-disk version. A file that does not exist yet cannot conflict.
// When lastKnown is non-zero and the on-disk modification time is
// strictly newer, a conflict is opened: local is the proposed content,
// remote is what is on disk, and the base (when a backup exists) enables
// a three-way merge later. Returns nil when there is no conflict.
func (r *Registry) Detect(projectPath, relPath, path, proposedContent string, lastKnown time.Time) (*FileConflict, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // a new file cannot conflict
		}

		return nil, fmt.Errorf("checking %s: %w", path, err)
	}

	if lastKnown.IsZero() || !info.ModTime().After(lastKnown) {
		return nil, nil
	}

	remoteBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading current content of %s: %w", path, err)
	}

	remoteContent := string(remoteBytes)

	c := &FileConflict{
		ID:            uuid.NewString(),
		FilePath:      path,
		ProjectPath:   projectPath,
		RelPath:       relPath,
		LocalContent:  proposedContent,
		RemoteContent: remoteContent,
		LocalModTime:  lastKnown,
		RemoteModTime: info.ModTime(),
		Type:          TypeSimultaneousEdit,
		Description: fmt.Sprintf("%s changed on disk after the local edit began: %s",
			relPath, merge.Summary(proposedContent, remoteContent)),
	}

	// Absence of a backup is tolerated; resolution falls back to a
	// two-way merge.
	if latest, ok, err := r.backups.Latest(path); err == nil && ok {
		if base, err := os.ReadFile(latest.BackupPath); err == nil {
			c.BaseContent = string(base)
			c.HasBase = true
		}
	}

	r.register(c)

	if r.bus != nil {
		r.bus.Publish(event.ConflictDetected{
			Meta:       event.NewMeta(projectPath),
			ConflictID: c.ID,
			FilePath:   path,
			Type:       string(c.Type),
		})
	}

	r.logger.Info("conflict detected",
		slog.String("id", c.ID),
		slog.String("path", path),
		slog.String("type", string(c.Type)),
	)

	return c, nil
}

// register stores a conflict, replacing any prior open conflict for the
// same file path.
func (r *Registry) register(c *FileConflict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevID, ok := r.byPath[c.FilePath]; ok {
		delete(r.open, prevID)
		delete(r.resolving, prevID)
	}

	r.open[c.ID] = c
	r.byPath[c.FilePath] = c.ID
}

// Resolve closes a conflict. The current on-disk file is always backed
// up first; if that backup fails the resolution aborts and the conflict
// stays open. Resolved content is written atomically, the conflict is
// removed from the open set, and the resolution is returned. Concurrent
// Resolve calls for the same conflict id cannot both succeed.
func (r *Registry) Resolve(conflictID string, strategy Strategy, manualContent, resolvedBy string) (*Resolution, error) {
	c, err := r.claim(conflictID)
	if err != nil {
		return nil, err
	}
	defer r.release(conflictID)

	res, err := r.resolve(c, strategy, manualContent, resolvedBy)
	if err != nil {
		if r.bus != nil {
			r.bus.Publish(event.ResolutionError{
				Meta:       event.NewMeta(c.ProjectPath),
				ConflictID: conflictID,
				Err:        err.Error(),
			})
		}

		r.logger.Warn("resolution failed",
			slog.String("id", conflictID),
			slog.String("strategy", string(strategy)),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	r.remove(c)

	if r.bus != nil {
		r.bus.Publish(event.ConflictResolved{
			Meta:       event.NewMeta(c.ProjectPath),
			ConflictID: res.ConflictID,
			FilePath:   c.FilePath,
			Strategy:   string(res.Strategy),
			ResolvedBy: res.ResolvedBy,
		})
	}

	if r.journal != nil {
		err := r.journal.RecordResolution(journal.ResolutionRecord{
			ConflictID: res.ConflictID,
			FilePath:   c.FilePath,
			Project:    c.ProjectPath,
			Strategy:   string(res.Strategy),
			ResolvedBy: res.ResolvedBy,
			ResolvedAt: res.ResolvedAt,
		})
		if err != nil {
			r.logger.Warn("journaling resolution", slog.String("id", res.ConflictID), slog.String("error", err.Error()))
		}
	}

	r.logger.Info("conflict resolved",
		slog.String("id", res.ConflictID),
		slog.String("path", c.FilePath),
		slog.String("strategy", string(res.Strategy)),
	)

	return res, nil
}

// resolve performs the backup, content selection, and atomic write.
func (r *Registry) resolve(c *FileConflict, strategy Strategy, manualContent, resolvedBy string) (*Resolution, error) {
	// Never overwrite without a verified safety copy.
	if _, err := r.backups.Create(c.FilePath); err != nil {
		return nil, fmt.Errorf("backing up before resolution: %w", err)
	}

	content, err := resolvedContent(c, strategy, manualContent)
	if err != nil {
		return nil, err
	}

	if err := project.WriteFileAtomic(c.FilePath, []byte(content)); err != nil {
		return nil, fmt.Errorf("applying resolution to %s: %w", c.FilePath, err)
	}

	return &Resolution{
		ConflictID:      c.ID,
		Strategy:        strategy,
		ResolvedContent: content,
		ResolvedBy:      resolvedBy,
		ResolvedAt:      time.Now(),
	}, nil
}

// resolvedContent selects the content to write per strategy.
func resolvedContent(c *FileConflict, strategy Strategy, manualContent string) (string, error) {
	switch strategy {
	case StrategyLocal:
		return c.LocalContent, nil

	case StrategyRemote:
		return c.RemoteContent, nil

	case StrategyMerge:
		var res merge.Result
		if c.HasBase {
			res = merge.ThreeWay(c.BaseContent, c.LocalContent, c.RemoteContent)
		} else {
			res = merge.TwoWay(c.LocalContent, c.RemoteContent)
		}

		if !res.Success {
			return "", fmt.Errorf("%w: %d line conflict(s) remain",
				rokierrors.ErrMergeUnresolved, len(res.Conflicts))
		}

		return res.Content, nil

	case StrategyManual:
		if manualContent == "" {
			return "", rokierrors.ErrManualContentRequired
		}

		return manualContent, nil

	default:
		return "", fmt.Errorf("%w: %q", rokierrors.ErrInvalidStrategy, strategy)
	}
}

// claim marks a conflict as having a resolution in flight. The
// lookup-and-mark is a critical section per conflict id: two concurrent
// resolves see each other and the loser gets ErrConflictNotFound.
func (r *Registry) claim(conflictID string) (*FileConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.open[conflictID]
	if !ok || r.resolving[conflictID] {
		return nil, fmt.Errorf("%w: %s", rokierrors.ErrConflictNotFound, conflictID)
	}

	r.resolving[conflictID] = true

	return c, nil
}

// release clears the in-flight marker. A failed resolution leaves the
// conflict open for retry.
func (r *Registry) release(conflictID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.resolving, conflictID)
}

// remove drops a resolved conflict from the open set.
func (r *Registry) remove(c *FileConflict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.open, c.ID)
	delete(r.resolving, c.ID)

	if r.byPath[c.FilePath] == c.ID {
		delete(r.byPath, c.FilePath)
	}
}

// Open returns a snapshot of all open conflicts.
func (r *Registry) Open() []FileConflict {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FileConflict, 0, len(r.open))
	for _, c := range r.open {
		out = append(out, *c)
	}

	return out
}

// Get returns an open conflict by id.
func (r *Registry) Get(conflictID string) (FileConflict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.open[conflictID]
	if !ok {
		return FileConflict{}, false
	}

	return *c, true
}

// Clear discards all open conflicts without resolving them. This is an
// administrative escape hatch; state is lost, nothing is written.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.open = make(map[string]*FileConflict)
	r.byPath = make(map[string]string)
	r.resolving = make(map[string]bool)
}
