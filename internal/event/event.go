// Package event defines the typed synchronization events produced by the
// engine and a non-blocking publish/subscribe bus for delivering them.
// Consumers type-switch over the closed Event set instead of matching on
// string tags.
package event

import "time"

// SyncErrorKind is a stable tag identifying which stage of the sync
// pipeline produced an error event.
type SyncErrorKind string

const (
	KindDocumentSyncError SyncErrorKind = "DOCUMENT_SYNC_ERROR"
	KindProgressSyncError SyncErrorKind = "PROGRESS_SYNC_ERROR"
	KindContextSyncError  SyncErrorKind = "CONTEXT_SYNC_ERROR"
	KindSyncStartError    SyncErrorKind = "SYNC_START_ERROR"
	KindSyncCheckError    SyncErrorKind = "SYNC_CHECK_ERROR"
)

// Event is the closed set of engine notifications. Every variant carries
// the owning project path and the time it was produced.
type Event interface {
	// Project returns the absolute path of the project the event belongs to.
	Project() string
	// Time returns when the event was produced.
	Time() time.Time

	event()
}

// Meta carries the fields shared by all event variants.
type Meta struct {
	ProjectPath string
	At          time.Time
}

func (m Meta) Project() string { return m.ProjectPath }
func (m Meta) Time() time.Time { return m.At }
func (Meta) event()            {}

// NewMeta stamps an event with the project path and current time.
func NewMeta(projectPath string) Meta {
	return Meta{ProjectPath: projectPath, At: time.Now()}
}

// ConflictDetected is published when the registry opens a new conflict.
type ConflictDetected struct {
	Meta
	ConflictID string
	FilePath   string
	Type       string
}

// ConflictResolved is published after a conflict is closed and the
// resolved content has been written.
type ConflictResolved struct {
	Meta
	ConflictID string
	FilePath   string
	Strategy   string
	ResolvedBy string
}

// ResolutionError is published when a resolution attempt fails. The
// conflict stays open for retry.
type ResolutionError struct {
	Meta
	ConflictID string
	Err        string
}

// BackupCreated is published after a backup snapshot is written.
type BackupCreated struct {
	Meta
	OriginalPath string
	BackupPath   string
	Checksum     string
	Size         int64
}

// BackupError is published when creating a backup fails.
type BackupError struct {
	Meta
	FilePath string
	Err      string
}

// FileRestored is published after a backup is copied back over a target.
type FileRestored struct {
	Meta
	BackupPath string
	TargetPath string
}

// RestoreError is published when restoring from a backup fails.
type RestoreError struct {
	Meta
	BackupPath string
	Err        string
}

// DocumentUpdated is published when a watched project document changes
// and the cache has been refreshed.
type DocumentUpdated struct {
	Meta
	Document string
	FilePath string
	Content  string
}

// ProgressUpdated is published after a tasks change triggers a progress
// recomputation.
type ProgressUpdated struct {
	Meta
	Total      int
	Completed  int
	Percentage float64
}

// ContextAssetUpdated is published when a file under the project context
// directory is added, modified, or removed.
type ContextAssetUpdated struct {
	Meta
	Asset  string
	Action string // "added" | "modified" | "removed"
	Path   string
}

// SyncStarted is published when watching begins for a project.
type SyncStarted struct {
	Meta
}

// SyncStopped is published when watching ends for a project.
type SyncStopped struct {
	Meta
}

// SyncError is published for per-operation failures inside the bridge.
// The watcher loop keeps running; a single bad file must not take down
// sync for the rest of the project.
type SyncError struct {
	Meta
	Kind SyncErrorKind
	Err  string
}
