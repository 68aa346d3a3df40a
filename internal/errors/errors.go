package errors

import "errors"

// Conflict registry errors.
var (
	ErrConflictNotFound      = errors.New("conflict not found")
	ErrMergeUnresolved       = errors.New("merge left unresolved conflicts")
	ErrInvalidStrategy       = errors.New("invalid resolution strategy")
	ErrManualContentRequired = errors.New("manual resolution requires content")
)

// Backup store errors.
var (
	ErrBackupNotFound = errors.New("backup not found")
)

// Sync bridge errors.
var (
	ErrSyncActive    = errors.New("sync already active for project")
	ErrSyncNotActive = errors.New("sync not active for project")
)
