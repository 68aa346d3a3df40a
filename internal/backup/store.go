// Package backup provides content-addressed, timestamped backup and
// restore of project documents. Backups live in a .backups/ directory
// next to the original file and are named
// <originalFileName>.backup.<epoch-ms>.<checksum-prefix>, which makes
// them unique per content and tamper-evident. Callers never touch backup
// files directly; they go through the store.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	rokierrors "github.com/the13nth/roki-vscode-sub004/internal/errors"
	"github.com/the13nth/roki-vscode-sub004/internal/event"
	"github.com/the13nth/roki-vscode-sub004/internal/project"
)

const (
	// DefaultRetention is how many backups are kept per file when the
	// store is built with a non-positive retention.
	DefaultRetention = 10

	// checksumPrefixLen is how many checksum characters are encoded into
	// the backup filename.
	checksumPrefixLen = 8

	backupDirPerm  = fs.FileMode(0o755)
	backupFilePerm = fs.FileMode(0o644)

	nameSeparator = ".backup."
)

// Info describes one point-in-time snapshot.
type Info struct {
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	CreatedAt    time.Time `json:"created_at"`
	Checksum     string    `json:"checksum"`
	Size         int64     `json:"size"`
}

// Store creates, restores, and lists backups. It owns the backup
// directories on disk; retention cleanup for one file never touches
// another file's backups because names are partitioned by the encoded
// original filename.
type Store struct {
	retention int
	bus       *event.Bus
	logger    *slog.Logger
}

// NewStore creates a backup store. bus may be nil when no event
// observers are wired.
func NewStore(retention int, bus *event.Bus, logger *slog.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Store{retention: retention, bus: bus, logger: logger}
}

// Create snapshots the current content of path. On success it enforces
// retention, keeping only the newest backups for that file. A failure
// here means the caller must not overwrite the original: there is no
// verified safety copy.
func (s *Store) Create(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("reading source file: %w", err)
		s.publishBackupError(path, err)

		return Info{}, err
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	createdAt := time.Now()

	dir := backupDir(path)
	if err := os.MkdirAll(dir, backupDirPerm); err != nil {
		err = fmt.Errorf("creating backup directory: %w", err)
		s.publishBackupError(path, err)

		return Info{}, err
	}

	name := encodeName(filepath.Base(path), createdAt, checksum)
	backupPath := filepath.Join(dir, name)

	if err := os.WriteFile(backupPath, data, backupFilePerm); err != nil {
		err = fmt.Errorf("writing backup: %w", err)
		s.publishBackupError(path, err)

		return Info{}, err
	}

	info := Info{
		OriginalPath: path,
		BackupPath:   backupPath,
		CreatedAt:    createdAt,
		Checksum:     checksum,
		Size:         int64(len(data)),
	}

	s.enforceRetention(path, backupPath)

	if s.bus != nil {
		s.bus.Publish(event.BackupCreated{
			Meta:         event.NewMeta(projectOf(path)),
			OriginalPath: path,
			BackupPath:   backupPath,
			Checksum:     checksum,
			Size:         info.Size,
		})
	}

	s.logger.Debug("backup created",
		slog.String("path", path),
		slog.String("backup", backupPath),
		slog.Int64("bytes", info.Size),
	)

	return info, nil
}

// Restore copies backup bytes onto targetPath. When targetPath is empty
// the target defaults to the original filename embedded in the backup
// name, placed in the directory the backup protects. Whatever currently
// occupies the target is backed up first, so restoring twice in a row
// never loses the intermediate state.
func (s *Store) Restore(backupPath, targetPath string) (string, error) {
	if _, err := os.Stat(backupPath); err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: %s", rokierrors.ErrBackupNotFound, backupPath)
		} else {
			err = fmt.Errorf("checking backup: %w", err)
		}

		s.publishRestoreError(backupPath, err)

		return "", err
	}

	if targetPath == "" {
		original, _, _, ok := parseName(filepath.Base(backupPath))
		if !ok {
			err := fmt.Errorf("cannot derive target from backup name %q", filepath.Base(backupPath))
			s.publishRestoreError(backupPath, err)

			return "", err
		}

		// Backups live in <dir>/.backups/, so the protected directory is
		// the backup directory's parent.
		targetPath = filepath.Join(filepath.Dir(filepath.Dir(backupPath)), original)
	}

	// Self-protect: snapshot the current target before overwriting it.
	if _, err := os.Stat(targetPath); err == nil {
		if _, err := s.Create(targetPath); err != nil {
			err = fmt.Errorf("backing up current target before restore: %w", err)
			s.publishRestoreError(backupPath, err)

			return "", err
		}
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		err = fmt.Errorf("reading backup: %w", err)
		s.publishRestoreError(backupPath, err)

		return "", err
	}

	if err := project.WriteFileAtomic(targetPath, data); err != nil {
		err = fmt.Errorf("restoring %s: %w", targetPath, err)
		s.publishRestoreError(backupPath, err)

		return "", err
	}

	if s.bus != nil {
		s.bus.Publish(event.FileRestored{
			Meta:       event.NewMeta(projectOf(targetPath)),
			BackupPath: backupPath,
			TargetPath: targetPath,
		})
	}

	s.logger.Info("file restored",
		slog.String("backup", backupPath),
		slog.String("target", targetPath),
	)

	return targetPath, nil
}

// List enumerates backups of path, newest first. Checksums and sizes are
// recomputed from the backup bytes rather than trusted from the name.
func (s *Store) List(path string) ([]Info, error) {
	entries, err := matchingBackups(path)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(entries))

	for _, backupPath := range entries {
		data, err := os.ReadFile(backupPath)
		if err != nil {
			s.logger.Warn("skipping unreadable backup",
				slog.String("backup", backupPath),
				slog.String("error", err.Error()),
			)

			continue
		}

		sum := sha256.Sum256(data)

		createdAt := backupTime(backupPath)

		infos = append(infos, Info{
			OriginalPath: path,
			BackupPath:   backupPath,
			CreatedAt:    createdAt,
			Checksum:     hex.EncodeToString(sum[:]),
			Size:         int64(len(data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	return infos, nil
}

// Latest returns the most recent backup of path, if any. Used to source
// base content for three-way merges.
func (s *Store) Latest(path string) (Info, bool, error) {
	infos, err := s.List(path)
	if err != nil {
		return Info{}, false, err
	}

	if len(infos) == 0 {
		return Info{}, false, nil
	}

	return infos[0], true, nil
}

// enforceRetention deletes the oldest backups of path beyond the
// retention cap. justCreated is always kept.
func (s *Store) enforceRetention(path, justCreated string) {
	entries, err := matchingBackups(path)
	if err != nil {
		s.logger.Warn("retention scan failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if len(entries) <= s.retention {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return backupTime(entries[i]).After(backupTime(entries[j]))
	})

	for _, old := range entries[s.retention:] {
		if old == justCreated {
			continue
		}

		if err := os.Remove(old); err != nil {
			s.logger.Warn("removing expired backup", slog.String("backup", old), slog.String("error", err.Error()))
			continue
		}

		s.logger.Debug("expired backup removed", slog.String("backup", old))
	}
}

func (s *Store) publishBackupError(path string, err error) {
	if s.bus == nil {
		return
	}

	s.bus.Publish(event.BackupError{
		Meta:     event.NewMeta(projectOf(path)),
		FilePath: path,
		Err:      err.Error(),
	})
}

func (s *Store) publishRestoreError(backupPath string, err error) {
	if s.bus == nil {
		return
	}

	s.bus.Publish(event.RestoreError{
		Meta:       event.NewMeta(projectOf(backupPath)),
		BackupPath: backupPath,
		Err:        err.Error(),
	})
}

// backupDir returns the backup directory protecting the given file.
func backupDir(path string) string {
	return filepath.Join(filepath.Dir(path), project.BackupDirName)
}

// matchingBackups lists backup files for path, unordered.
func matchingBackups(path string) ([]string, error) {
	dir := backupDir(path)
	prefix := filepath.Base(path) + nameSeparator

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var matched []string

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}

		matched = append(matched, filepath.Join(dir, e.Name()))
	}

	return matched, nil
}

// encodeName builds the backup filename for an original file.
func encodeName(original string, createdAt time.Time, checksum string) string {
	prefix := checksum
	if len(prefix) > checksumPrefixLen {
		prefix = prefix[:checksumPrefixLen]
	}

	return fmt.Sprintf("%s%s%d.%s", original, nameSeparator, createdAt.UnixMilli(), prefix)
}

// parseName splits a backup filename into the original filename, the
// creation time, and the checksum prefix.
func parseName(name string) (original string, createdAt time.Time, checksum string, ok bool) {
	idx := strings.LastIndex(name, nameSeparator)
	if idx <= 0 {
		return "", time.Time{}, "", false
	}

	original = name[:idx]

	rest := name[idx+len(nameSeparator):]

	dot := strings.Index(rest, ".")
	if dot <= 0 || dot == len(rest)-1 {
		return "", time.Time{}, "", false
	}

	ms, err := strconv.ParseInt(rest[:dot], 10, 64)
	if err != nil {
		return "", time.Time{}, "", false
	}

	return original, time.UnixMilli(ms), rest[dot+1:], true
}

// backupTime extracts the creation time from a backup path, falling back
// to the file's mtime when the name does not parse.
func backupTime(backupPath string) time.Time {
	if _, t, _, ok := parseName(filepath.Base(backupPath)); ok {
		return t
	}

	if info, err := os.Stat(backupPath); err == nil {
		return info.ModTime()
	}

	return time.Time{}
}

// projectOf derives the owning project path for a document inside the
// .ai-project/ root. Events for paths outside a document root fall back
// to the file's directory.
func projectOf(path string) string {
	dir := filepath.Dir(path)

	for d := dir; d != filepath.Dir(d); d = filepath.Dir(d) {
		if filepath.Base(d) == project.DocDirName {
			return filepath.Dir(d)
		}
	}

	return dir
}
