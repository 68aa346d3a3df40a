// Package journal persists an append-only history of conflict
// resolutions and per-project sync marks in a bbolt database. The engine
// itself never reads it back to make decisions; open conflicts live only
// in memory. The journal exists as an audit surface for callers.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// journalDirPerm is the permission mode for the journal directory.
	journalDirPerm = fs.FileMode(0o700)

	// journalFilePerm is the permission mode for the database file.
	journalFilePerm = fs.FileMode(0o600)

	// journalOpenTimeout is the maximum time to wait for the bolt lock.
	journalOpenTimeout = 5 * time.Second
)

var (
	resolutionsBucket = []byte("resolutions")
	syncMarksBucket   = []byte("sync_marks")
)

// ResolutionRecord is one closed conflict as written to the journal.
type ResolutionRecord struct {
	ConflictID string    `json:"conflict_id"`
	FilePath   string    `json:"file_path"`
	Project    string    `json:"project"`
	Strategy   string    `json:"strategy"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// SyncMark records the most recent sync lifecycle transition for a project.
type SyncMark struct {
	Project   string    `json:"project"`
	Active    bool      `json:"active"`
	ChangedAt time.Time `json:"changed_at"`
}

// Journal wraps a bbolt database holding resolution history and sync marks.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), journalDirPerm); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := bolt.Open(path, journalFilePerm, &bolt.Options{Timeout: journalOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(resolutionsBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(syncMarksBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal db: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordResolution appends a resolution to the history. Keys are ordered
// by resolution time so iteration is chronological.
func (j *Journal) RecordResolution(rec ResolutionRecord) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resolutionsBucket)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return b.Put(resolutionKey(rec), data)
	})
}

// Resolutions returns up to limit resolution records, newest first.
// A non-positive limit returns everything.
func (j *Journal) Resolutions(limit int) ([]ResolutionRecord, error) {
	var records []ResolutionRecord

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(resolutionsBucket).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec ResolutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			records = append(records, rec)

			if limit > 0 && len(records) >= limit {
				return nil
			}
		}

		return nil
	})

	return records, err
}

// SetSyncMark records that sync became active or inactive for a project.
func (j *Journal) SetSyncMark(projectPath string, active bool) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(syncMarksBucket)

		data, err := json.Marshal(SyncMark{
			Project:   projectPath,
			Active:    active,
			ChangedAt: time.Now(),
		})
		if err != nil {
			return err
		}

		return b.Put([]byte(projectPath), data)
	})
}

// GetSyncMark returns the last recorded sync mark for a project, or nil
// when the project has never been synced.
func (j *Journal) GetSyncMark(projectPath string) (*SyncMark, error) {
	var mark *SyncMark

	err := j.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(syncMarksBucket).Get([]byte(projectPath))
		if v == nil {
			return nil
		}

		mark = &SyncMark{}

		return json.Unmarshal(v, mark)
	})

	return mark, err
}

// resolutionKey builds a time-ordered unique key for a record.
func resolutionKey(rec ResolutionRecord) []byte {
	key := make([]byte, 8, 8+len(rec.ConflictID))
	binary.BigEndian.PutUint64(key, uint64(rec.ResolvedAt.UnixNano()))

	return append(key, rec.ConflictID...)
}
