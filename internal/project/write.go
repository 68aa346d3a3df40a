package project

import (
	"fmt"
	"io/fs"
	"os"
	"time"
)

// filePerm is the permission mode for newly created documents.
const filePerm = fs.FileMode(0o644)

// WriteFileAtomic writes content to path using the temp-file-then-rename
// pattern: the full content goes to <path>.tmp.<epoch-ms>, which is then
// renamed over the target. Rename is atomic on the host filesystem, so a
// crash mid-write never leaves a half-written target. On failure the temp
// file is removed and the original target is untouched.
func WriteFileAtomic(path string, content []byte) error {
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixMilli())

	// Preserve permissions of an existing target, or use the default.
	perm := filePerm
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := os.WriteFile(tmp, content, perm); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
