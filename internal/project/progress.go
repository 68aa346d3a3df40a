package project

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Progress holds recomputed task totals for a project's tasks document.
type Progress struct {
	Total          int       `json:"total"`
	Completed      int       `json:"completed"`
	Percentage     float64   `json:"percentage"`
	RecalculatedAt time.Time `json:"recalculated_at"`
}

// ParseProgress counts markdown task checkboxes in tasks.md content and
// returns the recomputed totals. Both "- [x]" and "- [X]" count as
// completed; "- [ ]" counts as open. Nested list indentation is allowed.
func ParseProgress(content string) Progress {
	p := Progress{RecalculatedAt: time.Now()}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case strings.HasPrefix(trimmed, "- [ ]"):
			p.Total++
		case strings.HasPrefix(trimmed, "- [x]"), strings.HasPrefix(trimmed, "- [X]"):
			p.Total++
			p.Completed++
		}
	}

	if p.Total > 0 {
		p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	}

	return p
}

// WriteProgress persists progress atomically to the project's
// progress.json inside the document root.
func WriteProgress(projectPath string, p Progress) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling progress: %w", err)
	}

	path := filepath.Join(DocDir(projectPath), ProgressFileName)

	return WriteFileAtomic(path, append(data, '\n'))
}
