package merge

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before running the
// semantic cleanup pass. Below this count the diffs are simple enough
// that cleanup would not improve the result.
const diffCleanupThreshold = 2

// Summary describes how local and remote content differ, for use in
// human-readable conflict descriptions. It is informational only; the
// merge itself never consults it.
func Summary(local, remote string) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(local, remote, true)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	var insertions, deletions int

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			insertions++
		case diffmatchpatch.DiffDelete:
			deletions++
		}
	}

	if insertions == 0 && deletions == 0 {
		return "contents are identical"
	}

	return fmt.Sprintf("%d insertion(s), %d deletion(s) between local and remote", insertions, deletions)
}

// Preview renders a compact textual diff of local vs remote, one change
// per line, prefixed with + and -. Unchanged spans are elided.
func Preview(local, remote string) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(local, remote, true)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	var b strings.Builder

	for _, d := range diffs {
		text := strings.TrimRight(d.Text, "\n")

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			for _, line := range strings.Split(text, "\n") {
				b.WriteString("+" + line + "\n")
			}
		case diffmatchpatch.DiffDelete:
			for _, line := range strings.Split(text, "\n") {
				b.WriteString("-" + line + "\n")
			}
		case diffmatchpatch.DiffEqual:
			// elided
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
