// Package merge implements the pure line-level merge used for project
// documents. The algorithm is a lockstep positional comparison, not an
// LCS-based diff: all cursors advance together, so reordered or
// inserted/deleted lines can over-report conflicts. This is intentional
// for compatibility with the existing resolution workflow; do not swap
// in a smarter diff without flagging the behavioral change.
package merge

import (
	"fmt"
	"strings"
)

// Conflict markers embedded into merged output for unresolved lines.
const (
	MarkerLocal     = "<<<<<<< LOCAL"
	MarkerSeparator = "======="
	MarkerRemote    = ">>>>>>> REMOTE"
)

// LineConflict is one unresolved line-level disagreement.
type LineConflict struct {
	// Line is the 1-based line number of the conflict in the merged output.
	Line   int
	Local  string
	Remote string
	// Base is the common ancestor line. Empty for two-way merges.
	Base string
}

// Result is the outcome of a merge. When Success is false, Content still
// holds a valid text artifact with embedded conflict markers so the
// result stays inspectable. Callers must never treat an unsuccessful
// result as resolved.
type Result struct {
	Success   bool
	Content   string
	Conflicts []LineConflict
	Warnings  []string
}

// ThreeWay merges local and remote against their common ancestor. At
// each position: agreement wins; a side that did not change from base
// yields to the other; anything else is a genuine conflict recorded in
// the conflict list and bracketed with markers in the output.
func ThreeWay(base, local, remote string) Result {
	baseLines := strings.Split(base, "\n")
	localLines := strings.Split(local, "\n")
	remoteLines := strings.Split(remote, "\n")

	var res Result

	if len(localLines) != len(remoteLines) || len(localLines) != len(baseLines) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"line counts differ (base %d, local %d, remote %d); lockstep comparison may over-report conflicts",
			len(baseLines), len(localLines), len(remoteLines)))
	}

	length := max3(len(baseLines), len(localLines), len(remoteLines))
	merged := make([]string, 0, length)

	for i := 0; i < length; i++ {
		baseLine := lineAt(baseLines, i)
		localLine := lineAt(localLines, i)
		remoteLine := lineAt(remoteLines, i)

		switch {
		case localLine == remoteLine:
			// Both sides agree. Skip positions beyond both inputs so
			// padding never appends phantom empty lines.
			if i < len(localLines) || i < len(remoteLines) {
				merged = append(merged, localLine)
			}

		case localLine == baseLine:
			// Local made no change here; take remote.
			merged = append(merged, remoteLine)

		case remoteLine == baseLine:
			// Remote made no change here; take local.
			merged = append(merged, localLine)

		default:
			res.Conflicts = append(res.Conflicts, LineConflict{
				Line:   len(merged) + 1,
				Local:  localLine,
				Remote: remoteLine,
				Base:   baseLine,
			})
			merged = append(merged, MarkerLocal, localLine, MarkerSeparator, remoteLine, MarkerRemote)
		}
	}

	res.Content = strings.Join(merged, "\n")
	res.Success = len(res.Conflicts) == 0

	return res
}

// TwoWay merges local and remote without a common ancestor. The shorter
// side is padded with empty lines and every positional difference is a
// conflict; there is no "unchanged side" shortcut to fall back on.
func TwoWay(local, remote string) Result {
	localLines := strings.Split(local, "\n")
	remoteLines := strings.Split(remote, "\n")

	res := Result{
		Warnings: []string{"no base content available; merged without a common ancestor"},
	}

	length := len(localLines)
	if len(remoteLines) > length {
		length = len(remoteLines)
	}

	merged := make([]string, 0, length)

	for i := 0; i < length; i++ {
		localLine := lineAt(localLines, i)
		remoteLine := lineAt(remoteLines, i)

		if localLine == remoteLine {
			merged = append(merged, localLine)
			continue
		}

		res.Conflicts = append(res.Conflicts, LineConflict{
			Line:   len(merged) + 1,
			Local:  localLine,
			Remote: remoteLine,
		})
		merged = append(merged, MarkerLocal, localLine, MarkerSeparator, remoteLine, MarkerRemote)
	}

	res.Content = strings.Join(merged, "\n")
	res.Success = len(res.Conflicts) == 0

	return res
}

// lineAt returns the line at index i, or "" past the end of the slice.
func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}

	return ""
}

func max3(a, b, c int) int {
	if b > a {
		a = b
	}

	if c > a {
		a = c
	}

	return a
}
