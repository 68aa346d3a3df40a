package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ThreeWay ---

func TestThreeWay_IdenticalSides(t *testing.T) {
	content := "A\nB\nC"

	res := ThreeWay("anything\nat\nall", content, content)

	assert.True(t, res.Success)
	assert.Equal(t, content, res.Content)
	assert.Empty(t, res.Conflicts)
}

func TestThreeWay_LocalUnchangedTakesRemote(t *testing.T) {
	base := "A\nB\nC"
	remote := "A\nB2\nC"

	res := ThreeWay(base, base, remote)

	require.True(t, res.Success)
	assert.Equal(t, remote, res.Content)
}

func TestThreeWay_RemoteUnchangedTakesLocal(t *testing.T) {
	base := "A\nB\nC"
	local := "A\nB2\nC"

	res := ThreeWay(base, local, base)

	require.True(t, res.Success)
	assert.Equal(t, local, res.Content)
}

func TestThreeWay_GenuineConflict(t *testing.T) {
	res := ThreeWay("A\nB", "A\nB2", "A\nB3")

	require.False(t, res.Success)
	require.Len(t, res.Conflicts, 1)

	c := res.Conflicts[0]
	assert.Equal(t, 2, c.Line)
	assert.Equal(t, "B2", c.Local)
	assert.Equal(t, "B3", c.Remote)
	assert.Equal(t, "B", c.Base)

	// The merged output stays a valid, inspectable text artifact.
	lines := strings.Split(res.Content, "\n")
	require.Equal(t, []string{"A", MarkerLocal, "B2", MarkerSeparator, "B3", MarkerRemote}, lines)
}

func TestThreeWay_ConflictLineNumbersTrackMergedOutput(t *testing.T) {
	// Two independent conflicts; the second line number accounts for the
	// marker lines emitted by the first.
	res := ThreeWay("A\nB\nC", "A1\nB\nC1", "A2\nB\nC2")

	require.False(t, res.Success)
	require.Len(t, res.Conflicts, 2)
	assert.Equal(t, 1, res.Conflicts[0].Line)
	assert.Equal(t, 7, res.Conflicts[1].Line)
}

func TestThreeWay_BothAppendedSameLine(t *testing.T) {
	res := ThreeWay("A", "A\nB", "A\nB")

	require.True(t, res.Success)
	assert.Equal(t, "A\nB", res.Content)
}

func TestThreeWay_LengthMismatchWarns(t *testing.T) {
	res := ThreeWay("A", "A\nB", "A")

	assert.NotEmpty(t, res.Warnings)
}

// --- TwoWay ---

func TestTwoWay_IdenticalSides(t *testing.T) {
	content := "X\nY"

	res := TwoWay(content, content)

	assert.True(t, res.Success)
	assert.Equal(t, content, res.Content)
	assert.Empty(t, res.Conflicts)
}

func TestTwoWay_EveryDifferenceConflicts(t *testing.T) {
	// No base means no "unchanged side" shortcut: a remote-only edit
	// still conflicts.
	res := TwoWay("A\nB", "A\nB3")

	require.False(t, res.Success)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "B", res.Conflicts[0].Local)
	assert.Equal(t, "B3", res.Conflicts[0].Remote)
	assert.Empty(t, res.Conflicts[0].Base)
}

func TestTwoWay_PadsShorterSide(t *testing.T) {
	res := TwoWay("A", "A\nB")

	require.False(t, res.Success)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "", res.Conflicts[0].Local)
	assert.Equal(t, "B", res.Conflicts[0].Remote)
}

func TestTwoWay_AlwaysWarnsAboutMissingBase(t *testing.T) {
	res := TwoWay("same", "same")

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Warnings)
}

// --- Summary / Preview ---

func TestSummary_Identical(t *testing.T) {
	assert.Equal(t, "contents are identical", Summary("abc", "abc"))
}

func TestSummary_ReportsChanges(t *testing.T) {
	s := Summary("hello world", "hello there world")

	assert.Contains(t, s, "insertion")
}

func TestPreview_MarksInsertionsAndDeletions(t *testing.T) {
	p := Preview("old line\n", "new line\n")

	assert.Contains(t, p, "-")
	assert.Contains(t, p, "+")
}
