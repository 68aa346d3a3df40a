package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Classify ---

func TestClassify_WellKnownDocuments(t *testing.T) {
	proj := "/work/demo"

	tests := []struct {
		rel  string
		kind DocumentKind
	}{
		{"requirements.md", KindRequirements},
		{"design.md", KindDesign},
		{"tasks.md", KindTasks},
		{"config.json", KindConfig},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			kind, rel, ok := Classify(proj, filepath.Join(DocDir(proj), tt.rel))
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.rel, rel)
		})
	}
}

func TestClassify_ContextAssets(t *testing.T) {
	proj := "/work/demo"

	kind, rel, ok := Classify(proj, filepath.Join(ContextDir(proj), "notes", "api.md"))
	require.True(t, ok)
	assert.Equal(t, KindContext, kind)
	assert.Equal(t, "context/notes/api.md", rel)
}

func TestClassify_UnknownAndOutsidePaths(t *testing.T) {
	proj := "/work/demo"

	_, _, ok := Classify(proj, filepath.Join(DocDir(proj), "scratch.md"))
	assert.False(t, ok, "unknown filename should not classify")

	_, _, ok = Classify(proj, filepath.Join(proj, "main.go"))
	assert.False(t, ok, "path outside document root should not classify")

	_, _, ok = Classify(proj, filepath.Join(DocDir(proj), ProgressFileName))
	assert.False(t, ok, "progress.json is not a watched document")
}

func TestDocumentPath_RoundTripsThroughClassify(t *testing.T) {
	proj := "/work/demo"

	for _, kind := range DocumentKinds {
		path := DocumentPath(proj, kind)
		require.NotEmpty(t, path)

		got, _, ok := Classify(proj, path)
		require.True(t, ok)
		assert.Equal(t, kind, got)
	}
}

// --- WriteFileAtomic ---

func TestWriteFileAtomic_WritesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")

	require.NoError(t, WriteFileAtomic(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteFileAtomic_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	require.NoError(t, WriteFileAtomic(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	// Permissions of the existing target are preserved.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteFileAtomic_RenameFailureLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()

	// A non-empty directory at the target path makes the final rename
	// fail after the temp write succeeded.
	target := filepath.Join(dir, "doc.md")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "inner"), 0o755))

	err := WriteFileAtomic(target, []byte("content"))
	require.Error(t, err)

	// Target is unchanged and the temp file was cleaned up.
	info, statErr := os.Stat(target)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.", "temp file should be removed: %s", e.Name())
	}
}

func TestWriteFileAtomic_MissingParentDir(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "doc.md"), []byte("x"))
	require.Error(t, err)
}

// --- Progress ---

func TestParseProgress_CountsCheckboxes(t *testing.T) {
	content := strings.Join([]string{
		"# Tasks",
		"",
		"- [x] implement parser",
		"- [ ] write tests",
		"  - [X] nested done",
		"- not a task",
		"* [ ] wrong bullet style is ignored",
	}, "\n")

	p := ParseProgress(content)

	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 2, p.Completed)
	assert.InDelta(t, 66.67, p.Percentage, 0.01)
	assert.False(t, p.RecalculatedAt.IsZero())
}

func TestParseProgress_EmptyContent(t *testing.T) {
	p := ParseProgress("")

	assert.Zero(t, p.Total)
	assert.Zero(t, p.Completed)
	assert.Zero(t, p.Percentage)
}

func TestWriteProgress_PersistsJSON(t *testing.T) {
	proj := t.TempDir()
	require.NoError(t, os.MkdirAll(DocDir(proj), 0o755))

	p := ParseProgress("- [x] a\n- [ ] b")
	require.NoError(t, WriteProgress(proj, p))

	data, err := os.ReadFile(filepath.Join(DocDir(proj), ProgressFileName))
	require.NoError(t, err)

	var got Progress
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Completed)
}

// --- Config helpers ---

func TestConfigName(t *testing.T) {
	assert.Equal(t, "demo", ConfigName([]byte(`{"name":"demo","version":1}`)))
	assert.Empty(t, ConfigName([]byte(`{"version":1}`)))
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig([]byte(`{"name":"demo"}`)))
	assert.Error(t, ValidateConfig([]byte(`{"name":`)))
}
