// Package project models the per-project document root managed by the
// sync engine: the well-known markdown/JSON document set under
// .ai-project/, the context asset directory, atomic writes, and task
// progress parsing.
package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// DocDirName is the document root directory inside a project.
	DocDirName = ".ai-project"

	// ContextDirName is the context asset directory inside the document root.
	ContextDirName = "context"

	// BackupDirName is the backup directory inside the document root.
	BackupDirName = ".backups"

	// ProgressFileName is where recomputed task progress is persisted.
	// Deliberately not part of the watched document set so the bridge's
	// own writes do not feed back into the watcher loop.
	ProgressFileName = "progress.json"
)

// DocumentKind identifies one of the well-known per-project documents.
type DocumentKind string

const (
	KindRequirements DocumentKind = "requirements"
	KindDesign       DocumentKind = "design"
	KindTasks        DocumentKind = "tasks"
	KindConfig       DocumentKind = "config"
	KindContext      DocumentKind = "context"
)

// documentFiles maps well-known filenames to their document kind.
var documentFiles = map[string]DocumentKind{
	"requirements.md": KindRequirements,
	"design.md":       KindDesign,
	"tasks.md":        KindTasks,
	"config.json":     KindConfig,
}

// DocumentKinds lists the cacheable document kinds in load order.
var DocumentKinds = []DocumentKind{KindRequirements, KindDesign, KindTasks, KindConfig}

// DocDir returns the absolute document root for a project.
func DocDir(projectPath string) string {
	return filepath.Join(projectPath, DocDirName)
}

// ContextDir returns the absolute context asset directory for a project.
func ContextDir(projectPath string) string {
	return filepath.Join(DocDir(projectPath), ContextDirName)
}

// DocumentPath returns the absolute path of a well-known document.
// KindContext has no single path and returns the context directory.
func DocumentPath(projectPath string, kind DocumentKind) string {
	if kind == KindContext {
		return ContextDir(projectPath)
	}

	for name, k := range documentFiles {
		if k == kind {
			return filepath.Join(DocDir(projectPath), name)
		}
	}

	return ""
}

// Classify maps an absolute changed path to its document kind and its
// path relative to the project's document root. Paths outside the
// document root, or files that are not part of the well-known set,
// return ok=false.
func Classify(projectPath, absPath string) (kind DocumentKind, rel string, ok bool) {
	rel, err := filepath.Rel(DocDir(projectPath), absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", false
	}

	rel = filepath.ToSlash(rel)

	if strings.HasPrefix(rel, ContextDirName+"/") {
		return KindContext, rel, true
	}

	if k, known := documentFiles[rel]; known {
		return k, rel, true
	}

	return "", "", false
}

// ConfigName extracts the project name from config.json content, or ""
// when the field is absent.
func ConfigName(content []byte) string {
	return gjson.GetBytes(content, "name").String()
}

// ValidateConfig checks that config.json content is well-formed JSON.
func ValidateConfig(content []byte) error {
	if !gjson.ValidBytes(content) {
		return fmt.Errorf("config.json is not valid JSON")
	}

	return nil
}
