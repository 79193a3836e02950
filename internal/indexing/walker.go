package indexing

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mnemolite/internal/chunking"
	"mnemolite/pkg/types"
)

// DefaultExcludes is the directory/file-name filter applied during
// repository file selection, per spec.md §4.6. walk uses it when given an
// empty exclude list; a non-empty list replaces it.
var DefaultExcludes = []string{"node_modules", "__tests__"}

// discoveredFile is one file selected by Walk, not yet read.
type discoveredFile struct {
	path     string // absolute path on disk
	relPath  string // path relative to root, used as the stored file_path
	language types.Language
}

// walk recursively selects files under root whose extension maps to a
// known language and whose path does not match an excluded directory or
// suffix pattern. It never opens a file; IndexRepository reads each
// selected file's content before it queues the jobs for the workers.
func walk(root string, excludes []string) ([]discoveredFile, error) {
	if len(excludes) == 0 {
		excludes = DefaultExcludes
	}

	var files []discoveredFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if isExcludedDir(d.Name(), excludes) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		if isExcludedFile(rel, excludes) {
			return nil
		}

		lang := chunking.LanguageForExt(filepath.Ext(path))
		if lang == types.LanguageUnknown {
			return nil
		}

		files = append(files, discoveredFile{path: path, relPath: rel, language: lang})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func isExcludedDir(name string, excludes []string) bool {
	for _, e := range excludes {
		if e == name {
			return true
		}
	}
	return false
}

// isExcludedFile matches the remaining spec.md exclude patterns that are
// suffix/substring shaped rather than directory names: *.d.ts, *.test.*,
// *.spec.*, plus any caller-supplied pattern treated the same way.
func isExcludedFile(relPath string, excludes []string) bool {
	base := filepath.Base(relPath)
	if strings.HasSuffix(base, ".d.ts") {
		return true
	}
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, e := range excludes {
		if e == "node_modules" || e == "__tests__" {
			continue // directory-shaped, already handled by isExcludedDir
		}
		if strings.Contains(relPath, e) {
			return true
		}
	}
	return false
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
