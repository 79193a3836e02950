package indexing

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/pkg/types"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestWalkSelectsKnownLanguagesAndSkipsExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":                       "package main",
		"util.ts":                       "export const x = 1",
		"types.d.ts":                    "declare const y: number",
		"util.test.ts":                  "test('x', () => {})",
		"README.md":                     "not code",
		"node_modules/dep/index.js":     "module.exports = {}",
		"__tests__/spec_helper.py":      "def helper(): pass",
		"pkg/widget.spec.js":            "describe('widget', () => {})",
	})

	files, err := walk(root, nil)
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.relPath)
	}
	sort.Strings(rels)

	assert.Equal(t, []string{"main.go", "util.ts"}, rels)
}

func TestWalkResolvesLanguagePerFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go": "package a",
		"b.py": "def f(): pass",
	})

	files, err := walk(root, nil)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byPath := map[string]types.Language{}
	for _, f := range files {
		byPath[f.relPath] = f.language
	}
	assert.Equal(t, types.LanguageGo, byPath["a.go"])
	assert.Equal(t, types.LanguagePython, byPath["b.py"])
}

func TestWalkHonorsCustomExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"vendor/lib.go": "package lib",
		"main.go":       "package main",
	})

	files, err := walk(root, []string{"vendor"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].relPath)
}
