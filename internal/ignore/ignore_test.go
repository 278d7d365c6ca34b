package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want pattern
		ok   bool
	}{
		{"empty line", "", pattern{}, false},
		{"whitespace only", "   ", pattern{}, false},
		{"comment", "# this is a comment", pattern{}, false},
		{"negation skipped", "!important.txt", pattern{}, false},
		{"file glob", "*.log", pattern{glob: "*.log"}, true},
		{"bare name", "node_modules", pattern{glob: "node_modules"}, true},
		{"directory", "build/", pattern{glob: "build", dirOnly: true}, true},
		{"nested path", "docs/drafts", pattern{glob: "docs/drafts", anchored: true}, true},
		{"absolute path", "/dist", pattern{glob: "dist", anchored: true}, true},
		{"double star prefix", "**/tmp", pattern{glob: "tmp"}, true},
		{"bad glob", "[", pattern{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch(t *testing.T) {
	m := New("*.log", "build/", "/dist", "docs/drafts", "secret.txt")

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"app.log", false, true},
		{"nested/deep/app.log", false, true},
		{"build", true, true},
		{"build", false, false},
		{"src/build/out.txt", false, true},
		{"dist/index.html", false, true},
		{"src/dist/index.html", false, false},
		{"docs/drafts/a.md", false, true},
		{"docs/final/a.md", false, false},
		{"a/secret.txt", false, true},
		{"readme.md", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.rel, tt.isDir))
		})
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func TestLoadAndWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":        "# generated\nbuild/\n*.tmp\n",
		".vectorignore":     "private/\n",
		"a.md":              "a",
		"b.tmp":             "b",
		"build/out.md":      "c",
		"docs/guide.txt":    "d",
		"docs/image.png":    "e",
		"private/notes.txt": "f",
	})

	m, err := Load(root, DefaultFiles, DefaultPatterns)
	require.NoError(t, err)

	var got []string
	keep := func(p string) bool { return !strings.HasSuffix(p, ".png") }
	err = m.Walk(root, keep, func(p string) error {
		rel, _ := filepath.Rel(root, p)
		got = append(got, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "docs/guide.txt"}, got)
}

func TestLoad_Fallback(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".git/HEAD":        "ref",
		"vendor/lib/x.txt": "x",
		"notes.txt":        "n",
	})

	m, err := Load(root, DefaultFiles, DefaultPatterns)
	require.NoError(t, err)

	var got []string
	require.NoError(t, m.Walk(root, nil, func(p string) error {
		got = append(got, filepath.Base(p))
		return nil
	}))
	assert.Equal(t, []string{"notes.txt"}, got)
}
