// Package ignore selects the files under a directory tree that a bulk
// ingestion should pick up, honoring gitignore-style exclude files.
package ignore

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultFiles are the exclude files read from the walk root.
var DefaultFiles = []string{".gitignore", ".vectorignore"}

// DefaultPatterns apply when the root has no exclude files.
var DefaultPatterns = []string{".git/", "node_modules/", "vendor/", ".DS_Store"}

// Matcher decides whether a path relative to the walk root is excluded.
type Matcher struct {
	patterns []pattern
}

type pattern struct {
	glob     string
	dirOnly  bool
	anchored bool
}

// Load reads every name in files from root and combines their patterns.
// When none exist, fallback is used instead.
func Load(root string, files, fallback []string) (*Matcher, error) {
	var lines []string
	found := false
	for _, name := range files {
		l, err := readLines(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		lines = append(lines, l...)
		found = true
	}
	if !found {
		lines = fallback
	}
	return New(lines...), nil
}

// New compiles gitignore-style lines. Comments, blanks and negations
// are skipped.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	seen := make(map[pattern]bool)
	for _, line := range lines {
		p, ok := parseLine(line)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		m.patterns = append(m.patterns, p)
	}
	return m
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func parseLine(line string) (pattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return pattern{}, false
	}
	var p pattern
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	line = strings.TrimPrefix(line, "**/")
	if strings.HasPrefix(line, "/") || strings.Contains(line, "/") {
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return pattern{}, false
	}
	if _, err := filepath.Match(line, "x"); err != nil {
		return pattern{}, false
	}
	p.glob = line
	return p, true
}

// Match reports whether rel, a slash-separated path relative to the
// root, is excluded. A file below an excluded directory is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for i := range parts {
		dir := i < len(parts)-1 || isDir
		for _, p := range m.patterns {
			if p.dirOnly && !dir {
				continue
			}
			if p.matches(parts, i) {
				return true
			}
		}
	}
	return false
}

func (p pattern) matches(parts []string, i int) bool {
	if p.anchored {
		ok, _ := filepath.Match(p.glob, strings.Join(parts[:i+1], "/"))
		return ok
	}
	ok, _ := filepath.Match(p.glob, parts[i])
	return ok
}

// Walk calls fn for each regular file under root that is not excluded
// and that keep accepts, in lexical order. A nil keep accepts all.
func (m *Matcher) Walk(root string, keep func(path string) bool, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if m.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || slices.Contains(DefaultFiles, d.Name()) {
			return nil
		}
		if keep != nil && !keep(path) {
			return nil
		}
		return fn(path)
	})
}
