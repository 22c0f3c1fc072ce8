package opfs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreList holds name patterns excluded from watch batches and from
// sandbox replication. Entries use filepath.Match syntax; a trailing slash
// restricts a pattern to directories.
type IgnoreList struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern string
	dirOnly bool
}

// DefaultIgnore covers the trees no project wants replicated or watched:
// dependency installs and VCS metadata.
func DefaultIgnore() *IgnoreList {
	return NewIgnoreList("node_modules/", ".git/", "dist/", ".cache/")
}

// NewIgnoreList builds an IgnoreList from literal pattern lines.
func NewIgnoreList(lines ...string) *IgnoreList {
	il := &IgnoreList{}
	for _, line := range lines {
		il.add(line)
	}
	return il
}

// LoadIgnoreFile reads patterns from a .boltignore file. A missing or
// unreadable file yields an empty list (nothing is ignored).
func LoadIgnoreFile(path string) *IgnoreList {
	il := &IgnoreList{}

	f, err := os.Open(path)
	if err != nil {
		return il
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		il.add(line)
	}
	return il
}

func (il *IgnoreList) add(line string) {
	p := ignorePattern{pattern: line}
	if strings.HasSuffix(line, "/") {
		p.pattern = strings.TrimSuffix(line, "/")
		p.dirOnly = true
	}
	il.patterns = append(il.patterns, p)
}

// Match reports whether the given entry name matches any pattern.
// For dirOnly patterns, isDir must be true for the pattern to match.
func (il *IgnoreList) Match(name string, isDir bool) bool {
	if il == nil {
		return false
	}
	for _, p := range il.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if matched, _ := filepath.Match(p.pattern, name); matched {
			return true
		}
	}
	return false
}
