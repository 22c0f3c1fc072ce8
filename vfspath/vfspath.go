// Package vfspath provides pure helpers for the slash-separated paths used
// by every storage backend. Backends must route incoming paths through
// Normalize (or Join) before resolution so that equivalent spellings such as
// "/a//b/" and "a/b" address the same tree position. The root of a store is
// the empty string after normalization.
package vfspath

import "strings"

// Normalize collapses repeated separators, converts backslashes, and strips
// leading and trailing separators. The root normalizes to "".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}

// Join normalizes the concatenation of parts.
func Join(parts ...string) string {
	return Normalize(strings.Join(parts, "/"))
}

// Split returns the non-empty segments of the normalized path.
// The root yields a nil slice.
func Split(p string) []string {
	p = Normalize(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Dirname returns the parent of the normalized path, "" for root-level
// entries and the root itself.
func Dirname(p string) string {
	p = Normalize(p)
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Basename returns the last segment of the normalized path, "" for the root.
func Basename(p string) string {
	p = Normalize(p)
	i := strings.LastIndexByte(p, '/')
	return p[i+1:]
}

// IsRoot reports whether the path normalizes to the store root.
func IsRoot(p string) bool {
	return Normalize(p) == ""
}

// IsValid reports whether the path is safe to resolve inside a store.
// Any ".." segment is rejected so a path can never escape the private root.
func IsValid(p string) bool {
	for _, seg := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// Depth counts the segments of the normalized path. The root has depth 0.
func Depth(p string) int {
	return len(Split(p))
}

// IsAncestor reports whether ancestor is the root of, equal to, or a strict
// ancestor of p. Both arguments are normalized before comparison.
func IsAncestor(ancestor, p string) bool {
	ancestor = Normalize(ancestor)
	p = Normalize(p)
	if ancestor == "" {
		return true
	}
	return p == ancestor || strings.HasPrefix(p, ancestor+"/")
}
