// Package annotation holds the classification of archive directories: the
// annotation vocabulary, the in-memory store and its flat-file persistence.
package annotation

import "sort"

// Annotation tags a directory. Values other than the reserved ones below are
// catalogue publication states.
type Annotation string

// Reserved annotations.
const (
	Missing       Annotation = "missing"
	Ignore        Annotation = "ignore"
	IgnorePattern Annotation = "ignore_pattern"
	ReadmeOnly    Annotation = "readme_only"
)

// Common catalogue publication states.
const (
	Published Annotation = "published"
	Citable   Annotation = "citable"
	Removed   Annotation = "removed"
	Old       Annotation = "old"
	Unknown   Annotation = "unknown"
)

// TopCollection labels the residual that no annotated directory accounts for.
const TopCollection = "TOP"

// DefaultOK are the annotations reported as healthy.
var DefaultOK = []Annotation{Ignore, IgnorePattern, Citable, Published, Removed, Old}

// Set is an unordered set of annotations.
type Set map[Annotation]struct{}

// NewSet builds a Set.
func NewSet(as ...Annotation) Set {
	s := make(Set, len(as))
	for _, a := range as {
		s[a] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s Set) Contains(a Annotation) bool {
	_, ok := s[a]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []Annotation {
	out := make([]Annotation, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dir is an annotated directory. Two Dirs are the same directory when their
// paths are equal, whatever their annotations.
type Dir struct {
	Path       string     `json:"path"`
	Collection string     `json:"collection"`
	Annotation Annotation `json:"annotation"`
}

// Same reports whether d and o name the same directory.
func (d Dir) Same(o Dir) bool {
	return d.Path == o.Path
}

// Less orders directories by path.
func (d Dir) Less(o Dir) bool {
	return d.Path < o.Path
}
