package annotation

import (
	"github.com/starford/catcoverage/internal/archive"
)

// Store maps directory paths to annotations and iterates in insertion order.
//
// The walk keeps the store free of ancestor/descendant pairs: nothing is
// classified below an annotated directory, and nothing is annotated above
// one. below counts, for every ancestor of every key, how many keys lie
// under it, so that check costs O(depth).
type Store struct {
	depth   int
	order   []string
	entries map[string]*Dir
	below   map[string]int
}

// NewStore creates an empty store deriving collections at the given depth.
func NewStore(collectionDepth int) *Store {
	return &Store{
		depth:   collectionDepth,
		entries: make(map[string]*Dir),
		below:   make(map[string]int),
	}
}

// CollectionDepth returns the number of path components in a collection.
func (s *Store) CollectionDepth() int {
	return s.depth
}

// Set annotates path. Re-annotating an existing path keeps its position.
func (s *Store) Set(path string, a Annotation) Dir {
	path = archive.Clean(path)
	if d, ok := s.entries[path]; ok {
		d.Annotation = a
		return *d
	}
	d := &Dir{
		Path:       path,
		Collection: archive.Collection(path, s.depth),
		Annotation: a,
	}
	s.entries[path] = d
	s.order = append(s.order, path)
	for p := archive.Parent(path); p != ""; p = archive.Parent(p) {
		s.below[p]++
	}
	return *d
}

// SetIfDisjoint annotates path only when it is neither present, nor below,
// nor above an existing entry. It reports whether the entry was added.
func (s *Store) SetIfDisjoint(path string, a Annotation) bool {
	path = archive.Clean(path)
	if s.Has(path) || s.HasAnnotatedAncestor(path) || s.HasAnnotatedDescendant(path) {
		return false
	}
	s.Set(path, a)
	return true
}

// Get returns the entry for path.
func (s *Store) Get(path string) (Dir, bool) {
	d, ok := s.entries[path]
	if !ok {
		return Dir{}, false
	}
	return *d, true
}

// Has reports whether path is annotated.
func (s *Store) Has(path string) bool {
	_, ok := s.entries[path]
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.order)
}

// Dirs returns every entry in insertion order.
func (s *Store) Dirs() []Dir {
	out := make([]Dir, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, *s.entries[p])
	}
	return out
}

// Paths returns, in insertion order, the paths annotated exactly a.
func (s *Store) Paths(a Annotation) []string {
	var out []string
	for _, p := range s.order {
		if s.entries[p].Annotation == a {
			out = append(out, p)
		}
	}
	return out
}

// HasAnnotatedDescendant reports whether any entry lies strictly below path.
func (s *Store) HasAnnotatedDescendant(path string) bool {
	return s.below[path] > 0
}

// HasAnnotatedAncestor reports whether any entry lies strictly above path.
func (s *Store) HasAnnotatedAncestor(path string) bool {
	for p := archive.Parent(path); p != ""; p = archive.Parent(p) {
		if _, ok := s.entries[p]; ok {
			return true
		}
	}
	return false
}

// Descendants returns, in insertion order, the entries strictly below path.
func (s *Store) Descendants(path string) []string {
	if !s.HasAnnotatedDescendant(path) {
		return nil
	}
	var out []string
	for _, p := range s.order {
		if archive.IsDescendant(p, path) {
			out = append(out, p)
		}
	}
	return out
}

// Overlaps returns, in insertion order, every entry that has annotated
// descendants.
func (s *Store) Overlaps() []string {
	var out []string
	for _, p := range s.order {
		if s.HasAnnotatedDescendant(p) {
			out = append(out, p)
		}
	}
	return out
}
