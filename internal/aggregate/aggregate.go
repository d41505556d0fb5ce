// Package aggregate sums directory sizes per annotation and per collection
// and derives the residual that no annotated directory accounts for.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// Key groups sizes by annotation and collection.
type Key struct {
	Annotation annotation.Annotation `json:"annotation"`
	Collection string                `json:"collection"`
}

// Entry is an annotated directory with its measured size.
type Entry struct {
	annotation.Dir
	Size archive.Size `json:"size"`
}

// Row is one line of a sorted summary. Collection is empty in
// per-annotation summaries.
type Row struct {
	Key
	Size archive.Size `json:"size"`
}

// Measure looks up the size of every entry in store order.
func Measure(ctx context.Context, store *annotation.Store, sizes archive.Sizer) ([]Entry, error) {
	dirs := store.Dirs()
	out := make([]Entry, 0, len(dirs))
	for _, d := range dirs {
		s, err := sizes.SizeOf(ctx, d.Path)
		if err != nil {
			return nil, fmt.Errorf("aggregate: size of %s: %w", d.Path, err)
		}
		out = append(out, Entry{Dir: d, Size: s})
	}
	return out, nil
}

// SummaryByAnnotation sums entry sizes per annotation.
func SummaryByAnnotation(ctx context.Context, store *annotation.Store, sizes archive.Sizer) (map[annotation.Annotation]archive.Size, error) {
	entries, err := Measure(ctx, store, sizes)
	if err != nil {
		return nil, err
	}
	return byAnnotation(entries), nil
}

// SummaryByAnnotationAndCollection sums entry sizes per (annotation,
// collection) and adds the residual as the ("missing", "TOP") row.
func SummaryByAnnotationAndCollection(ctx context.Context, store *annotation.Store, sizes archive.Sizer, top archive.Size) (map[Key]archive.Size, error) {
	entries, err := Measure(ctx, store, sizes)
	if err != nil {
		return nil, err
	}
	return byKey(entries, top), nil
}

func byAnnotation(entries []Entry) map[annotation.Annotation]archive.Size {
	out := make(map[annotation.Annotation]archive.Size)
	for _, e := range entries {
		out[e.Annotation] = out[e.Annotation].Add(e.Size)
	}
	return out
}

func byKey(entries []Entry, top archive.Size) map[Key]archive.Size {
	out := make(map[Key]archive.Size)
	for _, e := range entries {
		k := Key{Annotation: e.Annotation, Collection: e.Collection}
		out[k] = out[k].Add(e.Size)
	}
	out[Key{Annotation: annotation.Missing, Collection: annotation.TopCollection}] = top
	return out
}

// Field selects the size component a view is sorted by.
type Field int

const (
	ByBytes Field = iota
	ByFiles
)

func (f Field) of(s archive.Size) int64 {
	if f == ByFiles {
		return s.Files
	}
	return s.Bytes
}

// Sorted returns the rows in descending order of f, ties broken by
// annotation then collection.
func Sorted(m map[Key]archive.Size, f Field) []Row {
	rows := make([]Row, 0, len(m))
	for k, s := range m {
		rows = append(rows, Row{Key: k, Size: s})
	}
	sortRows(rows, f)
	return rows
}

// SortedAnnotations is Sorted for a per-annotation summary.
func SortedAnnotations(m map[annotation.Annotation]archive.Size, f Field) []Row {
	rows := make([]Row, 0, len(m))
	for a, s := range m {
		rows = append(rows, Row{Key: Key{Annotation: a}, Size: s})
	}
	sortRows(rows, f)
	return rows
}

func sortRows(rows []Row, f Field) {
	sort.Slice(rows, func(i, j int) bool {
		vi, vj := f.of(rows[i].Size), f.of(rows[j].Size)
		if vi != vj {
			return vi > vj
		}
		if rows[i].Annotation != rows[j].Annotation {
			return rows[i].Annotation < rows[j].Annotation
		}
		return rows[i].Collection < rows[j].Collection
	})
}

// Collections returns the distinct collections of the keys, sorted.
func Collections(m map[Key]archive.Size) []string {
	seen := make(map[string]struct{})
	for k := range m {
		seen[k.Collection] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Annotations returns the distinct annotations of the keys, sorted.
func Annotations(m map[Key]archive.Size) []annotation.Annotation {
	seen := make(annotation.Set)
	for k := range m {
		seen[k.Annotation] = struct{}{}
	}
	return seen.Sorted()
}

// Percent returns part as a percentage of whole, or 0 when whole is 0.
func Percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
