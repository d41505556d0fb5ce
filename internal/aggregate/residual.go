package aggregate

import (
	"context"
	"fmt"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// IntegrityWarning names an annotated directory that has annotated
// descendants. Its size is subtracted twice from the residual.
type IntegrityWarning struct {
	Path        string   `json:"path"`
	Descendants []string `json:"descendants"`
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("%s has %d annotated descendants", w.Path, len(w.Descendants))
}

// Residual is the part of the archive not covered by any entry.
type Residual struct {
	Total    archive.Size       `json:"total"`
	Top      archive.Size       `json:"top"`
	Warnings []IntegrityWarning `json:"warnings,omitempty"`
}

// Trustworthy reports whether the residual was computed over a store
// without overlapping entries.
func (r Residual) Trustworthy() bool {
	return len(r.Warnings) == 0
}

// ComputeTop subtracts every entry's size from the size of root.
func ComputeTop(ctx context.Context, store *annotation.Store, sizes archive.Sizer, root string) (Residual, error) {
	entries, err := Measure(ctx, store, sizes)
	if err != nil {
		return Residual{}, err
	}
	total, err := sizes.SizeOf(ctx, root)
	if err != nil {
		return Residual{}, fmt.Errorf("aggregate: size of %s: %w", root, err)
	}
	return residual(store, entries, total), nil
}

func residual(store *annotation.Store, entries []Entry, total archive.Size) Residual {
	r := Residual{Total: total, Top: total}
	for _, e := range entries {
		r.Top = r.Top.Sub(e.Size)
	}
	for _, p := range store.Overlaps() {
		r.Warnings = append(r.Warnings, IntegrityWarning{Path: p, Descendants: store.Descendants(p)})
	}
	return r
}
