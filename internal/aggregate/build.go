package aggregate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/archive"
)

// Prefetcher warms a size source for many paths at once.
type Prefetcher interface {
	Prefetch(ctx context.Context, paths []string, workers int) error
}

// Options controls Build.
type Options struct {
	Root    string
	OK      annotation.Set
	Strict  bool
	Workers int
	Logger  *slog.Logger
	Now     func() time.Time
}

// Report is every aggregate over one store.
type Report struct {
	GeneratedAt  time.Time                              `json:"generated_at"`
	Entries      int                                    `json:"entries"`
	Residual     Residual                               `json:"residual"`
	ByAnnotation map[annotation.Annotation]archive.Size `json:"-"`
	ByKey        map[Key]archive.Size                   `json:"-"`
	Annotations  []Row                                  `json:"annotations"`
	Collections  []Row                                  `json:"collections"`
	Split        Split                                  `json:"split"`
	Dirs         []Entry                                `json:"-"`
}

// Build measures every entry and computes all aggregates. When sizes is a
// Prefetcher the entry sizes are fetched concurrently first. With
// Options.Strict an overlapping store fails with apperr.ErrIntegrity.
func Build(ctx context.Context, store *annotation.Store, sizes archive.Sizer, opts Options) (*Report, error) {
	if opts.Root == "" {
		opts.Root = archive.Root
	}
	if opts.OK == nil {
		opts.OK = annotation.NewSet(annotation.DefaultOK...)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if pf, ok := sizes.(Prefetcher); ok {
		paths := make([]string, 0, store.Len()+1)
		paths = append(paths, opts.Root)
		for _, d := range store.Dirs() {
			paths = append(paths, d.Path)
		}
		if err := pf.Prefetch(ctx, paths, opts.Workers); err != nil {
			return nil, fmt.Errorf("aggregate: prefetch: %w", err)
		}
	}

	entries, err := Measure(ctx, store, sizes)
	if err != nil {
		return nil, err
	}
	total, err := sizes.SizeOf(ctx, opts.Root)
	if err != nil {
		return nil, fmt.Errorf("aggregate: size of %s: %w", opts.Root, err)
	}

	res := residual(store, entries, total)
	for _, w := range res.Warnings {
		opts.Logger.Warn("annotated directory has annotated descendants",
			slog.String("path", w.Path),
			slog.Int("descendants", len(w.Descendants)))
	}
	if opts.Strict && !res.Trustworthy() {
		return nil, fmt.Errorf("aggregate: %s: %w", res.Warnings[0].Path, apperr.ErrIntegrity)
	}

	byAnn := byAnnotation(entries)
	byK := byKey(entries, res.Top)
	return &Report{
		GeneratedAt:  opts.Now().UTC(),
		Entries:      len(entries),
		Residual:     res,
		ByAnnotation: byAnn,
		ByKey:        byK,
		Annotations:  SortedAnnotations(byAnn, ByBytes),
		Collections:  Sorted(byK, ByBytes),
		Split:        OkVsNotOk(byAnn, res.Top, total, opts.OK),
		Dirs:         entries,
	}, nil
}
