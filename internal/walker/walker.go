// Package walker drives the classifier over the archive tree, descending
// only where annotated directories lie below.
package walker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/classify"
)

// Stats summarises one walk.
type Stats struct {
	Listed  int                   `json:"listed"`
	Visited int                   `json:"visited"`
	Skipped int                   `json:"skipped"`
	ByKind  map[classify.Kind]int `json:"-"`
}

// Count returns the number of children classified as k.
func (s Stats) Count(k classify.Kind) int {
	return s.ByKind[k]
}

// Observer is called for every terminal classification.
type Observer func(path string, r classify.Result)

// Walker walks the tree. It is not safe for concurrent use.
type Walker struct {
	lister     archive.Lister
	classifier *classify.Classifier
	logger     *slog.Logger
	observe    Observer
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) { w.logger = l }
}

// WithObserver registers a callback for terminal results.
func WithObserver(fn Observer) Option {
	return func(w *Walker) { w.observe = fn }
}

// New creates a Walker.
func New(lister archive.Lister, classifier *classify.Classifier, opts ...Option) *Walker {
	w := &Walker{
		lister:     lister,
		classifier: classifier,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk classifies every child of root, recursing into children that
// classify as Descend. The root itself is never classified.
func (w *Walker) Walk(ctx context.Context, root string) (Stats, error) {
	stats := Stats{ByKind: make(map[classify.Kind]int)}
	if err := w.walk(ctx, archive.Clean(root), &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (w *Walker) walk(ctx context.Context, dir string, stats *Stats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	children, err := w.lister.ListChildDirs(ctx, dir)
	if err != nil {
		return fmt.Errorf("walker: list %s: %w", dir, err)
	}
	stats.Listed++

	for _, child := range children {
		if archive.Parent(child) != dir {
			return fmt.Errorf("walker: %s under %s: %w", child, dir, apperr.ErrNotChild)
		}
		// Such a directory cannot be recorded, so it stays in the residual.
		if err := annotation.CheckPath(child); err != nil {
			stats.Skipped++
			w.logger.Warn("skipped directory", slog.String("error", err.Error()))
			continue
		}
		r, err := w.classifier.Classify(ctx, child)
		if err != nil {
			return fmt.Errorf("walker: %w", err)
		}
		stats.Visited++
		stats.ByKind[r.Kind]++

		if r.Kind == classify.Descend {
			if err := w.walk(ctx, child, stats); err != nil {
				return err
			}
			continue
		}

		w.logger.Debug("classified",
			slog.String("path", child),
			slog.String("annotation", string(r.Annotation)),
			slog.String("kind", r.Kind.String()))
		if w.observe != nil {
			w.observe(child, r)
		}
	}
	return nil
}
