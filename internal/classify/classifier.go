// Package classify decides the annotation of a single archive directory.
package classify

import (
	"context"
	"fmt"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// Kind is the outcome of classifying one directory.
type Kind int

const (
	// Existing: the directory already has an entry.
	Existing Kind = iota
	// IgnoredByPattern: newly matched an ignore pattern.
	IgnoredByPattern
	// Descend: annotated directories lie below; the caller must recurse.
	Descend
	// ReadmeOnly: too little content to need a record.
	ReadmeOnly
	// Missing: holds data, has no record and is not ignored.
	Missing
)

var kindNames = [...]string{"existing", "ignored_by_pattern", "descend", "readme_only", "missing"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Terminal reports whether classification stops at this directory.
func (k Kind) Terminal() bool {
	return k != Descend
}

// Result is a classification outcome. Annotation is set for every terminal
// kind; Pattern is set for IgnoredByPattern; Size for ReadmeOnly and Missing.
type Result struct {
	Kind       Kind
	Annotation annotation.Annotation
	Pattern    string
	Size       archive.Size
}

// Policy holds the documentation-only thresholds. A directory is readme-only
// when it has fewer than MaxFiles files and fewer than MaxBytes bytes.
type Policy struct {
	ReadmeMaxFiles int64
	ReadmeMaxBytes int64
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{ReadmeMaxFiles: 4, ReadmeMaxBytes: 10000}
}

// ReadmeOnly applies the thresholds to a size.
func (p Policy) ReadmeOnly(s archive.Size) bool {
	return s.Files < p.ReadmeMaxFiles && s.Bytes < p.ReadmeMaxBytes
}

// Classifier classifies directories against a store, adding new terminal
// entries to it.
type Classifier struct {
	store    *annotation.Store
	patterns *Patterns
	sizes    archive.Sizer
	policy   Policy
}

// New creates a Classifier. patterns may be nil.
func New(store *annotation.Store, patterns *Patterns, sizes archive.Sizer, policy Policy) *Classifier {
	return &Classifier{store: store, patterns: patterns, sizes: sizes, policy: policy}
}

// Classify decides path's annotation. The checks run in a fixed order:
// existing entry, ignore pattern, annotated descendants, readme-only size,
// missing. A pattern therefore wins over discovered depth, and nothing is
// annotated above an existing entry.
func (c *Classifier) Classify(ctx context.Context, path string) (Result, error) {
	if d, ok := c.store.Get(path); ok {
		return Result{Kind: Existing, Annotation: d.Annotation}, nil
	}

	if expr, ok := c.patterns.Match(path); ok {
		c.store.Set(path, annotation.IgnorePattern)
		return Result{Kind: IgnoredByPattern, Annotation: annotation.IgnorePattern, Pattern: expr}, nil
	}

	if c.store.HasAnnotatedDescendant(path) {
		return Result{Kind: Descend}, nil
	}

	size, err := c.sizes.SizeOf(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("classify %s: %w", path, err)
	}
	if c.policy.ReadmeOnly(size) {
		c.store.Set(path, annotation.ReadmeOnly)
		return Result{Kind: ReadmeOnly, Annotation: annotation.ReadmeOnly, Size: size}, nil
	}

	c.store.Set(path, annotation.Missing)
	return Result{Kind: Missing, Annotation: annotation.Missing, Size: size}, nil
}
