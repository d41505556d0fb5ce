// Package archive defines the archive namespace (paths and sizes) and the
// listing/summary backends the coverage walk runs against.
package archive

import (
	"context"
	"fmt"
	"strings"
)

// Root is the top of the archive namespace.
const Root = "/"

// Size is the recursive content summary of a directory.
type Size struct {
	Bytes int64 `json:"bytes"`
	Files int64 `json:"files"`
}

// Add returns s + o.
func (s Size) Add(o Size) Size {
	return Size{Bytes: s.Bytes + o.Bytes, Files: s.Files + o.Files}
}

// Sub returns s - o.
func (s Size) Sub(o Size) Size {
	return Size{Bytes: s.Bytes - o.Bytes, Files: s.Files - o.Files}
}

func (s Size) String() string {
	return fmt.Sprintf("(%d, %d)", s.Bytes, s.Files)
}

// Lister returns the immediate child directories of an archive path.
type Lister interface {
	ListChildDirs(ctx context.Context, path string) ([]string, error)
}

// Sizer returns the recursive size of an archive path.
type Sizer interface {
	SizeOf(ctx context.Context, path string) (Size, error)
}

// Index is the archive listing and summary service.
type Index interface {
	Lister
	Sizer
}

// Clean strips trailing slashes. The root stays "/".
func Clean(p string) string {
	p = strings.TrimSpace(p)
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && strings.HasPrefix(p, "/") {
		return Root
	}
	return trimmed
}

// IsAbs reports whether p is an absolute archive path.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}

// IsDescendant reports whether child lies strictly below ancestor.
func IsDescendant(child, ancestor string) bool {
	if ancestor == Root {
		return child != Root && strings.HasPrefix(child, Root)
	}
	return strings.HasPrefix(child, ancestor+"/")
}

// Parent returns the parent of p, or "" for the root.
func Parent(p string) string {
	if p == Root || p == "" {
		return ""
	}
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return Root
	}
	return p[:i]
}

// Join appends a child name to an archive path.
func Join(parent, name string) string {
	if parent == Root {
		return Root + name
	}
	return parent + "/" + name
}

// Collection returns the first depth components of p, e.g. with depth 2
// "/badc/cmip5/data" gives "/badc/cmip5". Shorter paths are returned whole.
func Collection(p string, depth int) string {
	if depth <= 0 {
		return Root
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) <= depth {
		return p
	}
	return "/" + strings.Join(parts[:depth], "/")
}
