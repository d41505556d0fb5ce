// Package storage manages the working directory holding the tool's inputs,
// outputs and caches.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Fixed file names inside the working directory.
const (
	IgnoreFile         = "ignore.txt"
	IgnorePatternsFile = "ignore_patterns.txt"
	AnnotationsFile    = "annotations.txt"
	MissingFile        = "missing.txt"
	PatternMatchesFile = "ignore_pattern_matches.txt"
	CatalogueCacheFile = "catalogue_record_paths_cache.json"
	SizeCacheFile      = "size_cache.db"
	lockRetryDelay     = 100 * time.Millisecond
	tempPrefix         = ".catcoverage-tmp-"
)

// Workdir resolves and writes files below a single directory.
type Workdir struct {
	root string // absolute path
}

// NewWorkdir creates a Workdir rooted at dir, creating it if needed.
func NewWorkdir(dir string) (*Workdir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve workdir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create workdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat workdir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: workdir is not a directory: %s", abs)
	}
	return &Workdir{root: abs}, nil
}

// Root returns the absolute workdir path.
func (w *Workdir) Root() string {
	return w.root
}

// Path resolves name against the workdir and rejects any result that
// escapes it.
func (w *Workdir) Path(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", name)
	}
	abs := filepath.Join(w.root, cleaned)
	if !strings.HasPrefix(abs, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes workdir: %s", name)
	}
	return abs, nil
}

// Open opens a workdir file for reading.
func (w *Workdir) Open(name string) (*os.File, error) {
	p, err := w.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return f, nil
}

// Read returns the contents of a workdir file.
func (w *Workdir) Read(name string) ([]byte, error) {
	p, err := w.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is present in the workdir.
func (w *Workdir) Exists(name string) bool {
	p, err := w.Path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (w *Workdir) Write(name string, content []byte) error {
	p, err := w.Path(name)
	if err != nil {
		return err
	}
	return WriteFileAtomic(p, content)
}

// WriteFileAtomic writes content to path so that readers see either the old
// or the new file, never a partial one.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Lock takes an exclusive advisory lock on name + ".lock", waiting until it
// is free or ctx is done. The returned func releases it.
func (w *Workdir) Lock(ctx context.Context, name string) (func() error, error) {
	p, err := w.Path(name + ".lock")
	if err != nil {
		return nil, err
	}
	fl := flock.New(p)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("storage: lock %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("storage: lock %s: not acquired", name)
	}
	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("storage: unlock %s: %w", name, err)
		}
		return nil
	}, nil
}
