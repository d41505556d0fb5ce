// Package coverage keeps the latest coverage report computed from the
// annotation file in a workdir and reloads it when the file changes.
package coverage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/storage"
)

// Snapshot is one loaded annotation file and the report built from it.
type Snapshot struct {
	Checksum string            `json:"checksum"`
	LoadedAt time.Time         `json:"loaded_at"`
	Report   *aggregate.Report `json:"report"`
	store    *annotation.Store
}

// Service loads the annotation file and serves reports built from it.
type Service struct {
	dir    *storage.Workdir
	sizes  archive.Sizer
	depth  int
	opts   aggregate.Options
	logger *slog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewService creates a service. Nothing is loaded until Reload.
func NewService(dir *storage.Workdir, sizes archive.Sizer, collectionDepth int, opts aggregate.Options, logger *slog.Logger) *Service {
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Service{dir: dir, sizes: sizes, depth: collectionDepth, opts: opts, logger: logger}
}

// Reload reads the annotation file and rebuilds the report. It reports
// false without rebuilding when the file content is unchanged. A missing
// file is apperr.ErrNotFound.
func (s *Service) Reload(ctx context.Context) (bool, error) {
	data, err := s.dir.Read(storage.AnnotationsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("coverage: %s: %w", storage.AnnotationsFile, apperr.ErrNotFound)
		}
		return false, err
	}
	sum := contentSum(data)

	s.mu.RLock()
	same := s.snap != nil && s.snap.Checksum == sum
	s.mu.RUnlock()
	if same {
		return false, nil
	}

	store, err := annotation.Load(bytes.NewReader(data), s.depth)
	if err != nil {
		return false, err
	}
	rep, err := aggregate.Build(ctx, store, s.sizes, s.opts)
	if err != nil {
		return false, err
	}

	snap := &Snapshot{Checksum: sum, LoadedAt: rep.GeneratedAt, Report: rep, store: store}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("coverage: reloaded",
		slog.String("checksum", sum),
		slog.Int("entries", rep.Entries),
		slog.Int("warnings", len(rep.Residual.Warnings)))
	return true, nil
}

// Current returns the latest snapshot, or apperr.ErrNotFound before the
// first successful Reload.
func (s *Service) Current() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, apperr.ErrNotFound
	}
	return s.snap, nil
}

// Ready reports whether a report is available.
func (s *Service) Ready() bool {
	_, err := s.Current()
	return err == nil
}

// Paths returns, in file order, the directories annotated a.
func (s *Service) Paths(a annotation.Annotation) ([]string, error) {
	snap, err := s.Current()
	if err != nil {
		return nil, err
	}
	paths := snap.store.Paths(a)
	if len(paths) == 0 {
		return nil, fmt.Errorf("coverage: annotation %q: %w", a, apperr.ErrNotFound)
	}
	return paths, nil
}

// contentSum identifies a version of the annotation file.
func contentSum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
