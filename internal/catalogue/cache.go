package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/storage"
)

// DefaultTTL is how long a fetched snapshot is reused.
const DefaultTTL = 24 * time.Hour

type cacheFile struct {
	FetchedAt time.Time                        `json:"fetched_at"`
	Paths     map[string]annotation.Annotation `json:"paths"`
}

// Cached wraps a Source with a snapshot file in the workdir. The file is
// read and rewritten under an advisory lock so concurrent runs share one
// fetch.
type Cached struct {
	src    Source
	dir    *storage.Workdir
	name   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewCached creates a cache around src stored as name in dir.
func NewCached(src Source, dir *storage.Workdir, name string, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cached{src: src, dir: dir, name: name, ttl: ttl, now: now, logger: logger}
}

// FetchAll implements Source.
func (c *Cached) FetchAll(ctx context.Context) (map[string]annotation.Annotation, error) {
	unlock, err := c.dir.Lock(ctx, c.name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			c.logger.Warn("catalogue cache: unlock failed", slog.String("error", err.Error()))
		}
	}()

	cached, err := c.read()
	if err != nil {
		c.logger.Warn("catalogue cache: unreadable, refetching",
			slog.String("file", c.name),
			slog.String("error", err.Error()))
	}
	if cached != nil && c.now().Sub(cached.FetchedAt) < c.ttl {
		c.logger.Info("catalogue cache: using snapshot",
			slog.Time("fetched_at", cached.FetchedAt),
			slog.Int("paths", len(cached.Paths)))
		return cached.Paths, nil
	}

	paths, err := c.src.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cacheFile{FetchedAt: c.now().UTC(), Paths: paths})
	if err != nil {
		return nil, fmt.Errorf("catalogue cache: encode: %w", err)
	}
	if err := c.dir.Write(c.name, raw); err != nil {
		return nil, err
	}
	return paths, nil
}

// read returns nil, nil when there is no cache file yet.
func (c *Cached) read() (*cacheFile, error) {
	raw, err := c.dir.Read(c.name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cf cacheFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("catalogue cache: decode: %w", err)
	}
	if cf.Paths == nil {
		cf.Paths = map[string]annotation.Annotation{}
	}
	return &cf, nil
}
