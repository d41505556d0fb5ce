package sizeindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/starford/catcoverage/internal/archive"
)

// DefaultTTL is how long a cached listing or size stays fresh.
const DefaultTTL = 24 * time.Hour

type memEntry struct {
	size archive.Size
	at   time.Time
}

// Cache is an archive.Index that answers from memory, then SQLite, then the
// backing index, recording fresh answers on the way back.
type Cache struct {
	src    archive.Index
	db     *DB
	mem    *lru.Cache[string, memEntry]
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

var _ archive.Index = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache in front of src holding up to memEntries sizes in
// memory. Rows that are already stale are purged.
func New(src archive.Index, db *DB, memEntries int, opts ...Option) (*Cache, error) {
	if memEntries <= 0 {
		memEntries = 1
	}
	mem, err := lru.New[string, memEntry](memEntries)
	if err != nil {
		return nil, fmt.Errorf("sizeindex: memory cache: %w", err)
	}
	c := &Cache{
		src:    src,
		db:     db,
		mem:    mem,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	purged, err := db.PurgeBefore(c.now().Add(-c.ttl))
	if err != nil {
		return nil, err
	}
	if purged > 0 {
		c.logger.Info("size cache: purged stale rows", slog.Int64("rows", purged))
	}
	return c, nil
}

func (c *Cache) fresh(at time.Time) bool {
	return c.now().Sub(at) < c.ttl
}

// SizeOf implements archive.Sizer.
func (c *Cache) SizeOf(ctx context.Context, path string) (archive.Size, error) {
	if e, ok := c.mem.Get(path); ok && c.fresh(e.at) {
		c.hits.Add(1)
		return e.size, nil
	}

	size, at, ok, err := c.db.GetSize(path)
	if err != nil {
		return archive.Size{}, err
	}
	if ok && c.fresh(at) {
		c.hits.Add(1)
		c.mem.Add(path, memEntry{size: size, at: at})
		return size, nil
	}

	c.misses.Add(1)
	c.logger.Debug("size cache: fetching", slog.String("path", path))
	size, err = c.src.SizeOf(ctx, path)
	if err != nil {
		return archive.Size{}, err
	}
	now := c.now()
	if err := c.db.PutSize(path, size, now); err != nil {
		return archive.Size{}, err
	}
	c.mem.Add(path, memEntry{size: size, at: now})
	c.logger.Debug("size cache: fetched",
		slog.String("path", path),
		slog.Int64("bytes", size.Bytes),
		slog.Int64("files", size.Files))
	return size, nil
}

// ListChildDirs implements archive.Lister.
func (c *Cache) ListChildDirs(ctx context.Context, path string) ([]string, error) {
	children, at, ok, err := c.db.GetListing(path)
	if err != nil {
		return nil, err
	}
	if ok && c.fresh(at) {
		c.hits.Add(1)
		return children, nil
	}

	c.misses.Add(1)
	children, err = c.src.ListChildDirs(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.db.PutListing(path, children, c.now()); err != nil {
		return nil, err
	}
	return children, nil
}

// Prefetch looks up the sizes of paths with up to workers concurrent
// requests. The first failure cancels the rest.
func (c *Cache) Prefetch(ctx context.Context, paths []string, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range paths {
		g.Go(func() error {
			_, err := c.SizeOf(gCtx, p)
			return err
		})
	}
	return g.Wait()
}

// Stats reports cache hits and misses since construction.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
