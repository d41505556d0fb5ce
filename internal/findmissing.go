package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/catalogue"
	"github.com/starford/catcoverage/internal/classify"
	"github.com/starford/catcoverage/internal/storage"
	"github.com/starford/catcoverage/internal/walker"
)

// FindMissing seeds an annotation store from the operator inputs and the
// catalogue, walks the archive and writes the annotation, missing and
// ignore-pattern-matches files. Nothing is written unless the walk
// completes.
func FindMissing(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	wd, err := app.workdir()
	if err != nil {
		return err
	}
	sizes, closeSizes, err := app.sizes(wd)
	if err != nil {
		return err
	}
	defer closeSizes()

	ignores, err := readPathList(wd, storage.IgnoreFile, logger)
	if err != nil {
		return err
	}
	patterns, err := readPatterns(wd, logger)
	if err != nil {
		return err
	}
	records, err := app.catalogueSource(wd).FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch catalogue: %w", err)
	}
	logger.Info("catalogue loaded", slog.Int("records", len(records)))

	layers := []annotation.Layer{
		annotation.PathLayer("ignore", ignores, annotation.Ignore, false),
		annotation.MapLayer("catalogue", records),
	}
	if app.incremental {
		prevMatches, err := readPathList(wd, storage.PatternMatchesFile, logger)
		if err != nil {
			return err
		}
		prevMissing, err := readPathList(wd, storage.MissingFile, logger)
		if err != nil {
			return err
		}
		layers = append(layers,
			annotation.PathLayer("previous_pattern_matches", prevMatches, annotation.IgnorePattern, true),
			annotation.PathLayer("previous_missing", prevMissing, annotation.Missing, true),
		)
	}

	root := archive.Clean(cfg.Archive.Root)
	store := annotation.NewStore(cfg.Archive.CollectionDepth)
	annotation.Seed(store, root, logger, layers...)
	seeded := store.Len()

	classifier := classify.New(store, patterns, sizes, classify.Policy{
		ReadmeMaxFiles: cfg.Policy.ReadmeMaxFiles,
		ReadmeMaxBytes: cfg.Policy.ReadmeMaxBytes,
	})
	w := walker.New(sizes, classifier,
		walker.WithLogger(logger),
		walker.WithObserver(func(path string, r classify.Result) {
			if r.Kind == classify.IgnoredByPattern {
				logger.Debug("ignored by pattern", slog.String("path", path), slog.String("pattern", r.Pattern))
			}
		}),
	)

	var stats walker.Stats
	if d, ok := store.Get(root); ok {
		logger.Warn("archive root is annotated, nothing to walk",
			slog.String("root", root),
			slog.String("annotation", string(d.Annotation)))
	} else {
		logger.Info("walk started", slog.String("root", root), slog.Int("seeded", seeded))
		stats, err = w.Walk(ctx, root)
		if err != nil {
			return fmt.Errorf("walk: %w", err)
		}
	}

	if err := writeOutputs(ctx, wd, store); err != nil {
		return err
	}

	logger.Info("walk finished",
		slog.Int("listed", stats.Listed),
		slog.Int("visited", stats.Visited),
		slog.Int("skipped", stats.Skipped),
		slog.Int("missing", stats.Count(classify.Missing)),
		slog.Int("readme_only", stats.Count(classify.ReadmeOnly)),
		slog.Int("ignored_by_pattern", stats.Count(classify.IgnoredByPattern)),
		slog.Int("entries", store.Len()))
	return nil
}

// catalogueSource returns the catalogue to seed from. A snapshot file is
// read as is; any other source goes through the workdir cache.
func (a *application) catalogueSource(wd *storage.Workdir) catalogue.Source {
	if a.catalogueFile != "" {
		return catalogue.NewFileSource(a.catalogueFile)
	}
	src := a.catalogue
	if src == nil {
		src = catalogue.NewClient(a.config.Catalogue.URL, a.config.Catalogue.Timeout, a.logger)
	}
	return catalogue.NewCached(src, wd, storage.CatalogueCacheFile, a.config.Catalogue.CacheTTL, a.now, a.logger)
}

// readPathList reads an operator path list. A missing file is empty.
func readPathList(wd *storage.Workdir, name string, logger *slog.Logger) ([]string, error) {
	f, err := wd.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("input file not found, treating as empty", slog.String("file", name))
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	paths, err := annotation.ReadPathList(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return paths, nil
}

// readPatterns reads the ignore patterns. A missing file means no patterns.
func readPatterns(wd *storage.Workdir, logger *slog.Logger) (*classify.Patterns, error) {
	f, err := wd.Open(storage.IgnorePatternsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("input file not found, treating as empty", slog.String("file", storage.IgnorePatternsFile))
			return classify.CompilePatterns()
		}
		return nil, err
	}
	defer f.Close()

	p, err := classify.ReadPatterns(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", storage.IgnorePatternsFile, err)
	}
	return p, nil
}

// writeOutputs persists store and the two path lists derived from it.
func writeOutputs(ctx context.Context, wd *storage.Workdir, store *annotation.Store) error {
	var ann, missing, matches bytes.Buffer
	if err := annotation.Save(&ann, store); err != nil {
		return err
	}
	if err := annotation.WritePathList(&missing, store.Paths(annotation.Missing)); err != nil {
		return err
	}
	if err := annotation.WritePathList(&matches, store.Paths(annotation.IgnorePattern)); err != nil {
		return err
	}

	unlock, err := wd.Lock(ctx, storage.AnnotationsFile)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	for _, out := range []struct {
		name string
		buf  *bytes.Buffer
	}{
		{storage.AnnotationsFile, &ann},
		{storage.MissingFile, &missing},
		{storage.PatternMatchesFile, &matches},
	} {
		if err := wd.Write(out.name, out.buf.Bytes()); err != nil {
			return fmt.Errorf("write %s: %w", out.name, err)
		}
	}
	return nil
}
