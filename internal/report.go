package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/coverage"
	"github.com/starford/catcoverage/internal/report"
	"github.com/starford/catcoverage/internal/storage"
)

// ReportCoverage loads the annotation file written by FindMissing and
// prints the coverage tables.
func ReportCoverage(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	wd, err := app.workdir()
	if err != nil {
		return err
	}
	sizes, closeSizes, err := app.sizes(wd)
	if err != nil {
		return err
	}
	defer closeSizes()

	svc := coverage.NewService(wd, sizes, cfg.Archive.CollectionDepth, app.aggregateOptions(), app.logger)
	if _, err := svc.Reload(ctx); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w (run find-missing first)", err)
		}
		return err
	}
	snap, err := svc.Current()
	if err != nil {
		return err
	}

	p := report.New(app.out, report.Options{
		OK:         cfg.Policy.OK(),
		MaxRows:    cfg.Report.MaxRows,
		MinPercent: cfg.Report.MinPercent,
		NoColor:    cfg.Report.NoColor,
	})
	p.Coverage(snap.Report)
	if app.tree {
		p.Tree(snap.Report)
	}

	app.logger.Info("report printed",
		slog.String("checksum", snap.Checksum),
		slog.Int("entries", snap.Report.Entries),
		slog.Int("warnings", len(snap.Report.Residual.Warnings)))
	return nil
}

// RetagMissing rewrites the annotation file, renaming missing entries to
// missing_<collection> where the retag pattern names a collection.
func RetagMissing(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	expr := app.retagPattern
	if expr == "" {
		expr = annotation.DefaultRetagPattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("retag pattern: %w", err)
	}

	wd, err := app.workdir()
	if err != nil {
		return err
	}
	unlock, err := wd.Lock(ctx, storage.AnnotationsFile)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	data, err := wd.Read(storage.AnnotationsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", storage.AnnotationsFile, apperr.ErrNotFound)
		}
		return err
	}
	store, err := annotation.Load(bytes.NewReader(data), app.config.Archive.CollectionDepth)
	if err != nil {
		return fmt.Errorf("load %s: %w", storage.AnnotationsFile, err)
	}

	n, err := annotation.RetagMissing(store, re)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := annotation.Save(&buf, store); err != nil {
		return err
	}
	if err := wd.Write(storage.AnnotationsFile, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", storage.AnnotationsFile, err)
	}

	app.logger.Info("missing entries retagged", slog.Int("retagged", n), slog.String("pattern", expr))
	return nil
}
