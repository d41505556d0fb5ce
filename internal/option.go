package internal

import (
	"io"
	"log/slog"
	"time"

	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/catalogue"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config        *Config
	logger        *slog.Logger
	out           io.Writer
	index         archive.Index
	catalogue     catalogue.Source
	catalogueFile string
	incremental   bool
	tree          bool
	retagPattern  string
	now           func() time.Time
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithOutput sets where report tables are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithArchive replaces the archive backend selected by the configuration.
func WithArchive(idx archive.Index) Option {
	return func(a *application) {
		a.index = idx
	}
}

// WithCatalogue replaces the catalogue source. The source is still
// fronted by the workdir snapshot cache.
func WithCatalogue(src catalogue.Source) Option {
	return func(a *application) {
		a.catalogue = src
	}
}

// WithCatalogueFile reads the catalogue from a local snapshot file instead
// of the catalogue service. The snapshot cache is bypassed.
func WithCatalogueFile(path string) Option {
	return func(a *application) {
		a.catalogueFile = path
	}
}

// WithIncremental seeds find-missing with the outputs of the previous run.
func WithIncremental(on bool) Option {
	return func(a *application) {
		a.incremental = on
	}
}

// WithTree adds the tree of not ok directories to the report.
func WithTree(on bool) Option {
	return func(a *application) {
		a.tree = on
	}
}

// WithRetagPattern sets the regexp used by retag-missing.
func WithRetagPattern(expr string) Option {
	return func(a *application) {
		a.retagPattern = expr
	}
}

// WithClock sets the clock used for cache freshness and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *application) {
		a.now = now
	}
}
