package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/classify"
	"github.com/starford/catcoverage/internal/storage"
	"github.com/starford/catcoverage/internal/testutil"
)

type staticCatalogue map[string]annotation.Annotation

func (c staticCatalogue) FetchAll(context.Context) (map[string]annotation.Annotation, error) {
	out := make(map[string]annotation.Annotation, len(c))
	for p, a := range c {
		out[p] = a
	}
	return out, nil
}

type brokenCatalogue struct{}

func (brokenCatalogue) FetchAll(context.Context) (map[string]annotation.Annotation, error) {
	return nil, errors.New("catalogue unavailable")
}

func appTree() *archive.Memory {
	return archive.NewMemory().
		AddFiles("/badc/cmip5", archive.Size{Bytes: 100, Files: 1}).
		AddFiles("/badc/ukmo/v1", archive.Size{Bytes: 1000, Files: 5}).
		AddFiles("/badc/ukmo/raw", archive.Size{Bytes: 40000, Files: 15}).
		AddFiles("/badc/ukmo/raw/2020", archive.Size{Bytes: 10000, Files: 5}).
		AddFiles("/neodc/tmp", archive.Size{Bytes: 10, Files: 1}).
		AddFiles("/neodc/docs", archive.Size{Bytes: 5, Files: 1}).
		AddFiles("/neodc/scratch.tmp", archive.Size{Bytes: 50000, Files: 10}).
		AddFiles(archive.Root, archive.Size{Bytes: 40, Files: 1})
}

type testApp struct {
	wd    *storage.Workdir
	cfg   *Config
	tree  *archive.Memory
	clock time.Time
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	wd := testutil.TestWorkdir(t)
	cfg := NewDefaultConfig()
	cfg.Workdir.Path = wd.Root()
	cfg.Report.NoColor = true
	testutil.WriteFile(t, wd, storage.IgnoreFile, "/neodc/tmp/")
	testutil.WriteFile(t, wd, storage.IgnorePatternsFile, `\.tmp$`)
	return &testApp{
		wd:    wd,
		cfg:   cfg,
		tree:  appTree(),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (a *testApp) opts(extra ...Option) []Option {
	now := a.clock
	return append([]Option{
		WithConfig(a.cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithArchive(a.tree),
		WithClock(func() time.Time { return now }),
	}, extra...)
}

func (a *testApp) read(t *testing.T, name string) string {
	t.Helper()
	data, err := a.wd.Read(name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

var firstCatalogue = staticCatalogue{
	"/badc/cmip5":   annotation.Published,
	"/badc/ukmo/v1": annotation.Published,
}

func TestFindMissing(t *testing.T) {
	app := newTestApp(t)
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(firstCatalogue))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}

	want := strings.Join([]string{
		"/neodc/tmp /neodc/tmp ignore",
		"/badc/cmip5 /badc/cmip5 published",
		"/badc/ukmo/v1 /badc/ukmo published",
		"/badc/ukmo/raw /badc/ukmo missing",
		"/neodc/docs /neodc/docs readme_only",
		"/neodc/scratch.tmp /neodc/scratch.tmp ignore_pattern",
	}, "\n") + "\n"
	if got := app.read(t, storage.AnnotationsFile); got != want {
		t.Errorf("annotations =\n%s\nwant\n%s", got, want)
	}
	if got := app.read(t, storage.MissingFile); got != "/badc/ukmo/raw\n" {
		t.Errorf("missing = %q", got)
	}
	if got := app.read(t, storage.PatternMatchesFile); got != "/neodc/scratch.tmp\n" {
		t.Errorf("pattern matches = %q", got)
	}
	if !app.wd.Exists(storage.CatalogueCacheFile) {
		t.Error("catalogue snapshot not cached")
	}
}

func TestFindMissingIncremental(t *testing.T) {
	app := newTestApp(t)
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(firstCatalogue))...); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A record below the previously missing directory supersedes it.
	app.clock = app.clock.Add(25 * time.Hour)
	second := staticCatalogue{
		"/badc/cmip5":         annotation.Published,
		"/badc/ukmo/v1":       annotation.Published,
		"/badc/ukmo/raw/2020": annotation.Citable,
	}
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(second), WithIncremental(true))...); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if got := app.read(t, storage.MissingFile); got != "" {
		t.Errorf("missing = %q, want empty", got)
	}
	store, err := annotation.Load(strings.NewReader(app.read(t, storage.AnnotationsFile)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if store.Has("/badc/ukmo/raw") {
		t.Error("stale missing entry kept above a catalogue record")
	}
	if d, ok := store.Get("/badc/ukmo/raw/2020"); !ok || d.Annotation != annotation.Citable {
		t.Errorf("/badc/ukmo/raw/2020 = %+v, %v", d, ok)
	}
	if len(store.Overlaps()) != 0 {
		t.Errorf("overlaps = %v", store.Overlaps())
	}
}

func TestFindMissingCatalogueFailureWritesNothing(t *testing.T) {
	app := newTestApp(t)
	err := FindMissing(context.Background(), app.opts(WithCatalogue(brokenCatalogue{}))...)
	if err == nil {
		t.Fatal("expected catalogue error")
	}
	for _, name := range []string{storage.AnnotationsFile, storage.MissingFile, storage.PatternMatchesFile} {
		if app.wd.Exists(name) {
			t.Errorf("%s written after failed run", name)
		}
	}
}

func TestFindMissingInvalidPattern(t *testing.T) {
	app := newTestApp(t)
	testutil.WriteFile(t, app.wd, storage.IgnorePatternsFile, `ok`, `(unclosed`)

	err := FindMissing(context.Background(), app.opts(WithCatalogue(firstCatalogue))...)
	var perr *classify.PatternError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *classify.PatternError", err)
	}
	if app.wd.Exists(storage.AnnotationsFile) {
		t.Error("annotations written after failed run")
	}
}

func TestFindMissingWithoutOperatorInputs(t *testing.T) {
	app := newTestApp(t)
	tree := archive.NewMemory().AddFiles("/a/b", archive.Size{Bytes: 50000, Files: 10})
	wd := testutil.TestWorkdir(t)
	app.wd, app.tree = wd, tree
	app.cfg.Workdir.Path = wd.Root()

	if err := FindMissing(context.Background(), app.opts(WithCatalogue(staticCatalogue{}))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}
	if got := app.read(t, storage.MissingFile); got != "/a\n" {
		t.Errorf("missing = %q", got)
	}
}

func TestFindMissingScopedToRoot(t *testing.T) {
	app := newTestApp(t)
	app.cfg.Archive.Root = "/badc"
	cat := staticCatalogue{
		"/badc/cmip5":    annotation.Published,
		"/badc/ukmo/v1":  annotation.Published,
		"/neodc/sentry":  annotation.Published,
		"badc/relative":  annotation.Citable,
		"/badc/a b/data": annotation.Citable,
	}
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(cat))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}

	want := strings.Join([]string{
		"/badc/cmip5 /badc/cmip5 published",
		"/badc/ukmo/v1 /badc/ukmo published",
		"/badc/ukmo/raw /badc/ukmo missing",
	}, "\n") + "\n"
	if got := app.read(t, storage.AnnotationsFile); got != want {
		t.Errorf("annotations =\n%s\nwant\n%s", got, want)
	}

	store, err := annotation.Load(strings.NewReader(app.read(t, storage.AnnotationsFile)), 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rep, err := aggregate.Build(context.Background(), store, app.tree, aggregate.Options{Root: "/badc"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rep.Residual.Total != (archive.Size{Bytes: 51100, Files: 26}) {
		t.Errorf("total = %v", rep.Residual.Total)
	}
	if rep.Residual.Top != (archive.Size{}) {
		t.Errorf("top = %v, want zero", rep.Residual.Top)
	}
}

func TestFindMissingAnnotatedRoot(t *testing.T) {
	app := newTestApp(t)
	app.cfg.Archive.Root = "/badc/ukmo"
	cat := staticCatalogue{
		"/badc/ukmo":  annotation.Citable,
		"/badc/cmip5": annotation.Published,
	}
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(cat))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}
	if got := app.read(t, storage.AnnotationsFile); got != "/badc/ukmo /badc/ukmo citable\n" {
		t.Errorf("annotations = %q", got)
	}
	if listed := app.tree.Listed(); len(listed) != 0 {
		t.Errorf("listed %v under an annotated root", listed)
	}
}

func TestReportCoverageWithRemovedRecordOnMount(t *testing.T) {
	app := newTestApp(t)
	mount := t.TempDir()
	live := filepath.Join(mount, "badc", "live")
	if err := os.MkdirAll(live, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(live, "x.nc"), make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	app.cfg.Archive.Backend = BackendFS
	app.cfg.Archive.Mount = mount

	now := app.clock
	opts := []Option{
		WithConfig(app.cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }),
	}
	cat := staticCatalogue{
		"/badc/live": annotation.Published,
		"/badc/gone": annotation.Removed,
	}
	if err := FindMissing(context.Background(), append(opts, WithCatalogue(cat))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}

	var out bytes.Buffer
	if err := ReportCoverage(context.Background(), append(opts, WithOutput(&out))...); err != nil {
		t.Fatalf("ReportCoverage: %v", err)
	}
	if !strings.Contains(out.String(), "removed") {
		t.Errorf("report does not list the removed record:\n%s", out.String())
	}
}

func TestReportCoverage(t *testing.T) {
	app := newTestApp(t)
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(firstCatalogue))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}

	var out bytes.Buffer
	if err := ReportCoverage(context.Background(), app.opts(WithOutput(&out), WithTree(true))...); err != nil {
		t.Fatalf("ReportCoverage: %v", err)
	}
	got := out.String()
	for _, want := range []string{"/badc/ukmo", "not ok directories", "raw [missing", "docs [readme_only"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestReportCoverageWithoutAnnotations(t *testing.T) {
	app := newTestApp(t)
	err := ReportCoverage(context.Background(), app.opts(WithOutput(io.Discard))...)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReportCoverageStrictIntegrity(t *testing.T) {
	app := newTestApp(t)
	app.cfg.Report.StrictIntegrity = true
	testutil.WriteFile(t, app.wd, storage.AnnotationsFile,
		"/badc /badc missing",
		"/badc/cmip5 /badc/cmip5 published",
	)
	err := ReportCoverage(context.Background(), app.opts(WithOutput(io.Discard))...)
	if !errors.Is(err, apperr.ErrIntegrity) {
		t.Errorf("err = %v, want ErrIntegrity", err)
	}
}

func TestRetagMissing(t *testing.T) {
	app := newTestApp(t)
	if err := FindMissing(context.Background(), app.opts(WithCatalogue(firstCatalogue))...); err != nil {
		t.Fatalf("FindMissing: %v", err)
	}
	if err := RetagMissing(context.Background(), app.opts()...); err != nil {
		t.Fatalf("RetagMissing: %v", err)
	}

	store, err := annotation.Load(strings.NewReader(app.read(t, storage.AnnotationsFile)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := store.Get("/badc/ukmo/raw"); d.Annotation != "missing_ukmo" {
		t.Errorf("annotation = %q, want missing_ukmo", d.Annotation)
	}
	if store.Len() != 6 {
		t.Errorf("entries = %d, want 6", store.Len())
	}
}

func TestRetagMissingBadPattern(t *testing.T) {
	app := newTestApp(t)
	testutil.WriteFile(t, app.wd, storage.AnnotationsFile, "/badc/x/y /badc/x missing")
	if err := RetagMissing(context.Background(), app.opts(WithRetagPattern(`^/badc/`))...); err == nil {
		t.Error("pattern without a collection group should fail")
	}
}

func TestRunWithoutConfig(t *testing.T) {
	if err := FindMissing(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}
