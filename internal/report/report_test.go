package report

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

func buildReport(t *testing.T) *aggregate.Report {
	t.Helper()
	tree := archive.NewMemory().
		AddFiles("/badc/cmip5", archive.Size{Bytes: 100, Files: 1}).
		AddFiles("/badc/ukmo", archive.Size{Bytes: 50, Files: 2}).
		AddFiles("/neodc/tmp", archive.Size{Bytes: 10, Files: 1}).
		AddFiles(archive.Root, archive.Size{Bytes: 40, Files: 1})
	store := annotation.NewStore(2)
	store.Set("/badc/cmip5", annotation.Published)
	store.Set("/badc/ukmo", annotation.Missing)
	store.Set("/neodc/tmp", annotation.Ignore)

	rep, err := aggregate.Build(context.Background(), store, tree, aggregate.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return rep
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.Join(strings.Fields(l), " "))
		}
	}
	return out
}

func TestRankedSkipsOKAndAccumulates(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{NoColor: true}).Ranked(buildReport(t), aggregate.ByBytes)

	got := lines(buf.String())
	if len(got) != 4 {
		t.Fatalf("lines = %q", got)
	}
	want := map[int]string{
		0: "sorted by volume",
		2: "missing /badc/ukmo 25.00000 25.00000 40.00000 40.00000",
		3: "missing TOP 20.00000 45.00000 20.00000 60.00000",
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("line %d = %q, want %q", i, got[i], w)
		}
	}
	if strings.Contains(buf.String(), "published") {
		t.Error("ok annotation listed in ranked table")
	}
}

func TestRankedLimits(t *testing.T) {
	rep := buildReport(t)

	var buf bytes.Buffer
	New(&buf, Options{NoColor: true, MaxRows: 1}).Ranked(rep, aggregate.ByBytes)
	if got := lines(buf.String()); len(got) != 3 {
		t.Errorf("max rows: lines = %q", got)
	}

	buf.Reset()
	New(&buf, Options{NoColor: true, MinPercent: 21}).Ranked(rep, aggregate.ByBytes)
	got := lines(buf.String())
	if len(got) != 3 || !strings.Contains(got[2], "/badc/ukmo") {
		t.Errorf("min percent: lines = %q", got)
	}
}

func TestAnnotationsTable(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{NoColor: true}).Annotations(buildReport(t))

	got := lines(buf.String())
	if len(got) != 6 {
		t.Fatalf("lines = %q", got)
	}
	if got[2] != "published 1 20.000 100 B 50.000" {
		t.Errorf("published row = %q", got[2])
	}
	if got[5] != "missing (TOP) 1 20.000 40 B 20.000" {
		t.Errorf("residual row = %q", got[5])
	}
}

func TestSplitAndMatrix(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, Options{NoColor: true})
	rep := buildReport(t)
	p.Split(rep)
	p.Matrix(rep)

	got := lines(buf.String())
	for _, want := range []string{
		"ok 2 40.000 110 B 55.000",
		"not_ok 3 60.000 90 B 45.000",
		"Collection ignore missing published",
		"TOP 0 1 0",
		"/badc/ukmo 0 2 0",
	} {
		if !slices.Contains(got, want) {
			t.Errorf("missing line %q in:\n%s", want, buf.String())
		}
	}
}

func TestNotOKTree(t *testing.T) {
	rep := buildReport(t)
	got := New(&bytes.Buffer{}, Options{NoColor: true}).NotOKTree(rep)
	want := "/\n" +
		"└── badc\n" +
		"    └── ukmo [missing, 50 B, 2 files]\n"
	if got != want {
		t.Errorf("tree:\n%s\nwant:\n%s", got, want)
	}
}

func TestWarningsPrinted(t *testing.T) {
	rep := buildReport(t)
	rep.Residual.Warnings = []aggregate.IntegrityWarning{{Path: "/badc", Descendants: []string{"/badc/ukmo"}}}

	var buf bytes.Buffer
	New(&buf, Options{NoColor: true}).Warnings(rep)
	want := "warning: /badc has 1 annotated descendants; residual is not reliable\n"
	if buf.String() != want {
		t.Errorf("warnings = %q, want %q", buf.String(), want)
	}
}
