package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

type failingSizer struct{}

func (failingSizer) SizeOf(context.Context, string) (archive.Size, error) {
	return archive.Size{}, errors.New("summary service unavailable")
}

func mustPatterns(t *testing.T, exprs ...string) *Patterns {
	t.Helper()
	p, err := CompilePatterns(exprs...)
	if err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}
	return p
}

func TestClassifyOrder(t *testing.T) {
	tree := archive.NewMemory().
		AddFiles("/archive/x.tmp", archive.Size{Bytes: 50000, Files: 10}).
		AddFiles("/archive/p/q", archive.Size{Bytes: 100, Files: 100}).
		AddFiles("/archive/tiny", archive.Size{Bytes: 10, Files: 1}).
		AddFiles("/archive/big", archive.Size{Bytes: 1 << 20, Files: 3}).
		AddDir("/archive/a")

	store := annotation.NewStore(2)
	store.Set("/archive/a", annotation.Published)
	store.Set("/archive/p/q", annotation.Published)

	c := New(store, mustPatterns(t, `.*\.tmp$`), tree, DefaultPolicy())
	ctx := context.Background()

	tests := []struct {
		path string
		kind Kind
		ann  annotation.Annotation
	}{
		{"/archive/a", Existing, annotation.Published},
		{"/archive/x.tmp", IgnoredByPattern, annotation.IgnorePattern},
		{"/archive/p", Descend, ""},
		{"/archive/tiny", ReadmeOnly, annotation.ReadmeOnly},
		{"/archive/big", Missing, annotation.Missing},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := c.Classify(ctx, tt.path)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if res.Kind != tt.kind || res.Annotation != tt.ann {
				t.Errorf("got (%v, %q), want (%v, %q)", res.Kind, res.Annotation, tt.kind, tt.ann)
			}
		})
	}

	if store.Has("/archive/p") {
		t.Error("descend created an entry")
	}
	if d, ok := store.Get("/archive/x.tmp"); !ok || d.Annotation != annotation.IgnorePattern {
		t.Errorf("/archive/x.tmp = %+v", d)
	}
}

func TestPatternBeatsDescendants(t *testing.T) {
	store := annotation.NewStore(2)
	store.Set("/archive/scratch/keep", annotation.Published)

	c := New(store, mustPatterns(t, `/scratch`), archive.NewMemory(), DefaultPolicy())
	res, err := c.Classify(context.Background(), "/archive/scratch")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Kind != IgnoredByPattern || res.Pattern != `/scratch` {
		t.Errorf("result = %+v", res)
	}
}

func TestExistingBeatsPattern(t *testing.T) {
	store := annotation.NewStore(2)
	store.Set("/archive/x.tmp", annotation.Citable)
	c := New(store, mustPatterns(t, `\.tmp$`), archive.NewMemory(), DefaultPolicy())

	res, err := c.Classify(context.Background(), "/archive/x.tmp")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Kind != Existing || res.Annotation != annotation.Citable {
		t.Errorf("result = %+v", res)
	}
}

func TestReadmeThresholdsAreStrict(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		size archive.Size
		want bool
	}{
		{archive.Size{}, true},
		{archive.Size{Bytes: 9999, Files: 3}, true},
		{archive.Size{Bytes: 10000, Files: 1}, false},
		{archive.Size{Bytes: 10, Files: 4}, false},
	}
	for _, tt := range tests {
		if got := p.ReadmeOnly(tt.size); got != tt.want {
			t.Errorf("ReadmeOnly(%v) = %v, want %v", tt.size, got, tt.want)
		}
	}

	custom := Policy{ReadmeMaxFiles: 10, ReadmeMaxBytes: 1 << 20}
	if !custom.ReadmeOnly(archive.Size{Bytes: 50000, Files: 9}) {
		t.Error("custom policy should accept (50000, 9)")
	}
}

func TestSizeFailurePropagates(t *testing.T) {
	c := New(annotation.NewStore(2), nil, failingSizer{}, DefaultPolicy())
	_, err := c.Classify(context.Background(), "/archive/x")
	if err == nil || !strings.Contains(err.Error(), "summary service unavailable") {
		t.Errorf("err = %v", err)
	}
}

func TestReadPatterns(t *testing.T) {
	p, err := ReadPatterns(strings.NewReader(".*\\.tmp$\n\n/scratch/\n"))
	if err != nil {
		t.Fatalf("ReadPatterns: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("len = %d, want 2", p.Len())
	}
	if expr, ok := p.Match("/badc/run/scratch/x"); !ok || expr != "/scratch/" {
		t.Errorf("Match = (%q, %v)", expr, ok)
	}
	if _, ok := p.Match("/badc/data"); ok {
		t.Error("/badc/data matched")
	}
}

func TestReadPatternsInvalid(t *testing.T) {
	_, err := ReadPatterns(strings.NewReader("ok\n\n([unclosed\n"))
	var perr *PatternError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PatternError", err)
	}
	if perr.Line != 3 {
		t.Errorf("line = %d, want 3", perr.Line)
	}
}

func TestNilPatternsNeverMatch(t *testing.T) {
	var p *Patterns
	if _, ok := p.Match("/anything"); ok {
		t.Error("nil patterns matched")
	}
	if p.Len() != 0 {
		t.Errorf("len = %d", p.Len())
	}
}

func TestKindString(t *testing.T) {
	if Descend.String() != "descend" {
		t.Errorf("Descend = %q", Descend.String())
	}
	if Descend.Terminal() || !Missing.Terminal() {
		t.Error("terminal kinds wrong")
	}
}
