package archive

import (
	"context"
	"reflect"
	"testing"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"/badc/":     "/badc",
		"/badc//":    "/badc",
		"/":          "/",
		" /neodc/x ": "/neodc/x",
	}
	for in, want := range cases {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsDescendant(t *testing.T) {
	cases := []struct {
		child, ancestor string
		want            bool
	}{
		{"/a/b", "/a", true},
		{"/a/b/c", "/a", true},
		{"/a", "/a", false},
		{"/ab", "/a", false},
		{"/a", "/", true},
		{"/", "/", false},
	}
	for _, c := range cases {
		if got := IsDescendant(c.child, c.ancestor); got != c.want {
			t.Errorf("IsDescendant(%q, %q) = %v", c.child, c.ancestor, got)
		}
	}
}

func TestParentAndJoin(t *testing.T) {
	if got := Parent("/a/b"); got != "/a" {
		t.Errorf("Parent = %q", got)
	}
	if got := Parent("/a"); got != Root {
		t.Errorf("Parent = %q", got)
	}
	if got := Parent(Root); got != "" {
		t.Errorf("Parent(root) = %q", got)
	}
	if got := Join(Root, "a"); got != "/a" {
		t.Errorf("Join = %q", got)
	}
	if got := Join("/a", "b"); got != "/a/b" {
		t.Errorf("Join = %q", got)
	}
}

func TestCollection(t *testing.T) {
	cases := []struct {
		path  string
		depth int
		want  string
	}{
		{"/badc/cmip5/data/x", 2, "/badc/cmip5"},
		{"/badc/cmip5", 2, "/badc/cmip5"},
		{"/badc", 2, "/badc"},
		{"/badc/cmip5/data", 1, "/badc"},
	}
	for _, c := range cases {
		if got := Collection(c.path, c.depth); got != c.want {
			t.Errorf("Collection(%q, %d) = %q, want %q", c.path, c.depth, got, c.want)
		}
	}
}

func TestMemoryTree(t *testing.T) {
	m := NewMemory().
		AddFiles("/a/b", Size{Bytes: 10, Files: 1}).
		AddFiles("/a/c/d", Size{Bytes: 5, Files: 2}).
		AddDir("/e")

	ctx := context.Background()
	kids, err := m.ListChildDirs(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(kids, []string{"/a/b", "/a/c"}) {
		t.Errorf("children = %v", kids)
	}
	size, err := m.SizeOf(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if size != (Size{Bytes: 15, Files: 3}) {
		t.Errorf("size = %v", size)
	}
	if !reflect.DeepEqual(m.Leaves(), []string{"/a/b", "/a/c/d", "/e"}) {
		t.Errorf("leaves = %v", m.Leaves())
	}
	if _, err := m.SizeOf(ctx, "/nope"); err == nil {
		t.Error("expected error for unknown dir")
	}
}

func TestSizeArithmetic(t *testing.T) {
	a := Size{Bytes: 200, Files: 5}
	b := Size{Bytes: 160, Files: 4}
	if got := a.Sub(b); got != (Size{Bytes: 40, Files: 1}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Add(b); got != (Size{Bytes: 360, Files: 9}) {
		t.Errorf("Add = %v", got)
	}
}
