package report

import (
	"fmt"
	"sort"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/archive"
)

type dirTree struct {
	root gotree.Tree
	dirs map[string]gotree.Tree
}

func (t dirTree) node(p string) gotree.Tree {
	if p == archive.Root {
		return t.root
	}
	n := t.dirs[p]
	if n == nil {
		n = t.node(archive.Parent(p)).Add(base(p))
		t.dirs[p] = n
	}
	return n
}

func base(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// NotOKTree renders every not-ok directory of rep as a tree rooted at /.
func (p *Printer) NotOKTree(rep *aggregate.Report) string {
	entries := make([]aggregate.Entry, 0, len(rep.Dirs))
	for _, e := range rep.Dirs {
		if !p.opts.OK.Contains(e.Annotation) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	t := dirTree{root: gotree.New(archive.Root), dirs: make(map[string]gotree.Tree)}
	for _, e := range entries {
		parent := t.node(archive.Parent(e.Path))
		t.dirs[e.Path] = parent.Add(fmt.Sprintf("%s [%s, %s, %s files]",
			base(e.Path), e.Annotation, humanize.Bytes(uint64(max(e.Size.Bytes, 0))), humanize.Comma(e.Size.Files)))
	}
	return t.root.Print()
}

// Tree writes NotOKTree to the printer's writer.
func (p *Printer) Tree(rep *aggregate.Report) {
	p.title("not ok directories")
	fmt.Fprint(p.w, p.NotOKTree(rep))
}
