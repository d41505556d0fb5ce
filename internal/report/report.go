// Package report renders coverage aggregates as plain-text tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
)

// Defaults for ranked tables.
const (
	DefaultMaxRows    = 400
	DefaultMinPercent = 0.00001
)

// Options controls which rows are printed.
type Options struct {
	// OK annotations are left out of ranked tables.
	OK         annotation.Set
	MaxRows    int
	MinPercent float64
	NoColor    bool
}

// Printer writes report sections to w.
type Printer struct {
	w       io.Writer
	opts    Options
	heading *color.Color
	warn    *color.Color
	good    *color.Color
	bad     *color.Color
}

// New creates a Printer.
func New(w io.Writer, opts Options) *Printer {
	if opts.OK == nil {
		opts.OK = annotation.NewSet(annotation.DefaultOK...)
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	p := &Printer{
		w:       w,
		opts:    opts,
		heading: color.New(color.FgCyan, color.Bold),
		warn:    color.New(color.FgYellow),
		good:    color.New(color.FgGreen),
		bad:     color.New(color.FgRed),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{p.heading, p.warn, p.good, p.bad} {
			c.DisableColor()
		}
	}
	return p
}

// Coverage prints every section of rep.
func (p *Printer) Coverage(rep *aggregate.Report) {
	p.Warnings(rep)
	p.Ranked(rep, aggregate.ByFiles)
	p.Ranked(rep, aggregate.ByBytes)
	p.Annotations(rep)
	p.Split(rep)
	p.Matrix(rep)
}

func (p *Printer) title(s string) {
	fmt.Fprintln(p.w)
	p.heading.Fprintln(p.w, s)
}

func (p *Printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
}

func label(f aggregate.Field) string {
	if f == aggregate.ByFiles {
		return "number"
	}
	return "volume"
}

func other(f aggregate.Field) aggregate.Field {
	if f == aggregate.ByFiles {
		return aggregate.ByBytes
	}
	return aggregate.ByFiles
}

func value(f aggregate.Field, r aggregate.Row) int64 {
	if f == aggregate.ByFiles {
		return r.Size.Files
	}
	return r.Size.Bytes
}

func totalOf(f aggregate.Field, rep *aggregate.Report) int64 {
	if f == aggregate.ByFiles {
		return rep.Residual.Total.Files
	}
	return rep.Residual.Total.Bytes
}

// Ranked prints the not-ok (annotation, collection) rows in descending
// order of primary with running percentages. Cumulative figures include
// rows too small to print.
func (p *Printer) Ranked(rep *aggregate.Report, primary aggregate.Field) {
	secondary := other(primary)
	p.title("sorted by " + label(primary))

	tw := p.table()
	fmt.Fprintf(tw, "Annotation\tCollection\tpercent by %s\tcum. percent by %s\tpercent by %s\tcum. percent by %s\n",
		label(primary), label(primary), label(secondary), label(secondary))

	var cumP, cumS float64
	printed := 0
	for _, r := range aggregate.Sorted(rep.ByKey, primary) {
		if p.opts.OK.Contains(r.Annotation) {
			continue
		}
		pp := aggregate.Percent(value(primary, r), totalOf(primary, rep))
		ps := aggregate.Percent(value(secondary, r), totalOf(secondary, rep))
		cumP += pp
		cumS += ps
		if pp < p.opts.MinPercent {
			continue
		}
		if printed == p.opts.MaxRows {
			break
		}
		printed++
		fmt.Fprintf(tw, "%s\t%s\t%.5f\t%.5f\t%.5f\t%.5f\n", r.Annotation, r.Collection, pp, cumP, ps, cumS)
	}
	_ = tw.Flush()
}

// Annotations prints per-annotation totals sorted by volume.
func (p *Printer) Annotations(rep *aggregate.Report) {
	p.title("annotations by volume")
	total := rep.Residual.Total

	tw := p.table()
	fmt.Fprintln(tw, "Annotation\tnumber\tpercent by number\tvolume\tpercent by volume")
	for _, r := range rep.Annotations {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%.3f\n",
			r.Annotation,
			humanize.Comma(r.Size.Files),
			aggregate.Percent(r.Size.Files, total.Files),
			humanize.Bytes(uint64(max(r.Size.Bytes, 0))),
			aggregate.Percent(r.Size.Bytes, total.Bytes))
	}
	top := rep.Residual.Top
	fmt.Fprintf(tw, "%s (%s)\t%s\t%.3f\t%s\t%.3f\n",
		annotation.Missing, annotation.TopCollection,
		humanize.Comma(top.Files),
		aggregate.Percent(top.Files, total.Files),
		signedBytes(top.Bytes),
		aggregate.Percent(top.Bytes, total.Bytes))
	_ = tw.Flush()
}

// signedBytes formats a byte count that may be negative after an
// overlapping subtraction.
func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// Split prints the ok / not-ok partition.
func (p *Printer) Split(rep *aggregate.Report) {
	p.title("coverage")
	s := rep.Split

	tw := p.table()
	fmt.Fprintln(tw, "\tnumber\tpercent by number\tvolume\tpercent by volume")
	for _, row := range []struct {
		sh aggregate.Share
		c  *color.Color
	}{{s.OK, p.good}, {s.NotOK, p.bad}} {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.sh.Annotation,
			humanize.Comma(row.sh.Size.Files),
			row.c.Sprintf("%.3f", row.sh.FilesPercent),
			signedBytes(row.sh.Size.Bytes),
			row.c.Sprintf("%.3f", row.sh.BytesPercent))
	}
	fmt.Fprintf(tw, "total\t%s\t\t%s\t\n", humanize.Comma(s.Total.Files), signedBytes(s.Total.Bytes))
	_ = tw.Flush()
}

// Matrix prints file counts per collection and annotation.
func (p *Printer) Matrix(rep *aggregate.Report) {
	p.title("number by collection")
	anns := aggregate.Annotations(rep.ByKey)

	tw := p.table()
	header := []string{"Collection"}
	for _, a := range anns {
		header = append(header, string(a))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, c := range aggregate.Collections(rep.ByKey) {
		cells := []string{c}
		for _, a := range anns {
			n := rep.ByKey[aggregate.Key{Annotation: a, Collection: c}].Files
			cells = append(cells, humanize.Comma(n))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

// Warnings prints integrity warnings, if any.
func (p *Printer) Warnings(rep *aggregate.Report) {
	for _, w := range rep.Residual.Warnings {
		p.warn.Fprintf(p.w, "warning: %s; residual is not reliable\n", w)
	}
}
