package aggregate

import (
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// Share is a size with its percentage of the archive total.
type Share struct {
	Annotation   annotation.Annotation `json:"annotation"`
	OK           bool                  `json:"ok"`
	Size         archive.Size          `json:"size"`
	BytesPercent float64               `json:"bytes_percent"`
	FilesPercent float64               `json:"files_percent"`
}

// Split partitions the archive into ok and not-ok content.
type Split struct {
	Total     archive.Size `json:"total"`
	OK        Share        `json:"ok"`
	NotOK     Share        `json:"not_ok"`
	Top       Share        `json:"top"`
	Breakdown []Share      `json:"breakdown"`
}

func share(a annotation.Annotation, ok bool, s, total archive.Size) Share {
	return Share{
		Annotation:   a,
		OK:           ok,
		Size:         s,
		BytesPercent: Percent(s.Bytes, total.Bytes),
		FilesPercent: Percent(s.Files, total.Files),
	}
}

// OkVsNotOk splits the per-annotation sums by membership of ok. The
// residual always counts as not ok. Breakdown is sorted by bytes.
func OkVsNotOk(byAnnotation map[annotation.Annotation]archive.Size, top, total archive.Size, ok annotation.Set) Split {
	var good, bad archive.Size
	breakdown := make([]Share, 0, len(byAnnotation))
	for _, r := range SortedAnnotations(byAnnotation, ByBytes) {
		isOK := ok.Contains(r.Annotation)
		if isOK {
			good = good.Add(r.Size)
		} else {
			bad = bad.Add(r.Size)
		}
		breakdown = append(breakdown, share(r.Annotation, isOK, r.Size, total))
	}
	bad = bad.Add(top)

	return Split{
		Total:     total,
		OK:        share("ok", true, good, total),
		NotOK:     share("not_ok", false, bad, total),
		Top:       share(annotation.Missing, false, top, total),
		Breakdown: breakdown,
	}
}
