package annotation

import (
	"log/slog"
	"sort"

	"github.com/starford/catcoverage/internal/archive"
)

// Layer is one annotation source applied while seeding a store.
//
// Authoritative layers overwrite earlier annotations for the same path.
// Provisional layers (outputs of an earlier run) only fill gaps: an entry is
// dropped if it coincides with, sits above, or sits below an existing one.
type Layer struct {
	Name        string
	Records     []Record
	Provisional bool
}

// PathLayer builds a layer annotating every path with a.
func PathLayer(name string, paths []string, a Annotation, provisional bool) Layer {
	recs := make([]Record, 0, len(paths))
	for _, p := range paths {
		recs = append(recs, Record{Path: p, Annotation: a})
	}
	return Layer{Name: name, Records: recs, Provisional: provisional}
}

// MapLayer builds an authoritative layer from a path -> annotation map,
// ordered by path.
func MapLayer(name string, m map[string]Annotation) Layer {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	recs := make([]Record, 0, len(paths))
	for _, p := range paths {
		recs = append(recs, Record{Path: p, Annotation: m[p]})
	}
	return Layer{Name: name, Records: recs}
}

// SeedStats counts what each layer contributed.
type SeedStats struct {
	Added   map[string]int
	Dropped map[string]int
	// Rejected counts records outside root or with paths CheckPath refuses.
	Rejected map[string]int
}

// Seed applies layers to s in order. Only root and paths below it are
// seeded. Callers order authoritative layers before provisional ones.
func Seed(s *Store, root string, logger *slog.Logger, layers ...Layer) SeedStats {
	stats := SeedStats{Added: map[string]int{}, Dropped: map[string]int{}, Rejected: map[string]int{}}
	root = archive.Clean(root)
	for _, l := range layers {
		for _, r := range l.Records {
			p := archive.Clean(r.Path)
			if err := CheckPath(p); err != nil {
				stats.Rejected[l.Name]++
				logger.Warn("seed: skipped unusable path",
					slog.String("layer", l.Name),
					slog.String("error", err.Error()))
				continue
			}
			if p != root && !archive.IsDescendant(p, root) {
				stats.Rejected[l.Name]++
				logger.Debug("seed: skipped path outside root",
					slog.String("layer", l.Name),
					slog.String("path", p),
					slog.String("root", root))
				continue
			}
			if !l.Provisional {
				s.Set(p, r.Annotation)
				stats.Added[l.Name]++
				continue
			}
			if s.SetIfDisjoint(p, r.Annotation) {
				stats.Added[l.Name]++
				continue
			}
			stats.Dropped[l.Name]++
			logger.Debug("seed: dropped overlapping entry",
				slog.String("layer", l.Name),
				slog.String("path", p),
				slog.String("annotation", string(r.Annotation)))
		}
		logger.Info("seed: layer applied",
			slog.String("layer", l.Name),
			slog.Int("added", stats.Added[l.Name]),
			slog.Int("dropped", stats.Dropped[l.Name]),
			slog.Int("rejected", stats.Rejected[l.Name]))
	}
	return stats
}
