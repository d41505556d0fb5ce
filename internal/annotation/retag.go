package annotation

import (
	"fmt"
	"regexp"
)

// DefaultRetagPattern picks the collection name out of badc/neodc paths.
const DefaultRetagPattern = `^/(?:ba|neo)dc/(?P<collection>[\w-]+)/`

// RetagMissing renames the annotation of every missing entry whose path
// matches re to "missing_<collection>", where collection is the pattern's
// named group. It returns the number of entries changed.
func RetagMissing(s *Store, re *regexp.Regexp) (int, error) {
	idx := re.SubexpIndex("collection")
	if idx < 0 {
		return 0, fmt.Errorf("annotation: retag pattern %q has no (?P<collection>...) group", re.String())
	}
	n := 0
	for _, p := range s.Paths(Missing) {
		m := re.FindStringSubmatch(p)
		if m == nil || m[idx] == "" {
			continue
		}
		s.Set(p, Annotation(fmt.Sprintf("%s_%s", Missing, m[idx])))
		n++
	}
	return n, nil
}
