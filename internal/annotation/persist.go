package annotation

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/starford/catcoverage/internal/archive"
)

// The annotation file holds one directory per line:
//
//	<path> <collection> <annotation>
//
// separated by single spaces. The annotation is everything after the second
// space. The collection is written for readers of the file and recomputed
// from the path on load.

// Record is one parsed annotation line.
type Record struct {
	Path       string
	Collection string
	Annotation Annotation
}

// ParseError reports a malformed line in a persisted file.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// ParseLine parses a single annotation line. lineNo is used in errors.
func ParseLine(lineNo int, line string) (Record, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return Record{}, &ParseError{Line: lineNo, Text: line, Reason: "expected path, collection and annotation"}
	}
	path, collection, ann := parts[0], parts[1], parts[2]
	if !archive.IsAbs(path) {
		return Record{}, &ParseError{Line: lineNo, Text: line, Reason: "path is not absolute"}
	}
	if ann == "" {
		return Record{}, &ParseError{Line: lineNo, Text: line, Reason: "empty annotation"}
	}
	return Record{Path: archive.Clean(path), Collection: collection, Annotation: Annotation(ann)}, nil
}

// CheckPath reports whether p can be written to and read back from an
// annotation file: it must be absolute and free of spaces and line breaks.
func CheckPath(p string) error {
	if !archive.IsAbs(p) {
		return fmt.Errorf("annotation: path is not absolute: %q", p)
	}
	if strings.ContainsAny(p, " \r\n") {
		return fmt.Errorf("annotation: path contains a space or line break: %q", p)
	}
	return nil
}

// Save writes every entry of s in insertion order.
func Save(w io.Writer, s *Store) error {
	bw := bufio.NewWriter(w)
	for _, d := range s.Dirs() {
		if err := CheckPath(d.Path); err != nil {
			return err
		}
		if strings.Contains(string(d.Annotation), "\n") {
			return fmt.Errorf("annotation: annotation cannot be saved: %q", d.Annotation)
		}
		if _, err := fmt.Fprintf(bw, "%s %s %s\n", d.Path, d.Collection, d.Annotation); err != nil {
			return fmt.Errorf("annotation: save: %w", err)
		}
	}
	return bw.Flush()
}

// Load reads a file written by Save into a new store. Blank lines are
// skipped; any other malformed line fails the load with a *ParseError.
func Load(r io.Reader, collectionDepth int) (*Store, error) {
	s := NewStore(collectionDepth)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseLine(lineNo, line)
		if err != nil {
			return nil, fmt.Errorf("annotation: load: %w", err)
		}
		s.Set(rec.Path, rec.Annotation)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("annotation: load: %w", err)
	}
	return s, nil
}

// ReadPathList reads one path per line, trimming whitespace and trailing
// slashes and skipping blank lines.
func ReadPathList(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, archive.Clean(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("annotation: read path list: %w", err)
	}
	return out, nil
}

// WritePathList writes one newline-terminated path per line.
func WritePathList(w io.Writer, paths []string) error {
	bw := bufio.NewWriter(w)
	for _, p := range paths {
		if _, err := bw.WriteString(p + "\n"); err != nil {
			return fmt.Errorf("annotation: write path list: %w", err)
		}
	}
	return bw.Flush()
}
