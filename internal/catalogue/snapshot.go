package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/archive"
)

// FileSource reads a snapshot prepared by hand or by another tool: either a
// JSON object of path -> state, or a JSON array of paths (all published).
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchAll implements Source.
func (f *FileSource) FetchAll(_ context.Context) (map[string]annotation.Annotation, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot parses either snapshot shape.
func DecodeSnapshot(data []byte) (map[string]annotation.Annotation, error) {
	var byPath map[string]string
	if err := json.Unmarshal(data, &byPath); err == nil {
		out := make(map[string]annotation.Annotation, len(byPath))
		for p, s := range byPath {
			state := annotation.Annotation(s)
			if state == "" {
				state = annotation.Unknown
			}
			out[archive.Clean(p)] = state
		}
		return out, nil
	}

	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("catalogue: decode snapshot: expected object or array: %w", err)
	}
	out := make(map[string]annotation.Annotation, len(paths))
	for _, p := range paths {
		out[archive.Clean(p)] = annotation.Published
	}
	return out, nil
}
