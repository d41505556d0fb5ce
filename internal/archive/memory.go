package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Index. Directory sizes are the sum of the files
// placed in them and in all of their descendants.
type Memory struct {
	mu    sync.Mutex
	dirs  map[string]struct{}
	own   map[string]Size // files held directly in a directory
	lists map[string]int  // ListChildDirs calls per path
	sizes map[string]int  // SizeOf calls per path
}

// NewMemory returns an empty tree containing only the root.
func NewMemory() *Memory {
	return &Memory{
		dirs:  map[string]struct{}{Root: {}},
		own:   map[string]Size{},
		lists: map[string]int{},
		sizes: map[string]int{},
	}
}

// AddDir adds p and any missing ancestors.
func (m *Memory) AddDir(p string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addDirLocked(Clean(p))
	return m
}

// AddFiles records files held directly in p, creating p if needed.
func (m *Memory) AddFiles(p string, size Size) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = Clean(p)
	m.addDirLocked(p)
	m.own[p] = m.own[p].Add(size)
	return m
}

func (m *Memory) addDirLocked(p string) {
	for p != "" {
		if _, ok := m.dirs[p]; ok {
			return
		}
		m.dirs[p] = struct{}{}
		p = Parent(p)
	}
}

// ListChildDirs implements Lister.
func (m *Memory) ListChildDirs(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dirs[p]; !ok {
		return nil, fmt.Errorf("archive: list %s: no such directory", p)
	}
	m.lists[p]++
	var out []string
	for d := range m.dirs {
		if d != Root && Parent(d) == p {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SizeOf implements Sizer.
func (m *Memory) SizeOf(ctx context.Context, p string) (Size, error) {
	if err := ctx.Err(); err != nil {
		return Size{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dirs[p]; !ok {
		return Size{}, fmt.Errorf("archive: size %s: no such directory", p)
	}
	m.sizes[p]++
	var total Size
	for d, s := range m.own {
		if d == p || IsDescendant(d, p) {
			total = total.Add(s)
		}
	}
	return total, nil
}

// Listed returns every path ListChildDirs was called for.
func (m *Memory) Listed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.lists))
	for p := range m.lists {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SizeCalls returns how many times SizeOf was called for p.
func (m *Memory) SizeCalls(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sizes[p]
}

// Leaves returns every directory without subdirectories.
func (m *Memory) Leaves() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	parents := map[string]struct{}{}
	for d := range m.dirs {
		if d != Root {
			parents[Parent(d)] = struct{}{}
		}
	}
	var out []string
	for d := range m.dirs {
		if _, ok := parents[d]; !ok && d != Root {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
