package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS implements Index over a locally mounted archive.
type FS struct {
	mount string // absolute path the archive root is mounted at
}

// NewFS creates an FS backend. The mount directory must already exist.
func NewFS(mount string) (*FS, error) {
	abs, err := filepath.Abs(mount)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve mount: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("archive: stat mount: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive: mount is not a directory: %s", abs)
	}
	return &FS{mount: abs}, nil
}

// localPath maps an archive path onto the mount and rejects anything that
// escapes it.
func (f *FS) localPath(p string) (string, error) {
	if !IsAbs(p) {
		return "", fmt.Errorf("archive: relative paths not allowed: %s", p)
	}
	joined := filepath.Join(f.mount, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if joined != f.mount && !strings.HasPrefix(joined, f.mount+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive: path escapes mount: %s", p)
	}
	return joined, nil
}

// ListChildDirs returns the immediate subdirectories of p, sorted. Symlinks
// are not followed.
func (f *FS) ListChildDirs(ctx context.Context, p string) ([]string, error) {
	local, err := f.localPath(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(local)
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", p, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, Join(p, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SizeOf sums the sizes of all regular files under p. A path that is not
// on disk has size zero, as an empty S3 prefix does.
func (f *FS) SizeOf(ctx context.Context, p string) (Size, error) {
	local, err := f.localPath(p)
	if err != nil {
		return Size{}, err
	}
	if _, err := os.Lstat(local); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Size{}, nil
		}
		return Size{}, fmt.Errorf("archive: size %s: %w", p, err)
	}
	var size Size
	err = filepath.WalkDir(local, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size.Bytes += info.Size()
		size.Files++
		return nil
	})
	if err != nil {
		return Size{}, fmt.Errorf("archive: size %s: %w", p, err)
	}
	return size, nil
}
