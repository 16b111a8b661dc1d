package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBucket serves a directory of images as a corpus.
type LocalBucket struct {
	dir string
}

// NewLocalBucket creates a bucket rooted at dir. The directory must exist.
func NewLocalBucket(dir string) (*LocalBucket, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat storage dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage dir %s is not a directory", abs)
	}
	return &LocalBucket{dir: abs}, nil
}

// List returns the regular, non-hidden files of the directory sorted by name.
func (b *LocalBucket) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("list cancelled: %w", err)
		}
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{
			Name:      e.Name(),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Fetch reads the named file. Names that escape the directory are not found.
func (b *LocalBucket) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	path, ok := b.resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	f, err := os.Open(path) //nolint:gosec // path is confined to the bucket dir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// URL returns a file:// locator for the named object.
func (b *LocalBucket) URL(name string) string {
	return "file://" + filepath.ToSlash(filepath.Join(b.dir, name))
}

// Dir returns the bucket root.
func (b *LocalBucket) Dir() string { return b.dir }

func (b *LocalBucket) resolve(name string) (string, bool) {
	if name == "" || filepath.IsAbs(name) {
		return "", false
	}
	path := filepath.Join(b.dir, filepath.Clean(name))
	rel, err := filepath.Rel(b.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return path, true
}
