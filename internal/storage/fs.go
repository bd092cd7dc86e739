package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ugoite/ugoite/internal/tracing"
)

// ErrPathEscapesRoot is returned when a key path would resolve outside
// the operator's root directory.
var ErrPathEscapesRoot = errors.New("storage: path escapes root directory")

// FS is an Operator backed by a local filesystem directory.
// Writes are atomic: content is written to a temp file in the target
// directory and renamed into place, so readers never observe a partial file.
type FS struct {
	root string
}

// NewFS creates a filesystem operator rooted at the given directory.
// The directory is created lazily on first write.
func NewFS(root string) *FS {
	return &FS{root: filepath.Clean(root)}
}

// resolve maps a key path onto the filesystem, rejecting traversal.
func (f *FS) resolve(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	full := filepath.Join(f.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(f.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, path)
	}
	return full, nil
}

// Exists reports whether the path exists.
func (f *FS) Exists(ctx context.Context, path string) (ok bool, err error) {
	_, end := tracing.StartStorageSpan(ctx, "fs", tracing.StorageOperationExists)
	defer func() { end(err) }()

	full, err := f.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return true, nil
}

// Read returns the file content at path, or ErrNotFound.
func (f *FS) Read(ctx context.Context, path string) (data []byte, err error) {
	_, end := tracing.StartStorageSpan(ctx, "fs", tracing.StorageOperationRead)
	defer func() { end(err) }()

	full, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the file at path via temp file + rename.
func (f *FS) Write(ctx context.Context, path string, data []byte) (err error) {
	_, end := tracing.StartStorageSpan(ctx, "fs", tracing.StorageOperationWrite)
	defer func() { end(err) }()

	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return fmt.Errorf("storage: temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	return nil
}

// CreateDir ensures the directory exists.
func (f *FS) CreateDir(_ context.Context, path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", path, err)
	}
	return nil
}

// List returns all file paths under prefix, sorted ascending.
// Returned paths are slash-separated keys relative to the root.
func (f *FS) List(ctx context.Context, prefix string) (paths []string, err error) {
	_, end := tracing.StartStorageSpan(ctx, "fs", tracing.StorageOperationList)
	defer func() { end(err) }()

	err = filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			paths = append(paths, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	sort.Strings(paths)
	return paths, nil
}
