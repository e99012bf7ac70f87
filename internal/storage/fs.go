package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/checksum"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/vaultpath"
)

// TempPrefix marks in-flight atomic writes. Files with this prefix are
// never listed or mirrored.
const TempPrefix = ".scanvault-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to vault directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	// A symlinked vault root is resolved once so every containment check
	// and walk sees the real directory.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string {
	return f.root
}

// Resolve normalizes a vault-relative path and rejects any result that
// escapes the root, either lexically or through a symlink along the way.
func (f *FS) Resolve(rel string) (string, error) {
	cleaned, err := vaultpath.Normalize(rel)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(f.root, filepath.FromSlash(cleaned))
	if !f.within(abs) {
		return "", fmt.Errorf("storage: %w: %s", apperr.ErrOutsideVault, rel)
	}
	resolved, err := realAncestor(abs)
	if err != nil {
		return "", fmt.Errorf("storage: resolve %s: %w", rel, err)
	}
	if resolved != f.root && !f.within(resolved) {
		return "", fmt.Errorf("storage: %w: %s (via symlink)", apperr.ErrOutsideVault, rel)
	}
	return abs, nil
}

func (f *FS) within(abs string) bool {
	return strings.HasPrefix(abs, f.root+string(os.PathSeparator))
}

// realAncestor evaluates symlinks on the deepest existing prefix of abs.
// The missing tail cannot contain links, so the result bounds where a
// write to abs lands.
func realAncestor(abs string) (string, error) {
	p := abs
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		p = parent
	}
}

// dirPath is Resolve for listing, where the empty path names the root.
func (f *FS) dirPath(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	return f.Resolve(rel)
}

// List walks dir (relative to root) and returns metadata for every .md file.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	base, err := f.dirPath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.NoteMetadata
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ".md") || strings.HasPrefix(d.Name(), TempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.NoteMetadata{
			Path:      filepath.ToSlash(rel),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w: %w", path, apperr.ErrNotFound, err)
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether a regular file exists at path.
func (f *FS) Exists(path string) (bool, error) {
	abs, err := f.Resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.Resolve(path)
	if err != nil {
		return err
	}
	return writeAtomic(abs, content, 0o644)
}

// Delete removes a file from the vault. Deleting a missing file succeeds.
func (f *FS) Delete(path string) error {
	abs, err := f.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Reset removes every entry under the vault root. The root itself is kept.
// It exists for tests and debugging; run Bootstrap afterwards to restore
// the folder taxonomy.
func (f *FS) Reset() error {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return fmt.Errorf("storage: reset: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.root, e.Name())); err != nil {
			return fmt.Errorf("storage: reset %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Bootstrap creates root and each top-level folder if missing and returns
// a provider for it. Existing folders and files are left untouched.
func Bootstrap(root string, folders []string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create vault root: %w", err)
	}
	store, err := NewFS(root)
	if err != nil {
		return nil, err
	}
	for _, folder := range folders {
		abs, err := store.Resolve(folder)
		if err != nil {
			return nil, fmt.Errorf("storage: bootstrap folder %q: %w", folder, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("storage: bootstrap folder %q: %w", folder, err)
		}
	}
	return store, nil
}

// writeAtomic writes content to abs through a temp file in the same
// directory so readers never observe a partial file.
func writeAtomic(abs string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// WriteFile atomically writes content to an absolute path outside any
// vault, creating parent directories. The mirror uses it so a failed copy
// never leaves a truncated file at the destination.
func WriteFile(abs string, content []byte, perm os.FileMode) error {
	return writeAtomic(abs, content, perm)
}
