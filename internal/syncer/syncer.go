// Package syncer mirrors the vault tree into an external directory.
//
// The mirror is additive: files are copied over or left alone, never
// deleted, so anything that exists only in the destination survives.
package syncer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/checksum"
	"github.com/starford/scanvault/internal/storage"
)

// Stats counts what a sync did.
type Stats struct {
	Copied    int   `json:"copied"`
	Unchanged int   `json:"unchanged"`
	Skipped   int   `json:"skipped"`
	Bytes     int64 `json:"bytes"`
}

// SyncError reports the file that stopped a sync. Path is relative to the
// vault root. Files copied before it stay in the destination.
type SyncError struct {
	Path string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("syncer: %s: %v", e.Path, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the syncer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// Syncer copies the vault rooted at root to mirror destinations.
type Syncer struct {
	root   string
	logger *slog.Logger
}

// New creates a Syncer for the vault at root.
func New(root string, opts ...Option) (*Syncer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("syncer: resolve root: %w", err)
	}
	// WalkDir does not descend into a symlinked root.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("syncer: resolve root: %w", err)
	}
	s := &Syncer{root: abs}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "syncer")
	return s, nil
}

// SyncVault copies every regular file under the vault root to the same
// relative path under dest, creating directories as needed. Files whose
// destination copy already has identical content are not rewritten.
// Symlinks and other non-regular files are skipped. The first failure
// aborts the walk and is returned as a *SyncError.
func (s *Syncer) SyncVault(dest string) (*Stats, error) {
	dst, err := s.destination(dest)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	if err := s.syncTree(s.root, dst, stats); err != nil {
		s.logger.Error("sync aborted",
			slog.String("dest", dst),
			slog.Int("copied", stats.Copied),
			slog.String("error", err.Error()))
		return stats, err
	}
	s.logger.Info("vault synced",
		slog.String("dest", dst),
		slog.Int("copied", stats.Copied),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

// destination validates dest and creates it if missing.
func (s *Syncer) destination(dest string) (string, error) {
	if strings.TrimSpace(dest) == "" {
		return "", fmt.Errorf("syncer: %w: empty destination", apperr.ErrInvalidOperation)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("syncer: resolve destination: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("syncer: create destination: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if abs == s.root {
		return "", fmt.Errorf("syncer: %w: destination is the vault root", apperr.ErrInvalidOperation)
	}
	return abs, nil
}

// syncTree mirrors base, a directory inside the vault, into dst.
func (s *Syncer) syncTree(base, dst string, stats *Stats) error {
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return &SyncError{Path: p, Err: relErr}
		}
		if walkErr != nil {
			return &SyncError{Path: filepath.ToSlash(rel), Err: walkErr}
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if s.excluded(p, dst) {
				return filepath.SkipDir
			}
			if err := os.MkdirAll(filepath.Join(dst, rel), 0o755); err != nil {
				return &SyncError{Path: filepath.ToSlash(rel), Err: err}
			}
			return nil
		}

		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), storage.TempPrefix) {
			stats.Skipped++
			return nil
		}
		return s.copyFile(p, filepath.Join(dst, rel), filepath.ToSlash(rel), stats)
	})
}

// copyFile mirrors one regular file unless the destination already matches.
func (s *Syncer) copyFile(src, dst, rel string, stats *Stats) error {
	info, err := os.Lstat(src)
	if err != nil {
		return &SyncError{Path: rel, Err: err}
	}
	if !info.Mode().IsRegular() {
		stats.Skipped++
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return &SyncError{Path: rel, Err: err}
	}

	sum := checksum.Sum(data)
	if existing, err := checksum.File(dst); err == nil && existing == sum {
		stats.Unchanged++
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &SyncError{Path: rel, Err: err}
	}

	if err := storage.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return &SyncError{Path: rel, Err: err}
	}
	stats.Copied++
	stats.Bytes += int64(len(data))
	s.logger.Debug("copied", slog.String("path", rel), slog.String("checksum", sum))
	return nil
}

// excluded reports whether p is the destination or lies under a
// destination nested inside the vault.
func (s *Syncer) excluded(p, dst string) bool {
	return p == dst || (within(s.root, dst) && within(dst, p))
}

// within reports whether p lies under dir.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
