package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/scanvault/internal/storage"
)

// SyncCallback is called after the watcher mirrors a file. path is relative
// to the vault root and uses forward slashes.
type SyncCallback func(path string)

const watchDebounce = 150 * time.Millisecond

// Watch runs an initial SyncVault into dest, then mirrors files as they are
// created or written until ctx is cancelled. Removals and renames are not
// propagated. Copy failures are logged and retried on the next event.
func (s *Syncer) Watch(ctx context.Context, dest string, cb SyncCallback) error {
	if _, err := s.SyncVault(dest); err != nil {
		return err
	}
	dst, err := s.destination(dest)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := s.addDirsRecursive(w, s.root, dst); err != nil {
		return err
	}
	s.logger.Info("watch started", slog.String("root", s.root), slog.String("dest", dst))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var flushCh <-chan time.Time
	schedule := func(abs string) {
		pending[abs] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			flushCh = timer.C
			return
		}
		timer.Reset(watchDebounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("watch stopped")
			return nil

		case <-flushCh:
			timer, flushCh = nil, nil
			for abs := range pending {
				s.mirror(abs, dst, cb)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if s.excluded(ev.Name, dst) {
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), storage.TempPrefix) {
				continue
			}
			if info, statErr := os.Lstat(ev.Name); statErr == nil && info.IsDir() {
				if err := s.addDirsRecursive(w, ev.Name, dst); err != nil {
					s.logger.Warn("watch: add dir failed",
						slog.String("path", ev.Name),
						slog.String("error", err.Error()))
				}
			}
			schedule(ev.Name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// mirror copies abs, or the tree under it when abs is a directory.
func (s *Syncer) mirror(abs, dst string, cb SyncCallback) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return
	}
	info, err := os.Lstat(abs)
	if err != nil {
		// Gone before the flush; a later event will cover any replacement.
		return
	}

	stats := &Stats{}
	if info.IsDir() {
		err = s.syncTree(abs, dst, stats)
	} else {
		err = s.copyFile(abs, filepath.Join(dst, rel), filepath.ToSlash(rel), stats)
	}
	if err != nil {
		s.logger.Warn("watch: mirror failed", slog.String("path", filepath.ToSlash(rel)), slog.String("error", err.Error()))
		return
	}
	if stats.Copied > 0 && cb != nil {
		cb(filepath.ToSlash(rel))
	}
}

// addDirsRecursive adds root and its subdirectories to the watcher,
// skipping the destination when it lies inside the vault.
func (s *Syncer) addDirsRecursive(w *fsnotify.Watcher, root, dst string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if s.excluded(p, dst) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
