package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/scanvault/internal/apperr"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func newSyncer(t *testing.T) (*Syncer, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	return s, root
}

func TestSyncVaultMirrorsTree(t *testing.T) {
	s, root := newSyncer(t)
	writeFile(t, root, "01_daily/2026-03-14.md", "# 2026-03-14\n")
	writeFile(t, root, "01_daily/2026-03-14.meta.json", `{"version":1}`)
	writeFile(t, root, "10_projects/Atlas.md", "# Atlas\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "90_archive"), 0o755))

	dest := filepath.Join(t.TempDir(), "mirror")
	stats, err := s.SyncVault(dest)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Copied)

	for _, rel := range []string{"01_daily/2026-03-14.md", "01_daily/2026-03-14.meta.json", "10_projects/Atlas.md"} {
		assert.Equal(t, readFile(t, root, rel), readFile(t, dest, rel), rel)
	}
	info, err := os.Stat(filepath.Join(dest, "90_archive"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSyncVaultKeepsDestinationOnlyFiles(t *testing.T) {
	s, root := newSyncer(t)
	writeFile(t, root, "a.md", "vault")
	dest := t.TempDir()
	writeFile(t, dest, "mine.md", "keep")
	writeFile(t, dest, "a.md", "stale")

	_, err := s.SyncVault(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep", readFile(t, dest, "mine.md"))
	assert.Equal(t, "vault", readFile(t, dest, "a.md"))
}

func TestSyncVaultSkipsUnchanged(t *testing.T) {
	s, root := newSyncer(t)
	writeFile(t, root, "a.md", "same")
	writeFile(t, root, "b.md", "b")
	dest := t.TempDir()

	_, err := s.SyncVault(dest)
	require.NoError(t, err)
	writeFile(t, root, "b.md", "b2")

	stats, err := s.SyncVault(dest)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, int64(2), stats.Bytes)
}

func TestSyncVaultSkipsSymlinksAndTempFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	s, root := newSyncer(t)
	writeFile(t, root, "real.md", "real")
	writeFile(t, root, ".scanvault-tmp-123", "partial")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.md"), filepath.Join(root, "link.md")))

	dest := t.TempDir()
	stats, err := s.SyncVault(dest)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 2, stats.Skipped)

	_, err = os.Lstat(filepath.Join(dest, "link.md"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSyncVaultSymlinkedRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := t.TempDir()
	writeFile(t, target, "01_daily/a.md", "a")
	link := filepath.Join(t.TempDir(), "vault")
	require.NoError(t, os.Symlink(target, link))

	s, err := New(link)
	require.NoError(t, err)

	dest := t.TempDir()
	stats, err := s.SyncVault(dest)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, "a", readFile(t, dest, "01_daily/a.md"))

	// The link names the vault root too.
	_, err = s.SyncVault(link)
	assert.ErrorIs(t, err, apperr.ErrInvalidOperation)
}

func TestSyncVaultDestinationInsideVault(t *testing.T) {
	s, root := newSyncer(t)
	writeFile(t, root, "a.md", "a")
	dest := filepath.Join(root, "mirror")

	_, err := s.SyncVault(dest)
	require.NoError(t, err)
	stats, err := s.SyncVault(dest)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unchanged)

	_, err = os.Stat(filepath.Join(dest, "mirror"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "mirror must not recurse into itself")
}

func TestSyncVaultDestinationContainsVault(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "vault")
	writeFile(t, root, "01_daily/a.md", "a")
	s, err := New(root)
	require.NoError(t, err)

	stats, err := s.SyncVault(parent)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, "a", readFile(t, parent, "01_daily/a.md"))
}

func TestSyncVaultRejectsBadDestination(t *testing.T) {
	s, root := newSyncer(t)
	_, err := s.SyncVault("")
	assert.ErrorIs(t, err, apperr.ErrInvalidOperation)
	_, err = s.SyncVault(root)
	assert.ErrorIs(t, err, apperr.ErrInvalidOperation)
}

func TestSyncVaultReportsFailingPath(t *testing.T) {
	s, root := newSyncer(t)
	writeFile(t, root, "01_daily/a.md", "a")
	dest := t.TempDir()
	// A directory where the file should go makes the copy fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "01_daily", "a.md"), 0o755))

	_, err := s.SyncVault(dest)
	require.Error(t, err)
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "01_daily/a.md", syncErr.Path)
	assert.Equal(t, apperr.KindFilesystem, apperr.Kind(err))
}

func TestWatchMirrorsNewFiles(t *testing.T) {
	s, root := newSyncer(t)
	writeFile(t, root, "initial.md", "first")
	dest := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var synced []string
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, dest, func(p string) {
			mu.Lock()
			synced = append(synced, p)
			mu.Unlock()
		})
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dest, "initial.md"))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "initial sync")

	// Give the watcher time to register directories.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, root, "01_daily/new.md", "fresh")

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(dest, "01_daily", "new.md"))
		return err == nil && string(data) == "fresh"
	}, 3*time.Second, 20*time.Millisecond, "watched file mirrored")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, synced)
}
