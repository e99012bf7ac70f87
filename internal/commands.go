package internal

import (
	"context"
	"log/slog"

	"github.com/starford/scanvault/internal/index"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/noteservice"
	"github.com/starford/scanvault/internal/pipeline"
	"github.com/starford/scanvault/internal/storage"
)

// withStack builds the component stack without the event broker, runs fn,
// and releases everything afterwards.
func withStack(opts []Option, fn func(s *stack) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	s, err := app.build(false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Bootstrap creates the vault folder taxonomy and reconciles the index.
// Existing content is left untouched.
func Bootstrap(_ context.Context, opts ...Option) error {
	return withStack(opts, func(s *stack) error {
		s.logger.Info("vault bootstrapped",
			slog.String("vault_path", s.store.Root()),
			slog.Int("folders", len(s.cfg.Vault.Folders)))
		return nil
	})
}

// Ingest records one scan in the vault.
func Ingest(ctx context.Context, req pipeline.Request, mode string, opts ...Option) (*models.WriterResult, error) {
	var res *models.WriterResult
	err := withStack(opts, func(s *stack) error {
		var err error
		res, err = s.svc.Ingest(ctx, req, mode)
		return err
	})
	return res, err
}

// Apply executes a batch of file operations against the vault.
func Apply(ctx context.Context, ops []models.FileOperation, opts ...Option) (*models.ApplySummary, error) {
	var sum *models.ApplySummary
	err := withStack(opts, func(s *stack) error {
		var err error
		sum, err = s.svc.ApplyOperations(ctx, ops)
		return err
	})
	return sum, err
}

// Sync mirrors the vault into dest, or the configured mirror when empty.
func Sync(ctx context.Context, dest string, opts ...Option) (*noteservice.SyncResult, error) {
	var res *noteservice.SyncResult
	err := withStack(opts, func(s *stack) error {
		var err error
		res, err = s.svc.Sync(ctx, dest)
		return err
	})
	return res, err
}

// Reset deletes every file in the vault, restores the folder taxonomy, and
// clears the index.
func Reset(_ context.Context, opts ...Option) error {
	return withStack(opts, func(s *stack) error {
		if err := s.store.Reset(); err != nil {
			return err
		}
		if _, err := storage.Bootstrap(s.store.Root(), s.cfg.Vault.Folders); err != nil {
			return err
		}
		if err := index.Sync(s.db, s.store, s.logger); err != nil {
			return err
		}
		s.logger.Warn("vault reset", slog.String("vault_path", s.store.Root()))
		return nil
	})
}
