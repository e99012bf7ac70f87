// Package apply executes batches of vault file operations in order and
// reports their final-state outcome.
package apply

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/storage"
	"github.com/starford/scanvault/internal/vaultpath"
)

// Observer is notified with the operations that reached disk, including the
// applied prefix of a failed batch. Observers must not fail the batch.
type Observer interface {
	Applied(ctx context.Context, ops []models.FileOperation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ops []models.FileOperation)

// Applied calls f.
func (f ObserverFunc) Applied(ctx context.Context, ops []models.FileOperation) {
	f(ctx, ops)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithObserver registers observers called after each batch.
func WithObserver(obs ...Observer) Option {
	return func(s *Service) {
		s.observers = append(s.observers, obs...)
	}
}

// Service applies file operations to a vault.
type Service struct {
	store     storage.Provider
	logger    *slog.Logger
	observers []Observer
}

// NewService creates a Service writing through store.
func NewService(store storage.Provider, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "apply")
	return s
}

// Apply validates every operation, then executes them in input order.
//
// A path that escapes the vault or a malformed operation rejects the whole
// batch before anything is written. A failure during execution stops the
// batch and returns a *BatchError listing the operations already applied;
// nothing is rolled back.
func (s *Service) Apply(ctx context.Context, ops []models.FileOperation) (*models.ApplySummary, error) {
	prepared, err := s.prepare(ops)
	if err != nil {
		s.logger.Warn("batch rejected",
			slog.Int("operations", len(ops)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	applied := make([]models.FileOperation, 0, len(prepared))
	for i, op := range prepared {
		if err := s.execute(op); err != nil {
			s.notify(ctx, applied)
			s.logger.Error("batch halted",
				slog.Int("index", i),
				slog.String("path", op.Path),
				slog.Int("applied", len(applied)),
				slog.String("error", err.Error()))
			return nil, &BatchError{
				Index:   i,
				Failed:  op,
				Applied: applied,
				Err:     err,
			}
		}
		applied = append(applied, op)
	}

	s.notify(ctx, applied)
	summary := Summarize(applied)
	s.logger.Debug("batch applied",
		slog.Int("operations", len(applied)),
		slog.Int("written", len(summary.Written)),
		slog.Int("deleted", len(summary.Deleted)))
	return summary, nil
}

// prepare returns normalized copies of ops or the first validation error.
func (s *Service) prepare(ops []models.FileOperation) ([]models.FileOperation, error) {
	out := make([]models.FileOperation, len(ops))
	for i, op := range ops {
		if !op.Action.Valid() {
			return nil, fmt.Errorf("apply: operation %d: %w: unknown action %q", i, apperr.ErrInvalidOperation, op.Action)
		}
		if op.Action.Writes() && op.Content == nil {
			return nil, fmt.Errorf("apply: operation %d (%s): %w: content required", i, op, apperr.ErrInvalidOperation)
		}
		if op.Action == models.ActionDelete && op.Content != nil {
			return nil, fmt.Errorf("apply: operation %d (%s): %w: delete carries content", i, op, apperr.ErrInvalidOperation)
		}
		if _, err := s.store.Resolve(op.Path); err != nil {
			return nil, fmt.Errorf("apply: operation %d (%s): %w", i, op, err)
		}
		clean, err := vaultpath.Normalize(op.Path)
		if err != nil {
			return nil, fmt.Errorf("apply: operation %d (%s): %w", i, op, err)
		}
		op.Path = clean
		out[i] = op
	}
	return out, nil
}

func (s *Service) execute(op models.FileOperation) error {
	switch op.Action {
	case models.ActionCreate, models.ActionUpdate:
		return s.store.Write(op.Path, []byte(*op.Content))
	case models.ActionDelete:
		return s.store.Delete(op.Path)
	}
	return fmt.Errorf("apply: %w: unknown action %q", apperr.ErrInvalidOperation, op.Action)
}

func (s *Service) notify(ctx context.Context, applied []models.FileOperation) {
	if len(applied) == 0 {
		return
	}
	for _, o := range s.observers {
		o.Applied(ctx, applied)
	}
}

// Summarize reduces applied operations to their final state per path.
// Paths keep the order of their first appearance; a later delete removes a
// path from Written and a later write removes it from Deleted.
func Summarize(ops []models.FileOperation) *models.ApplySummary {
	last := make(map[string]models.Action, len(ops))
	order := make([]string, 0, len(ops))
	for _, op := range ops {
		if _, seen := last[op.Path]; !seen {
			order = append(order, op.Path)
		}
		last[op.Path] = op.Action
	}

	summary := &models.ApplySummary{Written: []string{}, Deleted: []string{}}
	for _, p := range order {
		if last[p].Writes() {
			summary.Written = append(summary.Written, p)
		} else {
			summary.Deleted = append(summary.Deleted, p)
		}
	}
	return summary
}
