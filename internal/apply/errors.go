package apply

import (
	"fmt"

	"github.com/starford/scanvault/internal/apperr"
	"github.com/starford/scanvault/internal/models"
)

// BatchError reports a batch that stopped part-way. Operations in Applied
// reached disk and were not rolled back.
type BatchError struct {
	Index   int
	Failed  models.FileOperation
	Applied []models.FileOperation
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("apply: operation %d (%s) failed after %d applied: %v",
		e.Index, e.Failed, len(e.Applied), e.Err)
}

// Unwrap exposes both the partial-batch sentinel and the underlying cause.
func (e *BatchError) Unwrap() []error {
	return []error{apperr.ErrPartialBatch, e.Err}
}

// AppliedPaths lists the paths of the applied prefix in order.
func (e *BatchError) AppliedPaths() []string {
	out := make([]string, len(e.Applied))
	for i, op := range e.Applied {
		out[i] = op.Path
	}
	return out
}
