package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tradecapture/tradecapture/internal/validation"
)

// Sentinel errors for the lifecycle violations a caller can recover from.
var (
	// ErrDuplicateID is returned by SaveNew when the id already denotes a
	// live record.
	ErrDuplicateID = errors.New("trade already exists")

	// ErrNotFound is returned when an update, replace, or load targets an
	// id with no live record.
	ErrNotFound = errors.New("trade not found")

	// ErrVersionConflict is returned when a mutation supplied a stale
	// expected version.
	ErrVersionConflict = errors.New("version conflict")
)

// ContextError reports an incomplete audit context. It is surfaced before
// any document processing and is always recoverable by supplying a complete
// context.
type ContextError struct {
	Result validation.Result
}

func (e *ContextError) Error() string {
	return "invalid context: " + strings.Join(e.Result.Errors, "; ")
}

// ValidationError reports that one or more structural or business-rule
// checks failed. It carries the full error and warning list; the document is
// never partially persisted.
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Result.Errors, "; "))
}
