// Package shared contains canonical type definitions shared across docket.
package shared //nolint:revive // internal shared package is intentional

import (
	"context"
	"errors"
	"fmt"
)

// Semantic errors for repository operations.
var (
	// ErrConfiguration indicates missing or invalid connection/container options.
	ErrConfiguration = errors.New("docket: invalid configuration")

	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("docket: document not found")

	// ErrConflict indicates a document with the same id already exists in the partition.
	ErrConflict = errors.New("docket: conflict")

	// ErrProvisioning indicates the database or container could not be created.
	ErrProvisioning = errors.New("docket: provisioning failed")

	// ErrTransient indicates throttling or a transient failure that outlived the retry ceiling.
	ErrTransient = errors.New("docket: transient store failure")

	// ErrCancelled indicates the caller cancelled the operation or its deadline expired.
	ErrCancelled = errors.New("docket: operation cancelled")

	// ErrInvalidQuery indicates a specification that cannot be translated.
	ErrInvalidQuery = errors.New("docket: invalid query")

	// ErrInvalidEntity indicates the entity type does not satisfy the repository contract.
	ErrInvalidEntity = errors.New("docket: invalid entity")

	// ErrClosed indicates the connection manager has been closed.
	ErrClosed = errors.New("docket: closed")

	// ErrDecode indicates a stored document could not be decoded.
	ErrDecode = errors.New("docket: decode failed")

	// ErrEncode indicates an entity could not be encoded.
	ErrEncode = errors.New("docket: encode failed")
)

// StoreError carries the native status of a failed store round trip.
// It unwraps to both the semantic sentinel (Kind) and the driver error.
type StoreError struct {
	Op            string
	Status        int
	RequestCharge float64
	Kind          error
	Err           error
}

func (e *StoreError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (status %d): %v", e.Op, e.Status, e.Err)
}

// Unwrap exposes the semantic kind and the underlying driver error.
func (e *StoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Cancelled wraps a context error so that it matches ErrCancelled.
// Returns nil when err is not a context error.
func Cancelled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
