package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zoobzio/docket"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// mapError converts a driver error into a docket.StoreError. Statuses are
// the HTTP equivalents of the driver condition. Context errors pass through.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status, kind := classify(err)
	return &docket.StoreError{Op: op, Status: status, Kind: kind, Err: err}
}

// overran reports err as transient when the per-call timeout on bounded
// expired while the caller's context is still live.
func overran(caller, bounded context.Context, op string, timeout time.Duration, err error) error {
	if err == nil || caller.Err() != nil || !errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return err
	}
	return &docket.StoreError{
		Op:     op,
		Status: http.StatusRequestTimeout,
		Kind:   docket.ErrTransient,
		Err:    fmt.Errorf("operation timeout of %s exceeded: %v", timeout, err),
	}
}

func classify(err error) (int, error) {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound, docket.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return http.StatusConflict, docket.ErrConflict
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return http.StatusServiceUnavailable, docket.ErrTransient
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch {
		case ce.HasErrorLabel("TransientTransactionError"), ce.HasErrorLabel("RetryableWriteError"):
			return http.StatusServiceUnavailable, docket.ErrTransient
		case ce.Code == 13 || ce.Code == 18:
			// Unauthorized, AuthenticationFailed.
			return http.StatusUnauthorized, docket.ErrConfiguration
		case ce.Code == 2 || ce.Code == 9:
			// BadValue, FailedToParse.
			return http.StatusBadRequest, docket.ErrInvalidQuery
		}
	}
	return http.StatusInternalServerError, docket.ErrTransient
}
