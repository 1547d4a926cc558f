package cosmos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/zoobzio/docket"
)

const headerRequestCharge = "x-ms-request-charge"

// mapError converts an SDK error into a docket.StoreError carrying the
// native status and request charge. Context errors pass through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var re *azcore.ResponseError
	if !errors.As(err, &re) {
		return &docket.StoreError{Op: op, Kind: docket.ErrTransient, Err: err}
	}
	return &docket.StoreError{
		Op:            op,
		Status:        re.StatusCode,
		RequestCharge: requestCharge(re.RawResponse),
		Kind:          kindOf(re.StatusCode),
		Err:           err,
	}
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
		Err:    fmt.Errorf("retry ceiling of %s exceeded: %v", timeout, err),
	}
}

// kindOf classifies a Cosmos status code.
func kindOf(status int) error {
	switch status {
	case http.StatusNotFound:
		return docket.ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return docket.ErrConflict
	case http.StatusRequestTimeout, http.StatusTooManyRequests, 449,
		http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusGone:
		return docket.ErrTransient
	case http.StatusBadRequest:
		return docket.ErrInvalidQuery
	case http.StatusUnauthorized, http.StatusForbidden:
		return docket.ErrConfiguration
	}
	return nil
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func requestCharge(resp *http.Response) float64 {
	if resp == nil {
		return 0
	}
	v, err := strconv.ParseFloat(resp.Header.Get(headerRequestCharge), 64)
	if err != nil {
		return 0
	}
	return v
}

// isConflict reports whether err is a 409 from the service.
func isConflict(err error) bool {
	var re *azcore.ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusConflict
}
