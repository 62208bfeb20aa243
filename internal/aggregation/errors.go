package aggregation

import (
	"context"
	"errors"
	"fmt"
	"net"

	"lendgate/internal/banks"
	"lendgate/pkg/platform/sentinel"
)

// ErrorCategory is the normalized taxonomy of bank failures. Every category
// is absorbed by the engine; it only drives logs and metrics.
type ErrorCategory string

const (
	// ErrorTimeout: the bank did not answer within the per-call budget.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData: the bank answered 2xx with a body that is not an
	// application array.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorUpstreamStatus: the bank answered with a non-2xx status.
	ErrorUpstreamStatus ErrorCategory = "upstream_status"

	// ErrorUnavailable: connection refused, DNS failure, reset.
	ErrorUnavailable ErrorCategory = "unavailable"

	// ErrorCircuitOpen: the bank was skipped because its breaker is open.
	ErrorCircuitOpen ErrorCategory = "circuit_open"

	// ErrorCancelled: the inbound request was cancelled.
	ErrorCancelled ErrorCategory = "cancelled"
)

// UpstreamError wraps a bank failure with its category.
type UpstreamError struct {
	Category   ErrorCategory
	Bank       banks.Code
	StatusCode int
	Message    string
	Underlying error
}

func (e *UpstreamError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("bank %s [%s]: %s: %v", e.Bank, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("bank %s [%s]: %s", e.Bank, e.Category, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Underlying
}

// Category extracts the category of err, defaulting to ErrorUnavailable for
// errors the engine did not classify itself.
func Category(err error) ErrorCategory {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Category
	}
	return ErrorUnavailable
}

func newStatusError(bank banks.Code, status int, body string) *UpstreamError {
	msg := fmt.Sprintf("unexpected status %d", status)
	if body != "" {
		msg += " - " + body
	}
	return &UpstreamError{Category: ErrorUpstreamStatus, Bank: bank, StatusCode: status, Message: msg}
}

func newBadDataError(bank banks.Code, err error) *UpstreamError {
	return &UpstreamError{Category: ErrorBadData, Bank: bank, Message: "malformed applications body", Underlying: err}
}

func newCircuitOpenError(bank banks.Code) *UpstreamError {
	return &UpstreamError{Category: ErrorCircuitOpen, Bank: bank, Message: "circuit open, skipping bank", Underlying: sentinel.ErrUnavailable}
}

// IsBankFault reports whether err says the bank itself is unhealthy. Only
// these count against its breaker: a 4xx answer is caused by the caller
// (missing credential, unknown user) and the bank was reachable.
func IsBankFault(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return true
	}
	switch ue.Category {
	case ErrorUnavailable, ErrorTimeout:
		return true
	case ErrorUpstreamStatus:
		return ue.StatusCode >= 500
	default:
		return false
	}
}

// classifyTransport maps a failed round trip to a category.
func classifyTransport(bank banks.Code, err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	category := ErrorUnavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		category = ErrorCancelled
	case errors.Is(err, context.DeadlineExceeded):
		category = ErrorTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		category = ErrorTimeout
	}
	return &UpstreamError{Category: category, Bank: bank, Message: "request failed", Underlying: err}
}
