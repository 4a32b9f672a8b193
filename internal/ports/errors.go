package ports

import (
	"context"
	"errors"

	"cryptoSignalBot/internal/domain"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrRetriesExhausted   = errors.New("retry attempts exhausted")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrNotConfigured        = errors.New("exchange API keys are not configured")

	// Trading Errors
	ErrBelowMinNotional = errors.New("order notional below minimum trade amount")
	ErrInvalidStrategy  = errors.New("invalid strategy settings")
	ErrTradeClosed      = errors.New("trade is no longer open")
	ErrAlreadyRunning   = errors.New("bot is already running")
	ErrNotRunning       = errors.New("bot is not running")

	// Storage Specific Errors
	ErrDuplicateEntry = errors.New("record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrContextCanceled),
		errors.Is(err, ErrAuthenticationFailed), errors.Is(err, ErrInvalidAPIKeys),
		errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrBelowMinNotional), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrRateLimited), errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrExchangeUnavailable), errors.Is(err, ErrUnknown),
		errors.Is(err, ErrDBConnection):
		return true
	}
	return false
}

// Severity grades an error for operator alerting.
func Severity(err error) domain.Severity {
	switch {
	case err == nil:
		return domain.SeverityLow
	case errors.Is(err, ErrAuthenticationFailed), errors.Is(err, ErrInvalidAPIKeys),
		errors.Is(err, ErrPermissionDenied):
		return domain.SeverityCritical
	case errors.Is(err, ErrOrderPlacementFailed), errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrExchangeUnavailable):
		return domain.SeverityHigh
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrRetriesExhausted),
		errors.Is(err, ErrTimeout), errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrInvalidStrategy):
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}
