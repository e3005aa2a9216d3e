package integration

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

var (
	// ErrConfig is fatal for a tenant at startup.
	ErrConfig = errors.New("integration: invalid store configuration")
	// ErrTenantNotFound is returned by the registry for unknown tenants.
	ErrTenantNotFound = errors.New("integration: tenant not found")
	// ErrMappingCorrupt skips a single order line.
	ErrMappingCorrupt = errors.New("integration: bundle mapping corrupt")
	// ErrInvalidLineQuantity marks an order line that cannot be expanded.
	ErrInvalidLineQuantity = errors.New("integration: invalid line quantity")
	// ErrAuth is fatal for the current run.
	ErrAuth = errors.New("integration: ERP authentication failed")
	// ErrTransientNetwork is retried with backoff.
	ErrTransientNetwork = errors.New("integration: transient network failure")
	// ErrDuplicateOrder means the ERP already holds the order; treated as success.
	ErrDuplicateOrder = errors.New("integration: order already exists in ERP")
	// ErrPermanentValidation means the ERP rejected the payload; never retried.
	ErrPermanentValidation = errors.New("integration: payload rejected by ERP")
	// ErrStorefrontRequest wraps non-retryable storefront API failures.
	ErrStorefrontRequest = errors.New("integration: storefront request failed")

	// Ledger errors
	ErrLedgerEntryNotFound     = errors.New("integration: ledger entry not found")
	ErrLedgerInvalidTransition = errors.New("integration: invalid ledger status transition")
	ErrLedgerInvalidKey        = errors.New("integration: invalid idempotency key")
	ErrLedgerInvalidKind       = errors.New("integration: invalid ledger kind")

	ErrBundleMappingNotFound = errors.New("integration: bundle mapping not found")
)

// MappingCorruptError describes a bundle mapping that cannot be expanded.
type MappingCorruptError struct {
	Tenant string
	SKU    string
	Reason string
}

func (e *MappingCorruptError) Error() string {
	return fmt.Sprintf("integration: bundle mapping corrupt for %s/%s: %s", e.Tenant, e.SKU, e.Reason)
}

// Is matches ErrMappingCorrupt.
func (e *MappingCorruptError) Is(target error) bool {
	return target == ErrMappingCorrupt
}

// DuplicateOrderError is reported by the ERP when an order with the same
// reference already exists.
type DuplicateOrderError struct {
	Reference  string
	ERPOrderID string
}

func (e *DuplicateOrderError) Error() string {
	if e.ERPOrderID != "" {
		return fmt.Sprintf("integration: order %s already exists in ERP as %s", e.Reference, e.ERPOrderID)
	}
	return fmt.Sprintf("integration: order %s already exists in ERP", e.Reference)
}

// Is matches ErrDuplicateOrder.
func (e *DuplicateOrderError) Is(target error) bool {
	return target == ErrDuplicateOrder
}

// TransientError carries the HTTP status and an optional server-provided
// retry hint for a failure that may succeed on retry.
type TransientError struct {
	StatusCode int
	RetryAfter time.Duration
	Cause      error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("integration: transient failure (HTTP %d): %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("integration: transient failure: %v", e.Cause)
}

// Is matches ErrTransientNetwork.
func (e *TransientError) Is(target error) bool {
	return target == ErrTransientNetwork
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewConfigError wraps ErrConfig with tenant context.
func NewConfigError(tenant, format string, args ...any) error {
	return fmt.Errorf("%w: tenant %q: %s", ErrConfig, tenant, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

// ErrorClass is a coarse label for metrics and ledger detail.
type ErrorClass string

const (
	ErrorClassNone       ErrorClass = ""
	ErrorClassConfig     ErrorClass = "config"
	ErrorClassMapping    ErrorClass = "mapping"
	ErrorClassAuth       ErrorClass = "auth"
	ErrorClassTransient  ErrorClass = "transient"
	ErrorClassDuplicate  ErrorClass = "duplicate"
	ErrorClassValidation ErrorClass = "validation"
	ErrorClassUnknown    ErrorClass = "unknown"
)

// Retryable reports whether a failure of this class may clear without an
// operator: transient outages and credential problems fixed in config.
// Everything else stays failed for manual review.
func (c ErrorClass) Retryable() bool {
	return c == ErrorClassTransient || c == ErrorClassAuth
}

// ClassifyError maps err onto the taxonomy.
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassNone
	case errors.Is(err, ErrConfig), errors.Is(err, ErrTenantNotFound):
		return ErrorClassConfig
	case errors.Is(err, ErrMappingCorrupt):
		return ErrorClassMapping
	case errors.Is(err, ErrAuth):
		return ErrorClassAuth
	case errors.Is(err, ErrDuplicateOrder):
		return ErrorClassDuplicate
	case errors.Is(err, ErrTransientNetwork):
		return ErrorClassTransient
	case errors.Is(err, ErrPermanentValidation):
		return ErrorClassValidation
	default:
		return ErrorClassUnknown
	}
}
