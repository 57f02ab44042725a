// Package tenant defines the authenticated tenant identity carried by every
// governed request and the error taxonomy shared by the credential resolver,
// quota accountant, rate limiter and API boundary. Downstream code derives its
// tenant filter from the bound TenantContext rather than from caller supplied
// parameters.
package tenant

import (
	"errors"
)

// Standard sentinel errors for tenant governance. Lower layers wrap these
// with fmt.Errorf("...: %w", err) so that Classify and errors.Is keep working
// across package boundaries.
var (
	// ErrUnauthorized is returned when a credential is missing, malformed,
	// expired or fails verification.
	ErrUnauthorized = errors.New("tenant: unauthorized")

	// ErrForbidden is returned when a valid principal has no relationship
	// to the target tenant or lacks the role for the attempted operation.
	ErrForbidden = errors.New("tenant: forbidden")

	// ErrTenantNotFound is returned when the target tenant does not exist.
	ErrTenantNotFound = errors.New("tenant: tenant not found")

	// ErrResourceNotFound is returned when a resource does not exist within
	// the current tenant. Resources owned by other tenants resolve to this
	// error as well.
	ErrResourceNotFound = errors.New("tenant: resource not found")

	// ErrQuotaExceeded is returned when the available capacity for a
	// resource is zero or insufficient for the requested amount.
	ErrQuotaExceeded = errors.New("tenant: quota exceeded")

	// ErrTooManyRequests is returned by the rate limiter on rejection.
	ErrTooManyRequests = errors.New("tenant: too many requests")

	// ErrAlreadyExists is returned on uniqueness violations within a tenant.
	ErrAlreadyExists = errors.New("tenant: already exists")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("tenant: validation failed")

	// ErrInternal is returned for persistence or infrastructure failures.
	ErrInternal = errors.New("tenant: internal error")

	// ErrInvalidConfiguration is returned for caller or configuration
	// mistakes such as an unknown quota resource kind.
	ErrInvalidConfiguration = errors.New("tenant: invalid configuration")

	// ErrNoScope is returned when tenant scoped code runs without a bound
	// TenantContext. It always indicates a programming error.
	ErrNoScope = errors.New("tenant: no tenant context bound")
)

var taxonomy = []error{
	ErrUnauthorized,
	ErrForbidden,
	ErrTenantNotFound,
	ErrResourceNotFound,
	ErrQuotaExceeded,
	ErrTooManyRequests,
	ErrAlreadyExists,
	ErrValidation,
	ErrInvalidConfiguration,
	ErrInternal,
}

// Classify returns the taxonomy sentinel matched by err. Errors outside the
// taxonomy, including ErrNoScope, classify as ErrInternal. A nil error
// classifies as nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return ErrInternal
}
