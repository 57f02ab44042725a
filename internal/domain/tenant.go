// Package domain holds the persisted entities governed by tenantgate and the
// request payloads that create or change them.
package domain

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

var (
	slugPattern       = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)
	externalIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)
)

// Tenant is an isolated organization with its own resources and quotas.
type Tenant struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Slug      string                `json:"slug"`
	IsActive  bool                  `json:"is_active"`
	Quotas    tenant.ResourceQuotas `json:"quotas"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// CreateTenantRequest creates a tenant. Nil quota fields take the defaults.
type CreateTenantRequest struct {
	Name                    string `json:"name"`
	Slug                    string `json:"slug"`
	MaxMonitors             *int64 `json:"max_monitors,omitempty"`
	MaxNetworks             *int64 `json:"max_networks,omitempty"`
	MaxTriggersPerMonitor   *int64 `json:"max_triggers_per_monitor,omitempty"`
	MaxRPCRequestsPerMinute *int64 `json:"max_rpc_requests_per_minute,omitempty"`
	MaxStorageMB            *int64 `json:"max_storage_mb,omitempty"`
}

// Validate checks the name, slug and any explicit quota values.
func (r CreateTenantRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return validationError("name is required")
	}
	if !slugPattern.MatchString(r.Slug) {
		return validationError("invalid slug: must match %s", slugPattern.String())
	}
	for name, v := range map[string]*int64{
		"max_monitors":                r.MaxMonitors,
		"max_networks":                r.MaxNetworks,
		"max_triggers_per_monitor":    r.MaxTriggersPerMonitor,
		"max_rpc_requests_per_minute": r.MaxRPCRequestsPerMinute,
		"max_storage_mb":              r.MaxStorageMB,
	} {
		if v != nil && *v < 0 {
			return validationError("%s must not be negative", name)
		}
	}
	return nil
}

// Quotas resolves the requested ceilings over defaults.
func (r CreateTenantRequest) Quotas(defaults tenant.ResourceQuotas) tenant.ResourceQuotas {
	q := defaults
	pick := func(dst *int64, v *int64) {
		if v != nil {
			*dst = *v
		}
	}
	pick(&q.MaxMonitors, r.MaxMonitors)
	pick(&q.MaxNetworks, r.MaxNetworks)
	pick(&q.MaxTriggersPerMonitor, r.MaxTriggersPerMonitor)
	pick(&q.MaxRPCRequestsPerMinute, r.MaxRPCRequestsPerMinute)
	pick(&q.MaxStorageMB, r.MaxStorageMB)
	return q
}

// ValidateSlug reports whether s is an acceptable tenant slug.
func ValidateSlug(s string) error {
	if !slugPattern.MatchString(s) {
		return validationError("invalid slug: must match %s", slugPattern.String())
	}
	return nil
}

// ValidateExternalID enforces the format of caller supplied resource ids.
func ValidateExternalID(field, id string) error {
	if id == "" {
		return validationError("%s is required", field)
	}
	if !externalIDPattern.MatchString(id) {
		return validationError("invalid %s: must match %s", field, externalIDPattern.String())
	}
	return nil
}

// ValidateEmail checks that s is a bare email address.
func ValidateEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return validationError("invalid email address")
	}
	return nil
}

func validateConfiguration(raw json.RawMessage) error {
	if len(raw) == 0 {
		return validationError("configuration is required")
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return validationError("configuration must be a JSON object")
	}
	return nil
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), tenant.ErrValidation)
}
