package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Monitor is a tenant owned monitor configuration.
type Monitor struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	MonitorID     string          `json:"monitor_id"`
	Name          string          `json:"name"`
	NetworkID     uuid.UUID       `json:"network_id"`
	Configuration json.RawMessage `json:"configuration"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateMonitorRequest struct {
	MonitorID     string          `json:"monitor_id"`
	Name          string          `json:"name"`
	NetworkID     uuid.UUID       `json:"network_id"`
	Configuration json.RawMessage `json:"configuration"`
}

func (r CreateMonitorRequest) Validate() error {
	if err := ValidateExternalID("monitor_id", r.MonitorID); err != nil {
		return err
	}
	if r.Name == "" {
		return validationError("name is required")
	}
	if r.NetworkID == uuid.Nil {
		return validationError("network_id is required")
	}
	return validateConfiguration(r.Configuration)
}

// UpdateRequest changes a resource. Nil fields are left unchanged.
type UpdateRequest struct {
	Name          *string         `json:"name,omitempty"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

func (r UpdateRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return validationError("name must not be empty")
	}
	if len(r.Configuration) > 0 {
		return validateConfiguration(r.Configuration)
	}
	return nil
}

// Network is a tenant owned blockchain network configuration.
type Network struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	NetworkID     string          `json:"network_id"`
	Name          string          `json:"name"`
	Blockchain    string          `json:"blockchain"`
	Configuration json.RawMessage `json:"configuration"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateNetworkRequest struct {
	NetworkID     string          `json:"network_id"`
	Name          string          `json:"name"`
	Blockchain    string          `json:"blockchain"`
	Configuration json.RawMessage `json:"configuration"`
}

func (r CreateNetworkRequest) Validate() error {
	if err := ValidateExternalID("network_id", r.NetworkID); err != nil {
		return err
	}
	if r.Name == "" {
		return validationError("name is required")
	}
	if r.Blockchain == "" {
		return validationError("blockchain is required")
	}
	return validateConfiguration(r.Configuration)
}

// TriggerType is the delivery channel of a trigger.
type TriggerType string

const (
	TriggerWebhook  TriggerType = "webhook"
	TriggerEmail    TriggerType = "email"
	TriggerSlack    TriggerType = "slack"
	TriggerDiscord  TriggerType = "discord"
	TriggerTelegram TriggerType = "telegram"
	TriggerScript   TriggerType = "script"
)

func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerWebhook, TriggerEmail, TriggerSlack, TriggerDiscord, TriggerTelegram, TriggerScript:
		return true
	}
	return false
}

// Trigger is a tenant owned notification attached to a monitor.
type Trigger struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	TriggerID     string          `json:"trigger_id"`
	MonitorID     uuid.UUID       `json:"monitor_id"`
	Name          string          `json:"name"`
	Type          TriggerType     `json:"trigger_type"`
	Configuration json.RawMessage `json:"configuration"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateTriggerRequest struct {
	TriggerID     string          `json:"trigger_id"`
	MonitorID     uuid.UUID       `json:"monitor_id"`
	Name          string          `json:"name"`
	Type          TriggerType     `json:"trigger_type"`
	Configuration json.RawMessage `json:"configuration"`
}

func (r CreateTriggerRequest) Validate() error {
	if err := ValidateExternalID("trigger_id", r.TriggerID); err != nil {
		return err
	}
	if r.MonitorID == uuid.Nil {
		return validationError("monitor_id is required")
	}
	if r.Name == "" {
		return validationError("name is required")
	}
	if !r.Type.IsValid() {
		return validationError("unsupported trigger_type %q", r.Type)
	}
	return validateConfiguration(r.Configuration)
}

// Page bounds list queries.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize clamps the page to accepted bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
