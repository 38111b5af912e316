package types

import "encoding/json"

type AuditCategory string

const (
	CategoryUserManagement AuditCategory = "user_management"
	CategoryDataManagement AuditCategory = "data_management"
	CategoryPublication    AuditCategory = "publication"
	CategoryModeration     AuditCategory = "moderation"
	CategoryConfiguration  AuditCategory = "configuration"
	CategorySecurity       AuditCategory = "security"
	CategoryOther          AuditCategory = "other"
)

// AuditLogEntry is append-only. PayloadDigest covers actor, action, target
// and both payloads in canonical form.
type AuditLogEntry struct {
	EntryID       string          `json:"entry_id"`
	ActorID       string          `json:"actor_id"`
	Action        string          `json:"action"`
	Category      AuditCategory   `json:"category"`
	TargetType    string          `json:"target_type"`
	TargetID      string          `json:"target_id"`
	PreviousValue json.RawMessage `json:"previous_value,omitempty"`
	NewValue      json.RawMessage `json:"new_value,omitempty"`
	PayloadDigest string          `json:"payload_digest"`
	CreatedAt     string          `json:"created_at"`
	Tampered      bool            `json:"tampered,omitempty"`
}

type AuditFilter struct {
	Category   AuditCategory `json:"category,omitempty"`
	ActorID    string        `json:"actor_id,omitempty"`
	TargetType string        `json:"target_type,omitempty"`
	TargetID   string        `json:"target_id,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

type GovernancePolicy struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}
