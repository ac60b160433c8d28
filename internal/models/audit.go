package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	KeyName   string    `json:"key_name,omitempty"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Details   string    `json:"details,omitempty"` // JSON
}

// Audit action constants
const (
	ActionCertDownload = "cert_download"
	ActionAuthFailed   = "auth_failed"
	ActionKeyCreate    = "key_create"
	ActionKeyRevoke    = "key_revoke"
	ActionCertImport   = "cert_import"
)
