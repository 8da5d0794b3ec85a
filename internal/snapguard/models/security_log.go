package models

import "time"

// SecurityLogEntry is the human-readable companion row of an audited event.
// Rows are created once and never mutated or deleted.
type SecurityLogEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	EventType   string    `json:"event_type"`
	Description string    `json:"description"`
	RiskLevel   RiskLevel `json:"risk_level"`
	IsAnomaly   bool      `json:"is_anomaly"`
	TxHash      *string   `json:"tx_hash,omitempty"` // backlink to a LedgerEntry
	CreatedAt   time.Time `json:"created_at"`
}

// EventType values written by this module. Callers may use their own.
const (
	EventIntegrityViolation = "integrity_violation"
	EventIPBlocked          = "ip_blocked"
	EventIPUnblocked        = "ip_unblocked"
	EventRateLimitExceeded  = "rate_limit_exceeded"
	EventFailedLogin        = "failed_login_attempt"
	EventIntrusionDetected  = "intrusion_detected"
	EventEmergencyLockdown  = "emergency_lockdown"
	EventLockdownLifted     = "lockdown_lifted"
	EventLoginSuccess       = "login_success"
	EventUserRegistered     = "user_registered"
	EventPermissionGranted  = "permission_granted"
	EventMessageSent        = "message_sent"
)
