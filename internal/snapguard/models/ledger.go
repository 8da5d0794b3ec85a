// Package models holds the records that flow between the ledger, the audit service
// and the persistence layer.
package models

import "time"

// TxType tags a ledger entry. The set is open: new event kinds need no schema change.
type TxType string

const (
	TxUserRegistration  TxType = "user_registration"
	TxUserLogin         TxType = "user_login"
	TxMessageSent       TxType = "message_sent"
	TxSecurityAudit     TxType = "security_audit"
	TxPermissionGranted TxType = "permission_granted"
	TxIPBlocked         TxType = "ip_blocked"
	TxIPUnblocked       TxType = "ip_unblocked"
	TxIntrusionDetected TxType = "intrusion_detected"
	TxEmergencyLockdown TxType = "emergency_lockdown"
)

// LedgerEntry is one immutable hashed record of a security-relevant event.
// TxHash is the hex SHA-256 of the canonical form of Payload.
type LedgerEntry struct {
	TxHash          string         `json:"tx_hash"`
	TxType          TxType         `json:"tx_type"`
	RelatedEntityID *string        `json:"related_entity_id,omitempty"` // weak reference, not enforced
	Payload         map[string]any `json:"payload"`
	BlockNumber     int64          `json:"block_number"`
	GasUsed         int64          `json:"gas_used"` // cosmetic, kept for compatibility
	IsConfirmed     bool           `json:"is_confirmed"`
	CreatedAt       time.Time      `json:"created_at"`
	ConfirmedAt     *time.Time     `json:"confirmed_at,omitempty"`
}

// Clone returns a deep copy so that stores never share payload maps with callers.
func (e *LedgerEntry) Clone() *LedgerEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = CopyPayload(e.Payload)
	if e.RelatedEntityID != nil {
		id := *e.RelatedEntityID
		c.RelatedEntityID = &id
	}
	if e.ConfirmedAt != nil {
		ts := *e.ConfirmedAt
		c.ConfirmedAt = &ts
	}
	return &c
}

// CopyPayload deep-copies a JSON-compatible map.
func CopyPayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyPayload(t)
	case []any:
		arr := make([]any, len(t))
		for i := range t {
			arr[i] = copyValue(t[i])
		}
		return arr
	case []string:
		arr := make([]string, len(t))
		copy(arr, t)
		return arr
	default:
		return t
	}
}
