// Package audit records security-relevant actions. Recording is
// observational: it happens after the response is finalized and a
// persistence failure never fails the guarded operation.
package audit

import "time"

// Entry is an immutable audit record.
type Entry struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"requestId"`
	ActorID   int64     `json:"actorId"`
	ActorRole string    `json:"actorRole"`
	CompanyID int64     `json:"companyId,omitempty"`
	Action    string    `json:"action"`
	Module    string    `json:"module"`
	Reference string    `json:"reference,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	Status    int       `json:"status"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Occurred  time.Time `json:"occurredAt"`
}

// RetentionWindow is how long audit rows are kept before the scheduled
// sweep removes them.
const RetentionWindow = 2 * 365 * 24 * time.Hour
