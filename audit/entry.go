// Package audit records security-relevant token events (logins, logouts and
// revocations) to one or more sinks as JSON lines.
package audit

import "time"

// Event types
const (
	EventLogin  = "login"
	EventLogout = "logout"
	EventRevoke = "revoke"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Entry is one audit record. Secrets never appear in it: the token itself is
// not recorded and the binding context is salted before it is written.
type Entry struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`

	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`

	// Subject is the acting principal, or the attempted username for logins.
	Subject string `json:"subject,omitempty"`
	// Owner is the subject whose credential was revoked when it differs
	// from the acting one.
	Owner          string `json:"owner,omitempty"`
	CredentialID   string `json:"credential_id,omitempty"`
	BindingContext string `json:"binding_context,omitempty"`

	Error string `json:"error,omitempty"`
}
