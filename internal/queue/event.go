// Package queue defines message payloads exchanged over the message broker.
package queue

// Auth event types published to the auth.events queue.
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailed    = "login_failed"
	EventAccountLocked  = "account_locked"
	EventTokenRefreshed = "token_refreshed"
	EventSessionRevoked = "session_revoked"
)

// AuthEvent is published for every security-relevant auth transition. It
// carries enough information for downstream consumers to log, alert, or
// feed analytics without querying the primary database. Email is included
// only for failures where no user id exists yet.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	SessionID  uint64 `json:"session_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
