package model

import "time"

// RevocationReason records why a session stopped being valid.
type RevocationReason string

const (
	ReasonUserLogout  RevocationReason = "user_logout"
	ReasonAdminRevoke RevocationReason = "admin_revoke"
	ReasonRotated     RevocationReason = "rotated"
	ReasonExpired     RevocationReason = "expired"
)

// Session models a row in the `sessions` table: one active device session
// per successful login. The row tracks the jti of the most recently issued
// access and refresh tokens so tokens can be tied back to their session.
// Sessions are never deleted; logout and rotation only flip the revoked
// flag, keeping the row as an audit trail.
type Session struct {
	ID               uint64           // sessions.id
	UserID           uint64           // sessions.user_id
	AccessJTI        string           // sessions.access_jti (current access token)
	RefreshJTI       string           // sessions.refresh_jti (current refresh token)
	ExpiresAt        time.Time        // sessions.expires_at (access expiry)
	RefreshExpiresAt time.Time        // sessions.refresh_expires_at
	Revoked          bool             // sessions.revoked
	RevokedAt        *time.Time       // sessions.revoked_at (nullable)
	RevocationReason RevocationReason // sessions.revocation_reason ("" while active)
	DeviceName       string           // sessions.device_name
	DeviceType       string           // sessions.device_type
	UserAgent        string           // sessions.user_agent
	IP               string           // sessions.ip
	CreatedAt        time.Time        // sessions.created_at
}
