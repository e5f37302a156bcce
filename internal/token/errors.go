package token

import "errors"

// Validation failures are sentinel errors so handlers can pick a
// user-facing message per kind while keeping one status code. Expired is
// deliberately distinct from malformed/signature failures: telling a
// client its token expired leaks nothing about account existence.
var (
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature invalid")
	ErrExpired   = errors.New("token expired")
	ErrRevoked   = errors.New("token revoked")

	// ErrWrongType is returned when a structurally valid token carries an
	// unexpected typ claim, e.g. an access token presented where a refresh
	// token is required.
	ErrWrongType = errors.New("unexpected token type")

	// ErrRevocationUnavailable surfaces a failed or timed-out denylist
	// lookup under the fail-closed policy. It maps to a 5xx, never a 401,
	// so monitoring can tell "dependency down" from "bad token".
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
)
