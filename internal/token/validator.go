package token

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meetsync/auth-service/internal/logger"
	"github.com/meetsync/auth-service/internal/revocation"
)

// Validator verifies a token string: signature and structure first, then
// expiry, then the denylist. The order matters — a token that fails
// structurally never triggers a denylist lookup, so malformed input
// cannot generate store traffic or smuggle a crafted jti into the key
// space.
type Validator struct {
	userSecret    []byte
	serviceSecret []byte
	revoked       revocation.Store
	failClosed    bool
}

// NewValidator builds a Validator. failClosed selects the policy for a
// failed or timed-out denylist lookup: true rejects the token with
// ErrRevocationUnavailable, false logs and accepts the signature/expiry
// verdict alone.
func NewValidator(userSecret, serviceSecret string, revoked revocation.Store, failClosed bool) *Validator {
	return &Validator{
		userSecret:    []byte(userSecret),
		serviceSecret: []byte(serviceSecret),
		revoked:       revoked,
		failClosed:    failClosed,
	}
}

// Validate parses and verifies a raw token string and returns its claims.
// Failures are reported as the sentinel errors in errors.go.
func (v *Validator) Validate(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// The claim set is decoded before the key function runs, so the
		// declared typ selects the signing domain to verify against.
		c, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrMalformed
		}
		if c.Type == TypeService {
			return v.serviceSecret, nil
		}
		return v.userSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}
	// Every token this service issues carries a jti and an expiry; a
	// signed token missing either did not come from our issuer.
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}

	// Signature and expiry are good; revocation still short-circuits an
	// otherwise valid token.
	revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		if v.failClosed {
			return nil, ErrRevocationUnavailable
		}
		logger.Warn().Err(err).Str("jti", claims.ID).Msg("denylist lookup failed, continuing fail-open")
	} else if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}
