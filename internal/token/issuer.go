// Package token creates and validates the signed claim sets used for user
// and service authentication. Tokens are HS256 JWTs; user tokens (access
// and refresh) and service tokens are signed with separate secrets so that
// compromise of one signing domain does not grant the other's
// capabilities.
package token

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type values carried in the typ claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeService = "service"
)

// Claims is the claim set carried by every token this service issues.
// The jti (RegisteredClaims.ID) is a fresh UUID per token: access and
// refresh tokens issued for the same login never share one.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a numeric user id.
func (c *Claims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// Remaining returns the token's remaining lifetime at the given instant.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Issued is a freshly signed token together with the identifiers the
// caller needs to persist the associated session row.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Issuer signs access, refresh and service tokens. It has no side
// effects beyond generating the claim set; persisting the session row is
// the authenticator's job.
type Issuer struct {
	userSecret    []byte
	serviceSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	serviceTTL    time.Duration
}

func NewIssuer(userSecret, serviceSecret string, accessTTL, refreshTTL, serviceTTL time.Duration) *Issuer {
	return &Issuer{
		userSecret:    []byte(userSecret),
		serviceSecret: []byte(serviceSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		serviceTTL:    serviceTTL,
	}
}

// IssueAccess signs a short-lived access token for a user.
func (i *Issuer) IssueAccess(userID uint64) (Issued, error) {
	return i.sign(Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatUint(userID, 10),
		},
	}, i.accessTTL, i.userSecret)
}

// IssueRefresh signs a long-lived refresh token for a user.
func (i *Issuer) IssueRefresh(userID uint64) (Issued, error) {
	return i.sign(Claims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatUint(userID, 10),
		},
	}, i.refreshTTL, i.userSecret)
}

// IssueService signs a short-lived service-to-service token. It carries
// issuer and audience instead of a user subject and is signed with the
// service secret, not the user secret.
func (i *Issuer) IssueService(issuer, audience string) (Issued, error) {
	return i.sign(Claims{
		Type: TypeService,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Audience: jwt.ClaimStrings{audience},
		},
	}, i.serviceTTL, i.serviceSecret)
}

func (i *Issuer) sign(claims Claims, ttl time.Duration, secret []byte) (Issued, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.ID = uuid.NewString()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, JTI: claims.ID, ExpiresAt: exp}, nil
}
