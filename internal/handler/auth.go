package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/auth-service/internal/auth"
	"github.com/meetsync/auth-service/internal/logger"
	"github.com/meetsync/auth-service/internal/middleware"
	"github.com/meetsync/auth-service/internal/model"
	"github.com/meetsync/auth-service/internal/queue"
	"github.com/meetsync/auth-service/internal/token"
)

// AuditFunc publishes an auth event. Injected so tests can run the
// handlers without a broker.
type AuditFunc func(ctx context.Context, event queue.AuthEvent) error

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth      *auth.Authenticator
	Validator *token.Validator
	Audit     AuditFunc
}

func NewAuthHandler(a *auth.Authenticator, v *token.Validator, audit AuditFunc) *AuthHandler {
	return &AuthHandler{Auth: a, Validator: v, Audit: audit}
}

// ----- DTOs -----

type loginReq struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}
type validateTokenReq struct {
	Token string `json:"token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}
type authResp struct {
	User      userPart  `json:"user"`
	SessionID uint64    `json:"session_id"`
	Access    tokenPart `json:"access"`
	Refresh   tokenPart `json:"refresh"`
}

// Login: verify credentials and return a fresh token pair backed by a new
// device session. Lockout and enumeration behavior live in the
// authenticator; this handler only shapes requests, responses and audit
// events.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "email and password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dev := auth.Device{
		Name:      req.DeviceName,
		Type:      req.DeviceType,
		UserAgent: c.Request().UserAgent(),
		IP:        c.RealIP(),
	}
	res, err := h.Auth.Login(ctx, req.Email, req.Password, dev)
	if err != nil {
		var locked *auth.AccountLockedError
		if errors.As(err, &locked) {
			h.publish(queue.AuthEvent{Type: queue.EventAccountLocked, Email: req.Email, IP: dev.IP, UserAgent: dev.UserAgent})
		} else if errors.Is(err, auth.ErrInvalidCredentials) {
			h.publish(queue.AuthEvent{Type: queue.EventLoginFailed, Email: req.Email, IP: dev.IP, UserAgent: dev.UserAgent})
		}
		return writeAuthError(c, err)
	}

	h.publish(queue.AuthEvent{Type: queue.EventLoginSuccess, UserID: res.User.ID, SessionID: res.SessionID, IP: dev.IP, UserAgent: dev.UserAgent})
	return c.JSON(http.StatusOK, authResp{
		User:      userPart{ID: res.User.ID, Email: res.User.Email},
		SessionID: res.SessionID,
		Access:    tokenPart{Token: res.Access.Token, Expires: res.Access.ExpiresAt},
		Refresh:   tokenPart{Token: res.Refresh.Token, Expires: res.Refresh.ExpiresAt},
	})
}

// Refresh: exchange a refresh token (bearer header, or refresh_token in
// the body) for a new access token, rotating the refresh token when
// rotation is enabled.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := bearerToken(c)
	if raw == "" {
		var req refreshReq
		_ = c.Bind(&req)
		raw = strings.TrimSpace(req.RefreshToken)
	}
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing_token", "message": "refresh token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Auth.Refresh(ctx, raw)
	if err != nil {
		return writeAuthError(c, err)
	}

	h.publish(queue.AuthEvent{Type: queue.EventTokenRefreshed, UserID: res.UserID, SessionID: res.SessionID, IP: c.RealIP()})
	body := echo.Map{"access": tokenPart{Token: res.Access.Token, Expires: res.Access.ExpiresAt}}
	if res.Refresh != nil {
		body["refresh"] = tokenPart{Token: res.Refresh.Token, Expires: res.Refresh.ExpiresAt}
	}
	return c.JSON(http.StatusOK, body)
}

// Logout: denylist the presented access token and revoke its session.
// The route is deliberately outside the Auth middleware — a second logout
// presents an already-revoked token, and idempotency requires accepting
// it here rather than bouncing it with a 401.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := bearerToken(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing_token", "message": "authorization header required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, sessionID, err := h.Auth.Logout(ctx, raw)
	if err != nil {
		return writeAuthError(c, err)
	}

	// sessionID is zero when no session was revoked (repeat logout);
	// nothing happened, so nothing is audited.
	if sessionID != 0 {
		h.publish(queue.AuthEvent{Type: queue.EventSessionRevoked, UserID: userID, SessionID: sessionID, IP: c.RealIP(), Reason: string(model.ReasonUserLogout)})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// ValidateToken is the service-to-service validation endpoint, gated by
// the X-Service-Key middleware. Token verdicts are reported in the body
// with valid=false and a reason rather than a 4xx: for the calling
// service a bad user token is a result, not an error.
func (h *AuthHandler) ValidateToken(c echo.Context) error {
	var req validateTokenReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "token required"})
	}

	claims, err := h.Validator.Validate(c.Request().Context(), strings.TrimSpace(req.Token))
	if err != nil {
		if errors.Is(err, token.ErrRevocationUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store_unavailable", "message": "revocation store unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"valid": false, "reason": tokenErrorKind(err)})
	}

	out := echo.Map{
		"typ": claims.Type,
		"jti": claims.ID,
	}
	if claims.ExpiresAt != nil {
		out["exp"] = claims.ExpiresAt.Unix()
	}
	if claims.Subject != "" {
		out["sub"] = claims.Subject
	}
	if claims.Issuer != "" {
		out["iss"] = claims.Issuer
	}
	if len(claims.Audience) > 0 {
		out["aud"] = claims.Audience
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "claims": out})
}

// ChangePassword: verify the old password and store a new one, refusing
// recently used passwords.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing_token", "message": "authorization required"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "invalid request body"})
	}
	if req.OldPassword == "" || len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "new password must be at least 8 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_credentials", "message": "incorrect password"})
		}
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// Me: simple protected endpoint returning the authenticated identity.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, _ := middleware.CurrentUserID(c)
	jti, _ := middleware.CurrentJTI(c)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": userID,
		"jti":     jti,
	})
}

// publish fires an audit event without blocking the request.
func (h *AuthHandler) publish(ev queue.AuthEvent) {
	if h.Audit == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Audit(ctx, ev)
	}()
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func tokenErrorKind(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "token_expired"
	case errors.Is(err, token.ErrRevoked):
		return "token_revoked"
	case errors.Is(err, token.ErrSignature):
		return "bad_signature"
	default:
		return "malformed"
	}
}

// writeAuthError maps domain errors to the wire shape
// {error, message, details?} with a stable status code per kind.
func writeAuthError(c echo.Context, err error) error {
	var locked *auth.AccountLockedError
	switch {
	case errors.As(err, &locked):
		retry := int(math.Ceil(time.Until(locked.Until).Seconds()))
		if retry < 0 {
			retry = 0
		}
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":   "account_locked",
			"message": "account temporarily locked due to repeated failed logins",
			"details": echo.Map{"retry_after": retry},
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "invalid_credentials", "message": "invalid email or password",
		})
	case errors.Is(err, token.ErrExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "token_expired", "message": "token expired",
		})
	case errors.Is(err, token.ErrRevoked):
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "token_revoked", "message": "token revoked",
		})
	case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrSignature),
		errors.Is(err, token.ErrWrongType), errors.Is(err, auth.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "invalid_token", "message": "invalid token",
		})
	case errors.Is(err, token.ErrRevocationUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error": "store_unavailable", "message": "revocation store unavailable",
		})
	case errors.Is(err, auth.ErrPasswordReused):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "password_reused", "message": "new password was used recently",
		})
	default:
		logger.Error().Err(err).Msg("auth request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "internal_error", "message": "internal server error",
		})
	}
}
