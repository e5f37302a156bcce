package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/auth-service/internal/revocation"
	"github.com/meetsync/auth-service/internal/token"
)

const (
	mwUserSecret    = "mw-user-secret"
	mwServiceSecret = "mw-service-secret"
)

func authRequest(t *testing.T, v *token.Validator, authorization string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	h := Auth(v)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec, reached
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	kind, _ := body["error"].(string)
	return kind
}

func TestAuthMissingHeader(t *testing.T) {
	v := token.NewValidator(mwUserSecret, mwServiceSecret, revocation.NewMemory(), true)
	rec, reached := authRequest(t, v, "")
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, reached = %v", rec.Code, reached)
	}
	if kind := decodeError(t, rec); kind != "missing_token" {
		t.Errorf("error = %q, want missing_token", kind)
	}
}

func TestAuthBadHeaderFormat(t *testing.T) {
	v := token.NewValidator(mwUserSecret, mwServiceSecret, revocation.NewMemory(), true)
	rec, _ := authRequest(t, v, "Basic dXNlcjpwYXNz")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	if kind := decodeError(t, rec); kind != "invalid_token" {
		t.Errorf("error = %q, want invalid_token", kind)
	}
}

func TestAuthGarbageToken(t *testing.T) {
	v := token.NewValidator(mwUserSecret, mwServiceSecret, revocation.NewMemory(), true)
	rec, _ := authRequest(t, v, "Bearer not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	if kind := decodeError(t, rec); kind != "invalid_token" {
		t.Errorf("error = %q, want invalid_token", kind)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	iss := token.NewIssuer(mwUserSecret, mwServiceSecret, -time.Minute, -time.Minute, -time.Minute)
	v := token.NewValidator(mwUserSecret, mwServiceSecret, revocation.NewMemory(), true)

	issued, err := iss.IssueAccess(1)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := authRequest(t, v, "Bearer "+issued.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	if kind := decodeError(t, rec); kind != "token_expired" {
		t.Errorf("error = %q, want token_expired", kind)
	}
}

func TestAuthRevokedToken(t *testing.T) {
	iss := token.NewIssuer(mwUserSecret, mwServiceSecret, 15*time.Minute, time.Hour, time.Hour)
	store := revocation.NewMemory()
	v := token.NewValidator(mwUserSecret, mwServiceSecret, store, true)

	issued, err := iss.IssueAccess(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetRevoked(context.Background(), issued.JTI, 15*time.Minute); err != nil {
		t.Fatal(err)
	}
	rec, _ := authRequest(t, v, "Bearer "+issued.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	if kind := decodeError(t, rec); kind != "token_revoked" {
		t.Errorf("error = %q, want token_revoked", kind)
	}
}

func TestAuthRejectsRefreshToken(t *testing.T) {
	iss := token.NewIssuer(mwUserSecret, mwServiceSecret, 15*time.Minute, time.Hour, time.Hour)
	v := token.NewValidator(mwUserSecret, mwServiceSecret, revocation.NewMemory(), true)

	issued, err := iss.IssueRefresh(1)
	if err != nil {
		t.Fatal(err)
	}
	rec, reached := authRequest(t, v, "Bearer "+issued.Token)
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token passed the access middleware: code = %d", rec.Code)
	}
}

func TestAuthValidTokenSetsIdentity(t *testing.T) {
	iss := token.NewIssuer(mwUserSecret, mwServiceSecret, 15*time.Minute, time.Hour, time.Hour)
	v := token.NewValidator(mwUserSecret, mwServiceSecret, revocation.NewMemory(), true)

	issued, err := iss.IssueAccess(99)
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Auth(v)(func(c echo.Context) error {
		uid, ok := CurrentUserID(c)
		if !ok || uid != 99 {
			t.Errorf("CurrentUserID = %d, %v, want 99", uid, ok)
		}
		jti, ok := CurrentJTI(c)
		if !ok || jti != issued.JTI {
			t.Errorf("CurrentJTI = %q, %v, want %q", jti, ok, issued.JTI)
		}
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
}
