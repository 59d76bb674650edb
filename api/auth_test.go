package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "secret"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	t.Setenv(envAuth0TestMode, "1")
	t.Setenv(envTestJWTSecret, testSecret)
	return NewAuth(nil, "board-sync", "https://issuer.example/")
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "u1",
		"aud": "board-sync",
		"iss": "https://issuer.example/",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestUserIDFromAuthHeaderValidToken(t *testing.T) {
	a := newTestAuth(t)
	id, err := a.UserIDFromAuthHeader("Bearer " + signToken(t, validClaims()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "u1" {
		t.Fatalf("expected u1, got %q", id)
	}
}

func TestUserIDFromAuthHeaderMalformed(t *testing.T) {
	a := newTestAuth(t)
	cases := map[string]string{
		"empty":        "",
		"no_scheme":    "token",
		"wrong_scheme": "Basic abc.def.ghi",
		"many_periods": "Bearer " + strings.Repeat(".", 10000),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := a.UserIDFromAuthHeader(header); err == nil {
				t.Fatalf("expected error for %q", name)
			}
		})
	}
	if _, err := a.UserIDFromAuthHeader(""); err != errMissingAuthorization {
		t.Fatalf("expected missing authorization error, got %v", err)
	}
	if _, err := a.UserIDFromAuthHeader("Bearer " + strings.Repeat(".", 10000)); err != errBadAuthorization {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderClaimChecks(t *testing.T) {
	a := newTestAuth(t)
	cases := map[string]func(jwt.MapClaims){
		"expired":      func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"no_expiry":    func(c jwt.MapClaims) { delete(c, "exp") },
		"future_nbf":   func(c jwt.MapClaims) { c["nbf"] = time.Now().Add(time.Hour).Unix() },
		"wrong_aud":    func(c jwt.MapClaims) { c["aud"] = "other" },
		"wrong_issuer": func(c jwt.MapClaims) { c["iss"] = "https://evil.example/" },
		"no_subject":   func(c jwt.MapClaims) { delete(c, "sub") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			claims := validClaims()
			mutate(claims)
			if _, err := a.UserIDFromAuthHeader("Bearer " + signToken(t, claims)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestUserIDFromAuthHeaderWrongSecret(t *testing.T) {
	a := newTestAuth(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := a.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestNewAuthRequiresSecretInTestMode(t *testing.T) {
	t.Setenv(envAuth0TestMode, "1")
	t.Setenv(envTestJWTSecret, "")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic without TEST_JWT_SECRET")
		}
	}()
	NewAuth(nil, "", "")
}

func TestNewAuthRejectsBadCacheTTL(t *testing.T) {
	t.Setenv(envJWKSCacheTTL, "soon")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid JWKS_CACHE_TTL")
		}
	}()
	NewAuth(nil, "", "")
}

func TestKeyForWithoutJWKS(t *testing.T) {
	t.Setenv(envAuth0TestMode, "")
	a := NewAuth(nil, "", "")
	if _, err := a.keyFor(&jwt.Token{Header: map[string]any{"kid": "k1"}}); err == nil {
		t.Fatalf("expected error without JWKS")
	}
}
