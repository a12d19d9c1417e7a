package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the gateway token payload: standard registered claims plus the
// scopes granted to the caller.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// ScopeSubmit is required for every state-changing RPC call routed through
// the gateway.
const ScopeSubmit = "escrow:submit"

// Authenticator validates HS256 bearer tokens and enforces a required scope.
type Authenticator struct {
	secret        []byte
	requiredScope string
	now           func() time.Time
}

// NewAuthenticator builds a JWT validator over a shared HMAC secret.
func NewAuthenticator(secret []byte, requiredScope string) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("gateway: jwt secret required")
	}
	return &Authenticator{secret: secret, requiredScope: requiredScope, now: time.Now}, nil
}

// SetNowFunc overrides the validation clock, for tests.
func (a *Authenticator) SetNowFunc(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// IssueToken mints a token for the subject with the given scopes and
// lifetime. The node operator hands these to gateway clients out of band.
func (a *Authenticator) IssueToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a raw token string.
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}

func (c *Claims) hasScope(scope string) bool {
	if scope == "" {
		return true
	}
	for _, granted := range c.Scopes {
		if granted == scope {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid token carrying the required
// scope.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.Verify(strings.TrimSpace(strings.TrimPrefix(header, prefix)))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !claims.hasScope(a.requiredScope) {
			writeJSONError(w, http.StatusForbidden, "missing scope "+a.requiredScope)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
