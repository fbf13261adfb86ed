package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const userIDKey ctxKey = iota

// Claims are the token claims the service reads; sub is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	hmac []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{hmac: []byte(secret)}
}

// Issue signs a token for userID, mainly for tests and local tooling.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}

// Parse validates tokenStr and returns its subject.
func (a *Authenticator) Parse(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Identify resolves the caller's user id. With an Authenticator it requires a
// bearer token (header, or the token query parameter for browser websockets);
// without one it trusts the userId query parameter or X-User-ID header.
func Identify(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if auth != nil {
				raw := r.URL.Query().Get("token")
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					raw = strings.TrimPrefix(h, "Bearer ")
				}
				if raw == "" {
					writeError(w, http.StatusUnauthorized, "missing bearer token")
					return
				}
				sub, err := auth.Parse(raw)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				userID = sub
			} else {
				userID = r.URL.Query().Get("userId")
				if userID == "" {
					userID = r.Header.Get("X-User-ID")
				}
			}
			if userID == "" {
				writeError(w, http.StatusBadRequest, "missing userId")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// UserID returns the identity stored by Identify.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
