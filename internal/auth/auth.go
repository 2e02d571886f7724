// Package auth attributes requests to users from HS256 access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousUser owns every session when no signing secret is configured.
const AnonymousUser = "anonymous"

var ErrInvalidToken = errors.New("invalid or expired token")

type ctxKey struct{}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// UserID returns the user id stored by the middleware, or AnonymousUser.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return AnonymousUser
}

// Verifier checks bearer tokens issued by the identity provider.
type Verifier struct {
	secret []byte
}

// NewVerifier returns nil when secret is empty, which disables
// authentication.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

// Verify parses token and returns its subject.
func (v *Verifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Sign issues a token for subject.  Used by tooling and tests.
func (v *Verifier) Sign(subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware attributes the request to the token subject.  A nil verifier
// lets every request through as AnonymousUser.
func Middleware(v *Verifier, onError func(w http.ResponseWriter, status int, msg string)) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, status int, msg string) { http.Error(w, msg, status) }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), AnonymousUser)))
				return
			}
			token := bearer(r)
			if token == "" {
				onError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			sub, err := v.Verify(token)
			if err != nil {
				onError(w, http.StatusUnauthorized, "Invalid authentication token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), sub)))
		})
	}
}

// bearer reads the Authorization header, falling back to the access_token
// query parameter that EventSource clients must use.
func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("access_token")
}
