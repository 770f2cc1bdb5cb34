package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-smartprice/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware resolves the caller from a bearer token or the access cookie.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
}

type outcomeKey struct{}

// outcome is the parse result cached by Authenticate so a later RequireAuth
// does not verify the same token twice.
type outcome struct {
	id  Identity
	err error
}

// Authenticate attaches the identity when the request carries a valid token
// and lets anonymous or badly authenticated requests through unchanged.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := m.resolve(r)
		ctx := context.WithValue(r.Context(), outcomeKey{}, res)
		if res.err == nil {
			ctx = withIdentity(ctx, res.id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth answers 401 unless the request carries a valid token.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, cached := r.Context().Value(outcomeKey{}).(outcome)
		if !cached {
			res = m.resolve(r)
		}
		if res.err != nil {
			var appErr *common.AppError
			if errors.As(res.err, &appErr) {
				common.JSONError(w, http.StatusUnauthorized, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), res.id)))
	})
}

// RequireRole answers 403 when the authenticated caller lacks role.
// Mount it after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if common.Role(r.Context()) != role {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) resolve(r *http.Request) outcome {
	if m.Verifier == nil {
		return outcome{err: errors.New("auth: verifier not configured")}
	}
	token := m.token(r)
	if token == "" {
		return outcome{err: errNoToken}
	}
	id, err := m.Verifier.Parse(token)
	return outcome{id: id, err: err}
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	ctx = common.WithUserID(ctx, id.UserID)
	if id.Role != "" {
		ctx = common.WithRole(ctx, id.Role)
	}
	return ctx
}

// token prefers the Authorization header over the cookie.
func (m Middleware) token(r *http.Request) string {
	if scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(value)
	}
	if m.AccessCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(m.AccessCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
