// Package auth guards the admin surface with a single shared secret and a
// fixed-value session cookie.
package auth

import (
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/smallbiz-web/internal/cryptoutil"
)

const (
	CookieName = "admin_session"

	// DefaultSecret is used when no admin password is configured.
	DefaultSecret = "remco2024"

	// SessionMaxAge is the cookie lifetime in seconds (24h).
	SessionMaxAge = 24 * 60 * 60

	sessionToken = "authenticated_admin_session"
)

type Options struct {
	// Secret is the admin password. Empty selects DefaultSecret.
	Secret string

	// Secure marks the cookie Secure. Set in production.
	Secure bool
}

// Authenticator issues and checks the admin session cookie. It keeps no
// server-side state.
type Authenticator struct {
	secret string
	secure bool
}

func New(opts Options) *Authenticator {
	secret := opts.Secret
	if secret == "" {
		secret = DefaultSecret
	}
	return &Authenticator{secret: secret, secure: opts.Secure}
}

// UsingDefaultSecret reports whether no override secret was configured.
func (a *Authenticator) UsingDefaultSecret() bool { return a.secret == DefaultSecret }

// VerifyCredential compares secret against the configured one in constant
// time. The empty string never verifies.
func (a *Authenticator) VerifyCredential(secret string) bool {
	if secret == "" {
		return false
	}
	return cryptoutil.SecretEqual(secret, a.secret)
}

// CreateSession sets the session cookie on the response.
func (a *Authenticator) CreateSession(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie(sessionToken, SessionMaxAge))
}

// DestroySession expires the session cookie.
func (a *Authenticator) DestroySession(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie("", -1))
}

// IsAuthenticated reports whether the request carries a valid session cookie.
func (a *Authenticator) IsAuthenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return cryptoutil.SecretEqual(c.Value, sessionToken)
}

func (a *Authenticator) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Require rejects unauthenticated API requests with 401 and a JSON body.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.IsAuthenticated(r) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePage redirects unauthenticated page requests to loginPath.
func (a *Authenticator) RequirePage(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.IsAuthenticated(r) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
