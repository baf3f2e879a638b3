package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/user-auth/internal/session"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue accepts any key. A package-private type means no other
// package can read or shadow the session token by guessing a string.
type contextKey string

const sessionTokenKey contextKey = "sessionToken"

// SessionStore is what the session middleware needs from the session table.
type SessionStore interface {
	Create() (string, error)
	Get(token string) (session.Session, bool)
}

// Guard decides whether a session may reach protected routes.
type Guard interface {
	RequireAuthenticated(ctx context.Context, sessionToken string) bool
}

// CookieConfig controls the attributes of the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Sessions is a middleware that gives every request a session.
//
// It reads the signed cookie, and if it names a live session puts the
// session token in the request context. Otherwise (no cookie, forged or
// expired cookie, session gone) it creates a fresh anonymous session and
// sets a new cookie. Handlers read the token with SessionTokenFromContext.
//
// COOKIE ATTRIBUTES:
//   - HttpOnly: JavaScript cannot read it, so XSS cannot steal it
//   - SameSite=Lax: not sent on cross-site POSTs
//   - Secure: only over HTTPS (configurable for local development)
func Sessions(store SessionStore, codec *CookieCodec, cfg CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := existingSession(r, store, codec, cfg.Name); ok {
				next.ServeHTTP(w, r.WithContext(ContextWithSessionToken(r.Context(), token)))
				return
			}

			token, err := store.Create()
			if err != nil {
				logger.Error("creating session", slog.Any("error", err))
				http.Error(w, `{"error":"internal_error","message":"An internal error occurred"}`, http.StatusInternalServerError)
				return
			}
			value, err := codec.Encode(token)
			if err != nil {
				logger.Error("encoding session cookie", slog.Any("error", err))
				http.Error(w, `{"error":"internal_error","message":"An internal error occurred"}`, http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     cfg.Name,
				Value:    value,
				Path:     "/",
				MaxAge:   int(codec.TTL().Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(ContextWithSessionToken(r.Context(), token)))
		})
	}
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAuth is a middleware that enforces authentication on protected
// routes. Requests whose session fails the guard are redirected to loginPath
// with 303 See Other, and the protected handler never runs.
//
// Must be mounted after Sessions.
func RequireAuth(guard Guard, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := SessionTokenFromContext(r.Context())
			if !guard.RequireAuthenticated(r.Context(), token) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionTokenFromContext returns the session token the Sessions middleware
// stored in the context.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenKey).(string)
	return token, ok && token != ""
}

// ContextWithSessionToken returns a copy of ctx carrying token.
func ContextWithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

// existingSession resolves the request's cookie to a live session token.
func existingSession(r *http.Request, store SessionStore, codec *CookieCodec, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	token, err := codec.Decode(cookie.Value)
	if err != nil {
		return "", false
	}
	if _, ok := store.Get(token); !ok {
		return "", false
	}
	return token, true
}
