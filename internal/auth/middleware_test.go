package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/user-auth/internal/session"
)

var testCookie = CookieConfig{Name: "session"}

// echoToken is a handler that writes the context's session token.
func echoToken(w http.ResponseWriter, r *http.Request) {
	token, _ := SessionTokenFromContext(r.Context())
	w.Write([]byte(token))
}

func newSessionsHandler(t *testing.T) (http.Handler, *session.Manager, *CookieCodec) {
	t.Helper()
	store := session.NewManager(session.Options{})
	codec := newTestCookieCodec(t)
	h := Sessions(store, codec, testCookie, slog.New(slog.DiscardHandler))(http.HandlerFunc(echoToken))
	return h, store, codec
}

// =========================================================================
// Sessions TESTS
// =========================================================================

func TestSessions_CreatesAnonymousSession(t *testing.T) {
	h, store, codec := newSessionsHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	token := rr.Body.String()
	require.NotEmpty(t, token)
	s, ok := store.Get(token)
	require.True(t, ok)
	assert.False(t, s.Authenticated())

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "session", c.Name)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.NotEqual(t, token, c.Value, "cookie must carry the signed form")

	decoded, err := codec.Decode(c.Value)
	require.NoError(t, err)
	assert.Equal(t, token, decoded)
}

func TestSessions_ReusesExistingSession(t *testing.T) {
	h, store, codec := newSessionsHandler(t)

	token, _ := store.Create()
	value, _ := codec.Encode(token)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: value})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, token, rr.Body.String())
	assert.Empty(t, rr.Result().Cookies(), "no new cookie for a live session")
	assert.Equal(t, 1, store.Len())
}

func TestSessions_ReplacesInvalidCookie(t *testing.T) {
	tests := []struct {
		name  string
		value func(store *session.Manager, codec *CookieCodec) string
	}{
		{"garbage", func(*session.Manager, *CookieCodec) string { return "garbage" }},
		{"raw token without signature", func(store *session.Manager, _ *CookieCodec) string {
			token, _ := store.Create()
			return token
		}},
		{"signed but destroyed", func(store *session.Manager, codec *CookieCodec) string {
			token, _ := store.Create()
			v, _ := codec.Encode(token)
			store.Destroy(token)
			return v
		}},
		{"signed with another secret", func(store *session.Manager, _ *CookieCodec) string {
			token, _ := store.Create()
			other, _ := NewCookieCodec("another-secret-of-enough-length", time.Hour)
			v, _ := other.Encode(token)
			return v
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, codec := newSessionsHandler(t)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "session", Value: tt.value(store, codec)})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			got := rr.Body.String()
			require.NotEmpty(t, got)
			s, ok := store.Get(got)
			require.True(t, ok, "a fresh session should be issued")
			assert.False(t, s.Authenticated())
			assert.Len(t, rr.Result().Cookies(), 1)
		})
	}
}

func TestClearSessionCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	ClearSessionCookie(rr, testCookie)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

// =========================================================================
// RequireAuth TESTS
// =========================================================================

type guardFunc func(ctx context.Context, token string) bool

func (f guardFunc) RequireAuthenticated(ctx context.Context, token string) bool {
	return f(ctx, token)
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		allow      bool
		wantStatus int
		wantCalled bool
	}{
		{"guard passes", true, http.StatusOK, true},
		{"guard fails", false, http.StatusSeeOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotToken string
			guard := guardFunc(func(_ context.Context, token string) bool {
				gotToken = token
				return tt.allow
			})

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})
			h := RequireAuth(guard, "/login")(next)

			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			req = req.WithContext(ContextWithSessionToken(req.Context(), "tok"))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, "tok", gotToken)
			if !tt.allow {
				assert.Equal(t, "/login", rr.Header().Get("Location"))
			}
		})
	}
}

func TestSessionTokenFromContext_Empty(t *testing.T) {
	_, ok := SessionTokenFromContext(context.Background())
	assert.False(t, ok)

	_, ok = SessionTokenFromContext(ContextWithSessionToken(context.Background(), ""))
	assert.False(t, ok)
}
