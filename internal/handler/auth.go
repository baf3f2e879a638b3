// Package handler contains the HTTP handlers for the login, registration and
// dashboard pages.
//
// Pages respond with JSON view models; turning those into markup is the
// front end's job. Form posts follow the post/redirect/get pattern: the
// outcome is stored as a flash message on the session and the browser is sent
// to the next page with 303 See Other.
//
// Handlers should NOT contain business logic; they are the glue between HTTP
// and the AuthService.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/user-auth/internal/apperror"
	"github.com/sakif/user-auth/internal/auth"
	"github.com/sakif/user-auth/internal/model"
)

// Route paths the handlers redirect between.
const (
	PathHome      = "/"
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
	PathLogout    = "/logout"
)

// maxFormBytes caps the size of a login or registration form body.
const maxFormBytes = 64 << 10

// AuthService is the subset of service.AuthService the handlers call.
type AuthService interface {
	Login(ctx context.Context, sessionToken, username, password string) (int64, error)
	Register(ctx context.Context, username, email, password, confirm string) (int64, error)
	Logout(ctx context.Context, sessionToken string)
	CurrentUser(ctx context.Context, sessionToken string) (*model.User, error)
	IsLoggedIn(sessionToken string) bool
	SetFlash(sessionToken, text string, severity model.Severity)
	TakeFlash(sessionToken string) (model.Flash, bool)
}

// AuthHandler serves the authentication pages.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLoginPage / HandleLogin       → GET / POST /login
//   - HandleRegisterPage / HandleRegister → GET / POST /register
//   - HandleDashboard                     → GET /dashboard (behind the guard)
//   - HandleLogout                        → GET|POST /logout
type AuthHandler struct {
	auth   AuthService
	cookie auth.CookieConfig
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, cookie auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, cookie: cookie, logger: logger}
}

// FormView is the view model for the login and registration pages.
type FormView struct {
	Page  string       `json:"page"`
	Flash *model.Flash `json:"flash,omitempty"`
}

// DashboardView is the view model for the protected page.
type DashboardView struct {
	Page     string       `json:"page"`
	Greeting string       `json:"greeting"`
	Username string       `json:"username"`
	Email    string       `json:"email"`
	Flash    *model.Flash `json:"flash,omitempty"`
}

// HandleLoginPage renders the login form.
//
// HTTP: GET /login
//
// Users who are already logged in are sent straight to the dashboard.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "login")
}

// HandleRegisterPage renders the registration form.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "register")
}

func (h *AuthHandler) renderForm(w http.ResponseWriter, r *http.Request, page string) {
	token := sessionToken(r)
	if h.redirectIfLoggedIn(w, r, token) {
		return
	}
	writeJSON(w, http.StatusOK, FormView{Page: page, Flash: h.takeFlash(token)})
}

// redirectIfLoggedIn sends authenticated sessions to the dashboard. The login
// and registration pages, and their form posts, are for anonymous visitors.
func (h *AuthHandler) redirectIfLoggedIn(w http.ResponseWriter, r *http.Request, token string) bool {
	if !h.auth.IsLoggedIn(token) {
		return false
	}
	http.Redirect(w, r, PathDashboard, http.StatusSeeOther)
	return true
}

// HandleLogin processes the login form.
//
// HTTP: POST /login   (form fields: username, password)
//
//	already logged in   → 303 /dashboard, form ignored
//	success             → 303 /dashboard
//	bad input / creds   → flash error, 303 /login
//	store unavailable   → 503
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if h.redirectIfLoggedIn(w, r, token) {
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	_, err := h.auth.Login(r.Context(), token, r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if h.flashUserError(token, err) {
			http.Redirect(w, r, PathLogin, http.StatusSeeOther)
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, PathDashboard, http.StatusSeeOther)
}

// HandleRegister processes the registration form.
//
// HTTP: POST /register   (form fields: username, email, password, confirm_password)
//
//	already logged in   → 303 /dashboard, form ignored
//	success             → flash success, 303 /login
//	bad input / taken   → flash error, 303 /register
//	store unavailable   → 503
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if h.redirectIfLoggedIn(w, r, token) {
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	_, err := h.auth.Register(r.Context(),
		r.PostFormValue("username"),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
		r.PostFormValue("confirm_password"),
	)
	if err != nil {
		if h.flashUserError(token, err) {
			http.Redirect(w, r, PathRegister, http.StatusSeeOther)
			return
		}
		h.logger.Error("registration failed", slog.Any("error", err))
		writeError(w, err)
		return
	}

	h.auth.SetFlash(token, registeredMessage, model.SeveritySuccess)
	http.Redirect(w, r, PathLogin, http.StatusSeeOther)
}

// registeredMessage is shown on the login page after a registration.
const registeredMessage = "Registration successful! Please login."

// HandleDashboard renders the protected page.
//
// HTTP: GET /dashboard (mounted behind auth.RequireAuth)
//
// The guard already checked the session, but the user record is loaded again
// here; if it disappeared in between, the session is gone and the browser goes
// back to the login page.
func (h *AuthHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)

	user, err := h.auth.CurrentUser(r.Context(), token)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthenticated) {
			http.Redirect(w, r, PathLogin, http.StatusSeeOther)
			return
		}
		h.logger.Error("loading dashboard user", slog.Any("error", err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardView{
		Page:     "dashboard",
		Greeting: "Hello " + user.Username + "!",
		Username: user.Username,
		Email:    user.Email,
		Flash:    h.takeFlash(token),
	})
}

// HandleLogout ends the session.
//
// HTTP: GET|POST /logout → 303 /login
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), sessionToken(r))
	auth.ClearSessionCookie(w, h.cookie)
	http.Redirect(w, r, PathLogin, http.StatusSeeOther)
}

// parseForm reads the urlencoded body, capped at maxFormBytes.
func (h *AuthHandler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: "could not parse form",
		})
		return false
	}
	return true
}

// flashUserError turns errors the user can fix (bad input, bad credentials,
// name taken) into an error flash. It reports false for everything else.
func (h *AuthHandler) flashUserError(token string, err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrInvalidCredentials),
		errors.Is(err, apperror.ErrAlreadyExists):
		h.auth.SetFlash(token, appErr.Message, model.SeverityError)
		return true
	}
	return false
}

func (h *AuthHandler) takeFlash(token string) *model.Flash {
	if f, ok := h.auth.TakeFlash(token); ok {
		return &f
	}
	return nil
}

func sessionToken(r *http.Request) string {
	token, _ := auth.SessionTokenFromContext(r.Context())
	return token
}
