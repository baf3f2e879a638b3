// Package service holds the authentication business logic.
//
// AuthService sits between the HTTP handlers and the storage/session layers:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                                                  ↘ PasswordService (bcrypt)
//	                                                  ↘ session.Manager (memory)
//
// KEY RESPONSIBILITIES:
//   - Login: verify credentials and bind the caller's session to the user
//   - Register: validate input, enforce uniqueness, store a bcrypt hash
//   - Guard: decide whether a session may see protected pages
//   - Logout: tear the session down
//
// The service never sees HTTP. Handlers pass in the opaque session token the
// middleware resolved and translate the returned apperror kinds to responses.
//
// WHAT IS NEVER LOGGED:
// Passwords, password hashes and session tokens. Sessions are identified in
// logs by their record ID only.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/user-auth/internal/apperror"
	"github.com/sakif/user-auth/internal/auth"
	"github.com/sakif/user-auth/internal/metrics"
	"github.com/sakif/user-auth/internal/model"
	"github.com/sakif/user-auth/internal/repository"
	"github.com/sakif/user-auth/internal/session"
)

// User-facing messages. They are part of the page contract, so handlers show
// them verbatim.
const (
	MsgLoginFieldsRequired    = "Username and Password are required!"
	MsgInvalidCredentials     = "Invalid credentials!"
	MsgRegisterFieldsRequired = "All fields are required!"
	MsgPasswordMismatch       = "Passwords do not match!"
	MsgAlreadyExists          = "Username or Email already exists!"
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → read/write user records
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - sessions   *session.Manager          → server-side session table
//   - metrics    *metrics.Metrics          → outcome counters (may be nil)
//   - logger     *slog.Logger              → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	sessions  *session.Manager
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	sessions *session.Manager,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		sessions:  sessions,
		metrics:   m,
		logger:    logger,
	}
}

// Login verifies username/password and, on success, marks the session
// identified by sessionToken as authenticated for that user.
//
// The username is trimmed before lookup; the password is verified exactly as
// typed. Unknown usernames and wrong passwords produce the same error, and
// both run one bcrypt comparison, so neither the message nor the timing
// tells an attacker which usernames exist.
//
// Errors: ErrMissingField, ErrInvalidCredentials, ErrStoreUnavailable, or
// session.ErrNoSession if the session vanished mid-request. On any error the
// session is left exactly as it was.
func (s *AuthService) Login(ctx context.Context, sessionToken, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		s.metrics.ObserveLogin(metrics.ResultMissingField)
		return 0, apperror.MissingField("username", MsgLoginFieldsRequired)
	}

	user, err := s.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		s.passwords.VerifyDummy(password)
		s.metrics.ObserveLogin(metrics.ResultInvalidCredentials)
		s.logger.Info("login rejected", slog.String("reason", "invalid_credentials"))
		return 0, apperror.InvalidCredentials(MsgInvalidCredentials)
	case err != nil:
		s.metrics.ObserveLogin(metrics.ResultError)
		s.logger.Error("login lookup failed", slog.Any("error", err))
		return 0, fmt.Errorf("service/auth: login lookup: %w", err)
	}

	if !s.passwords.Verify(password, user.PasswordHash) {
		s.metrics.ObserveLogin(metrics.ResultInvalidCredentials)
		s.logger.Info("login rejected", slog.String("reason", "invalid_credentials"))
		return 0, apperror.InvalidCredentials(MsgInvalidCredentials)
	}

	if err := s.sessions.Authenticate(sessionToken, user.ID); err != nil {
		s.metrics.ObserveLogin(metrics.ResultError)
		return 0, fmt.Errorf("service/auth: binding session for user %d: %w", user.ID, err)
	}

	s.metrics.ObserveLogin(metrics.ResultSuccess)
	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("session", s.sessionID(sessionToken)),
	)
	return user.ID, nil
}

// Register creates a new account. It does not log the caller in.
//
// Checks run in a fixed order and stop at the first failure:
//  1. username, email and password present (username and email trimmed,
//     password as typed)
//  2. password equals its confirmation
//  3. no existing user holds the username or the email
//
// A UNIQUE-constraint collision on insert (another registration won the race
// after step 3) is reported as ErrAlreadyExists too.
func (s *AuthService) Register(ctx context.Context, username, email, password, confirm string) (int64, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	switch {
	case username == "":
		return 0, s.registerFailed(metrics.ResultMissingField, apperror.MissingField("username", MsgRegisterFieldsRequired))
	case email == "":
		return 0, s.registerFailed(metrics.ResultMissingField, apperror.MissingField("email", MsgRegisterFieldsRequired))
	case password == "":
		return 0, s.registerFailed(metrics.ResultMissingField, apperror.MissingField("password", MsgRegisterFieldsRequired))
	}

	// An empty confirmation is not a missing field; it just does not match.

	if password != confirm {
		return 0, s.registerFailed(metrics.ResultPasswordMismatch, apperror.PasswordMismatch(MsgPasswordMismatch))
	}

	_, err := s.users.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return 0, s.registerFailed(metrics.ResultAlreadyExists, apperror.AlreadyExists(MsgAlreadyExists))
	case !errors.Is(err, apperror.ErrNotFound):
		s.logger.Error("registration lookup failed", slog.Any("error", err))
		return 0, s.registerFailed(metrics.ResultError, fmt.Errorf("service/auth: registration lookup: %w", err))
	}

	hash, err := s.passwords.Hash(password)
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return 0, s.registerFailed(metrics.ResultInvalidPassword, err)
	case err != nil:
		return 0, s.registerFailed(metrics.ResultError, fmt.Errorf("service/auth: %w", err))
	}

	id, err := s.users.Insert(ctx, username, email, hash)
	if err != nil {
		if errors.Is(err, apperror.ErrConstraintViolation) {
			return 0, s.registerFailed(metrics.ResultAlreadyExists, apperror.AlreadyExists(MsgAlreadyExists))
		}
		s.logger.Error("registration insert failed", slog.Any("error", err))
		return 0, s.registerFailed(metrics.ResultError, fmt.Errorf("service/auth: inserting user: %w", err))
	}

	s.metrics.ObserveRegistration(metrics.ResultSuccess)
	s.logger.Info("user registered", slog.Int64("user_id", id), slog.String("username", username))
	return id, nil
}

func (s *AuthService) registerFailed(result string, err error) error {
	s.metrics.ObserveRegistration(result)
	return err
}

// Logout destroys the session. It is idempotent and cannot fail.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) {
	sid := s.sessionID(sessionToken)
	s.sessions.Destroy(sessionToken)
	s.metrics.ObserveLogout()
	if sid != "" {
		s.logger.Info("user logged out", slog.String("session", sid))
	}
}

// RequireAuthenticated is the access guard. It reports true only if the
// session is authenticated and its user still exists.
//
// FAIL CLOSED:
// If the user record is gone, the session is destroyed. If the store cannot
// be reached, the answer is false but the session is kept: the user is not
// logged out by a database hiccup, they just can't see the page right now.
func (s *AuthService) RequireAuthenticated(ctx context.Context, sessionToken string) bool {
	_, err := s.CurrentUser(ctx, sessionToken)
	return err == nil
}

// CurrentUser returns the user behind an authenticated session.
//
// Errors: ErrUnauthenticated (anonymous, unknown or expired session, or the
// backing user was deleted) or ErrStoreUnavailable.
func (s *AuthService) CurrentUser(ctx context.Context, sessionToken string) (*model.User, error) {
	sess, ok := s.sessions.Get(sessionToken)
	if !ok || !sess.Authenticated() {
		return nil, apperror.Unauthenticated()
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.sessions.Destroy(sessionToken)
			s.logger.Warn("session user no longer exists",
				slog.String("session", sess.ID),
				slog.Int64("user_id", sess.UserID),
			)
			return nil, apperror.Unauthenticated()
		}
		s.logger.Error("guard lookup failed", slog.String("session", sess.ID), slog.Any("error", err))
		return nil, fmt.Errorf("service/auth: loading user %d: %w", sess.UserID, err)
	}
	return user, nil
}

// IsLoggedIn reports whether the session is authenticated, without consulting
// the store. Pages that only redirect use it; pages that show user data use
// CurrentUser.
func (s *AuthService) IsLoggedIn(sessionToken string) bool {
	return s.sessions.IsAuthenticated(sessionToken)
}

// SetFlash queues a one-shot message for the session's next page.
func (s *AuthService) SetFlash(sessionToken, text string, severity model.Severity) {
	if err := s.sessions.SetFlash(sessionToken, text, severity); err != nil {
		s.logger.Debug("flash dropped", slog.Any("error", err))
	}
}

// TakeFlash returns and clears the session's pending message.
func (s *AuthService) TakeFlash(sessionToken string) (model.Flash, bool) {
	return s.sessions.TakeFlash(sessionToken)
}

func (s *AuthService) sessionID(sessionToken string) string {
	if sess, ok := s.sessions.Get(sessionToken); ok {
		return sess.ID
	}
	return ""
}
