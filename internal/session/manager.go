// Package session keeps the server-side session table.
//
// A session is created anonymous, may be bound to a user ID by a successful
// login, and is removed by logout or by expiry. Clients hold an opaque bearer
// token; the table is keyed by the token's SHA-256 so a dump of the table
// cannot be replayed as cookies.
//
// LOCKING:
// The table lock guards only the map. Every record has its own mutex for its
// fields, so requests on different sessions never wait on each other beyond a
// map lookup. Nothing in this package performs I/O while holding a lock.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/user-auth/internal/model"
)

// ErrNoSession is returned when a token does not name a live session.
var ErrNoSession = errors.New("session: no such session")

const (
	tokenBytes = 32

	DefaultIdleTimeout   = 30 * time.Minute
	DefaultMaxLifetime   = 24 * time.Hour
	DefaultSweepInterval = time.Minute
)

// Options configures a Manager. Zero fields take the defaults above.
type Options struct {
	// IdleTimeout expires a session that has not been accessed for this long.
	IdleTimeout time.Duration
	// MaxLifetime expires a session this long after creation regardless of use.
	MaxLifetime time.Duration
	// SweepInterval is how often Run reclaims expired records.
	SweepInterval time.Duration
	// Now is the clock. Tests inject a fake one.
	Now    func() time.Time
	Logger *slog.Logger
}

// Session is a point-in-time copy of a session record.
type Session struct {
	// ID is a public record identifier for logs. It is not the bearer token.
	ID         string
	UserID     int64
	Flash      *model.Flash
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Authenticated reports whether the session is bound to a user.
func (s Session) Authenticated() bool {
	return s.UserID != 0
}

type record struct {
	mu         sync.Mutex
	id         string
	userID     int64
	flash      *model.Flash
	createdAt  time.Time
	lastSeenAt time.Time
	dead       bool
}

func (r *record) snapshot() Session {
	s := Session{
		ID:         r.id,
		UserID:     r.userID,
		CreatedAt:  r.createdAt,
		LastSeenAt: r.lastSeenAt,
	}
	if r.flash != nil {
		f := *r.flash
		s.Flash = &f
	}
	return s
}

// Manager owns the session table. The zero value is not usable; call
// NewManager.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*record

	idle   time.Duration
	max    time.Duration
	sweep  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates an empty session table.
func NewManager(opts Options) *Manager {
	m := &Manager{
		records: make(map[string]*record),
		idle:    opts.IdleTimeout,
		max:     opts.MaxLifetime,
		sweep:   opts.SweepInterval,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if m.idle <= 0 {
		m.idle = DefaultIdleTimeout
	}
	if m.max <= 0 {
		m.max = DefaultMaxLifetime
	}
	if m.sweep <= 0 {
		m.sweep = DefaultSweepInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// MaxLifetime returns the absolute session lifetime.
func (m *Manager) MaxLifetime() time.Duration {
	return m.max
}

// Create starts a new anonymous session and returns its bearer token.
func (m *Manager) Create() (string, error) {
	now := m.now()
	rec := &record{
		id:         xid.New().String(),
		createdAt:  now,
		lastSeenAt: now,
	}

	// A collision on 256 random bits will not happen in practice; the loop
	// only keeps the insert honest if the entropy source misbehaves.
	for range 3 {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		key := hashToken(token)

		m.mu.Lock()
		if _, taken := m.records[key]; taken {
			m.mu.Unlock()
			continue
		}
		m.records[key] = rec
		m.mu.Unlock()

		m.logger.Debug("session created", slog.String("session", rec.id))
		return token, nil
	}
	return "", errors.New("session: could not allocate a unique token")
}

// Get returns a copy of the live session for token and refreshes its idle
// timer. Unknown and expired tokens report false.
func (m *Manager) Get(token string) (Session, bool) {
	var s Session
	ok := m.with(token, func(r *record) {
		s = r.snapshot()
	})
	return s, ok
}

// Authenticate binds the session to userID. Repeating the call with the same
// userID is a no-op.
func (m *Manager) Authenticate(token string, userID int64) error {
	if userID == 0 {
		return errors.New("session: user id must be non-zero")
	}
	var sid string
	ok := m.with(token, func(r *record) {
		r.userID = userID
		sid = r.id
	})
	if !ok {
		return ErrNoSession
	}
	m.logger.Debug("session authenticated", slog.String("session", sid), slog.Int64("user_id", userID))
	return nil
}

// IsAuthenticated reports whether token names a live session bound to a user.
func (m *Manager) IsAuthenticated(token string) bool {
	s, ok := m.Get(token)
	return ok && s.Authenticated()
}

// Destroy removes the session. Destroying an unknown token is a no-op.
func (m *Manager) Destroy(token string) {
	key := hashToken(token)

	m.mu.Lock()
	rec, ok := m.records[key]
	if ok {
		delete(m.records, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	rec.mu.Lock()
	rec.dead = true
	id := rec.id
	rec.mu.Unlock()
	m.logger.Debug("session destroyed", slog.String("session", id))
}

// SetFlash stores a one-shot message on the session, replacing any pending one.
func (m *Manager) SetFlash(token, text string, severity model.Severity) error {
	ok := m.with(token, func(r *record) {
		r.flash = &model.Flash{Text: text, Severity: severity}
	})
	if !ok {
		return ErrNoSession
	}
	return nil
}

// TakeFlash returns the pending flash message and clears it in the same step,
// so a message is shown at most once.
func (m *Manager) TakeFlash(token string) (model.Flash, bool) {
	var (
		f   model.Flash
		has bool
	)
	m.with(token, func(r *record) {
		if r.flash != nil {
			f, has = *r.flash, true
			r.flash = nil
		}
	})
	return f, has
}

// Len returns the number of records in the table, including expired ones the
// sweeper has not reclaimed yet.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Sweep removes every expired record and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	removed := 0

	m.mu.Lock()
	for key, rec := range m.records {
		rec.mu.Lock()
		if m.expired(rec, now) {
			rec.dead = true
			delete(m.records, key)
			removed++
		}
		rec.mu.Unlock()
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("expired sessions swept", slog.Int("count", removed))
	}
	return removed
}

// Run sweeps expired sessions every SweepInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// with looks up a live record, refreshes its idle timer and runs fn with the
// record locked. It reports false if the token names no live session.
func (m *Manager) with(token string, fn func(r *record)) bool {
	if token == "" {
		return false
	}
	key := hashToken(token)

	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	now := m.now()
	rec.mu.Lock()
	if rec.dead {
		rec.mu.Unlock()
		return false
	}
	if m.expired(rec, now) {
		rec.dead = true
		rec.mu.Unlock()
		m.remove(key, rec)
		return false
	}
	rec.lastSeenAt = now
	fn(rec)
	rec.mu.Unlock()
	return true
}

// remove deletes key only if it still maps to rec.
func (m *Manager) remove(key string, rec *record) {
	m.mu.Lock()
	if m.records[key] == rec {
		delete(m.records, key)
	}
	m.mu.Unlock()
}

func (m *Manager) expired(r *record, now time.Time) bool {
	return now.Sub(r.lastSeenAt) >= m.idle || now.Sub(r.createdAt) >= m.max
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
