// Package auth provides the building blocks of the login flow: password
// hashing, the signed session cookie, and the HTTP middleware that resolves
// a request's session.
//
// SESSION COOKIE OVERVIEW:
//  1. First contact: middleware creates an anonymous session and gets back an
//     opaque bearer token from the session manager
//  2. The token is wrapped in a signed JWT and set as an HttpOnly cookie
//  3. On later requests the middleware verifies the JWT, extracts the token
//     and looks the session up again
//
// WHY SIGN AN OPAQUE TOKEN?
// The session token already has 256 bits of entropy, so signing is not what
// makes it unguessable. The signature lets the middleware throw away forged or
// stale cookies without touching the session table, and the exp claim bounds
// how long a browser will even present one.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"iss":"user-auth","sub":"<session token>","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieIssuer = "user-auth"

// MinSecretLength is the shortest HMAC secret CookieCodec accepts.
const MinSecretLength = 16

// CookieCodec signs and verifies session cookie values.
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCookieCodec creates a CookieCodec. ttl bounds the lifetime of an issued
// cookie and should match the session manager's absolute lifetime.
func NewCookieCodec(secret string, ttl time.Duration) (*CookieCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: session secret must be at least %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: cookie ttl must be positive")
	}
	return &CookieCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued cookies.
func (c *CookieCodec) TTL() time.Duration {
	return c.ttl
}

// Encode wraps a session token in a signed JWT.
func (c *CookieCodec) Encode(sessionToken string) (string, error) {
	if sessionToken == "" {
		return "", errors.New("auth: empty session token")
	}
	now := c.now()

	claims := jwt.RegisteredClaims{
		Subject:   sessionToken,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		Issuer:    cookieIssuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the session token inside it.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired (exp is required)
//   - Issuer matches
//   - Algorithm is HS256 (guards against "alg: none" and key confusion)
func (c *CookieCodec) Decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		value,
		claims,
		func(token *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: session cookie expired")
		}
		return "", fmt.Errorf("auth: invalid session cookie: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("auth: session cookie has no subject")
	}
	return claims.Subject, nil
}
