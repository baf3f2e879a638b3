package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestCookieCodec(t *testing.T) *CookieCodec {
	t.Helper()
	c, err := NewCookieCodec("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewCookieCodec: %v", err)
	}
	return c
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewCookieCodec_ShortSecret(t *testing.T) {
	if _, err := NewCookieCodec("short", time.Hour); err == nil {
		t.Fatal("NewCookieCodec() should reject secrets shorter than 16 chars")
	}
}

func TestNewCookieCodec_NonPositiveTTL(t *testing.T) {
	if _, err := NewCookieCodec("this-is-16-chars", 0); err == nil {
		t.Fatal("NewCookieCodec() should reject a zero ttl")
	}
}

// =========================================================================
// ENCODE / DECODE TESTS
// =========================================================================

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := newTestCookieCodec(t)

	value, err := c.Encode("opaque-session-token")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if strings.Count(value, ".") != 2 {
		t.Errorf("Encode() = %q, want a three-part JWT", value)
	}

	got, err := c.Decode(value)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != "opaque-session-token" {
		t.Errorf("Decode() = %q, want %q", got, "opaque-session-token")
	}
}

func TestEncode_RejectsEmptyToken(t *testing.T) {
	c := newTestCookieCodec(t)
	if _, err := c.Encode(""); err == nil {
		t.Fatal("Encode(\"\") should fail")
	}
}

func TestDecode_RejectsTampered(t *testing.T) {
	c := newTestCookieCodec(t)
	value, _ := c.Encode("token")
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		t.Fatalf("Encode() = %q, want header.payload.signature", value)
	}

	// The last base64url character of the signature carries padding bits
	// that decoders ignore, so tamper with characters in the middle.
	flip := func(s string) string {
		i := len(s) / 2
		swap := byte('A')
		if s[i] == 'A' {
			swap = 'B'
		}
		return s[:i] + string(swap) + s[i+1:]
	}

	tests := map[string]string{
		"payload":   parts[0] + "." + flip(parts[1]) + "." + parts[2],
		"signature": parts[0] + "." + parts[1] + "." + flip(parts[2]),
	}
	for name, tampered := range tests {
		if _, err := c.Decode(tampered); err == nil {
			t.Errorf("Decode() accepted a cookie with a tampered %s", name)
		}
	}
}

func TestDecode_RejectsOtherSecret(t *testing.T) {
	c := newTestCookieCodec(t)
	other, _ := NewCookieCodec("a-completely-different-secret", time.Hour)

	value, _ := other.Encode("token")
	if _, err := c.Decode(value); err == nil {
		t.Fatal("Decode() accepted a cookie signed with another secret")
	}
}

func TestDecode_RejectsExpired(t *testing.T) {
	c := newTestCookieCodec(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	value, _ := c.Encode("token")

	c.now = func() time.Time { return start.Add(2 * time.Hour) }
	if _, err := c.Decode(value); err == nil {
		t.Fatal("Decode() accepted an expired cookie")
	}
}

func TestDecode_RejectsNoneAlgorithm(t *testing.T) {
	c := newTestCookieCodec(t)

	claims := jwt.RegisteredClaims{
		Subject:   "token",
		Issuer:    cookieIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}
	if _, err := c.Decode(value); err == nil {
		t.Fatal("Decode() accepted an unsigned cookie")
	}
}

func TestDecode_RejectsWrongIssuer(t *testing.T) {
	c := newTestCookieCodec(t)

	claims := jwt.RegisteredClaims{
		Subject:   "token",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	value, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if _, err := c.Decode(value); err == nil {
		t.Fatal("Decode() accepted a cookie from another issuer")
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	c := newTestCookieCodec(t)
	for _, v := range []string{"", "abc", "a.b.c"} {
		if _, err := c.Decode(v); err == nil {
			t.Errorf("Decode(%q) should fail", v)
		}
	}
}
