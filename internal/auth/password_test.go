package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/user-auth/internal/apperror"
)

// =========================================================================
// HELPER
// =========================================================================

// newTestPasswordService returns a PasswordService with bcrypt cost 4.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest()
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
	if strings.Contains(hash, "password123") {
		t.Error("Hash() output contains the plaintext")
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
	if !ps.Verify("same-password", hash1) || !ps.Verify("same-password", hash2) {
		t.Error("both salted hashes should verify")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	_, err := ps.Hash(strings.Repeat("a", 73))
	if err == nil {
		t.Fatal("Hash() should return an error for passwords longer than 72 bytes")
	}
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Hash() error = %v, want ErrValidation", err)
	}
}

func TestHash_AcceptsPasswordExactly72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
		hash      string
		want      bool
	}{
		{"matching password", "correct horse", hash, true},
		{"wrong password", "battery staple", hash, false},
		{"case differs", "Correct horse", hash, false},
		{"trailing space is significant", "correct horse ", hash, false},
		{"empty hash", "correct horse", "", false},
		{"garbage hash", "correct horse", "not-a-bcrypt-hash", false},
		{"truncated hash", "correct horse", hash[:20], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ps.Verify(tt.plaintext, tt.hash); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.plaintext, got, tt.want)
			}
		})
	}
}

func TestVerify_AcceptsLegacy2yPrefix(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("legacy-secret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	// Other implementations write "$2y$"; the digest itself is identical.
	legacy := "$2y$" + strings.TrimPrefix(hash, "$2a$")
	if !ps.Verify("legacy-secret", legacy) {
		t.Errorf("Verify() rejected a $2y$ hash: %q", legacy)
	}
	if ps.Verify("other-secret", legacy) {
		t.Error("Verify() accepted a wrong password for a $2y$ hash")
	}
}

func TestVerifyDummy_AlwaysFalse(t *testing.T) {
	ps := newTestPasswordService()

	for _, pw := range []string{"", "dummy-password-for-timing", "anything"} {
		if ps.VerifyDummy(pw) {
			t.Errorf("VerifyDummy(%q) = true, want false", pw)
		}
	}
}

func TestNewPasswordService_DummyHashBuiltUpFront(t *testing.T) {
	ps := newTestPasswordService()

	if len(ps.dummyHash) == 0 {
		t.Fatal("dummy hash must exist before the first unknown-user login")
	}
	cost, err := bcrypt.Cost(ps.dummyHash)
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != ps.Cost() {
		t.Errorf("dummy hash cost = %d, want %d", cost, ps.Cost())
	}
}

func TestNewPasswordServiceWithCost(t *testing.T) {
	tests := []struct {
		cost int
		want int
	}{
		{bcrypt.MinCost, bcrypt.MinCost},
		{5, 5},
		{bcrypt.MinCost - 1, DefaultCost},
		{bcrypt.MaxCost + 1, DefaultCost},
	}

	for _, tt := range tests {
		ps := NewPasswordServiceWithCost(tt.cost)
		if ps.Cost() != tt.want {
			t.Errorf("NewPasswordServiceWithCost(%d).Cost() = %d, want %d", tt.cost, ps.Cost(), tt.want)
		}
		if cost, _ := bcrypt.Cost(ps.dummyHash); cost != tt.want {
			t.Errorf("NewPasswordServiceWithCost(%d) dummy cost = %d, want %d", tt.cost, cost, tt.want)
		}
	}
}
