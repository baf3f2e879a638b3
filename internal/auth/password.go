// WHY BCRYPT?
// bcrypt is deliberately slow, salts every hash with fresh randomness and
// embeds the salt and work factor in its output, so a single TEXT column is
// all the store needs. Two users with the same password get different hashes.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 iterations)
//	 version
//
// LEGACY HASHES:
// Some bcrypt implementations write a "$2y$" prefix instead of "$2a$".
// x/crypto/bcrypt reads both, so imported accounts log in without a
// migration.

package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/user-auth/internal/apperror"
)

// DefaultCost is the bcrypt work factor used in production.
//
// COST TUNING RULE OF THUMB:
// Pick the cost so one hash takes ~200–300ms on production hardware.
const DefaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer inputs would be silently
// truncated, so Hash rejects them.
const maxPasswordBytes = 72

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests: cost 4 makes tests run in milliseconds.
type PasswordService struct {
	cost int

	// dummyHash is compared against when the username is unknown. It is
	// built once, up front, at the same cost as new hashes.
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return newPasswordService(DefaultCost)
}

// NewPasswordServiceWithCost creates a PasswordService with a custom cost.
// Costs below bcrypt.MinCost or above bcrypt.MaxCost fall back to
// DefaultCost.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return newPasswordService(cost)
}

// NewPasswordServiceForTest creates a PasswordService with bcrypt cost 4
// (the minimum allowed). Use this in tests in other packages.
//
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordServiceForTest() *PasswordService {
	return newPasswordService(bcrypt.MinCost)
}

func newPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		// Only reachable with an out-of-range cost, which is excluded above.
		panic(fmt.Sprintf("auth: building dummy hash: %v", err))
	}
	return &PasswordService{cost: cost, dummyHash: dummy}
}

// Cost returns the bcrypt work factor used for new hashes.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash hashes the given plaintext password with bcrypt.
//
// Store the output directly; it includes the salt and cost. Returns a
// validation error if the plaintext is longer than 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches a stored bcrypt hash.
//
// It never fails: a malformed or foreign hash simply does not match.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword compares in constant time, so response time
// does not reveal how much of the input was right.
func (p *PasswordService) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy runs a full bcrypt comparison against a throwaway hash and
// always reports false.
//
// The login flow calls it when the username is unknown, so that a miss costs
// the same as a wrong password and response timing does not reveal which
// usernames exist. The two paths only cost the same while stored hashes use
// the service's cost; after changing the cost, stored hashes keep their old
// one until the user registers again.
func (p *PasswordService) VerifyDummy(plaintext string) bool {
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
	return false
}
