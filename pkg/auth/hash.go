package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost for emergency codes. The codes carry ~83 bits of entropy,
// so a moderate work factor is enough to make offline guessing of a
// leaked hash table pointless.
const BcryptCost = 12

// HashCode hashes an emergency code for storage
func HashCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("code cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(code), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}
	return string(hashedBytes), nil
}

// CompareCode checks a submitted code against a stored hash. Malformed
// hashes or inputs never panic or error out, they simply do not match.
func CompareCode(hashedCode, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(code)) == nil
}
