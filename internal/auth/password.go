package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the bcrypt work factor used when none is configured.
const DefaultBcryptCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password at the given cost.
// A cost of 0 falls back to DefaultBcryptCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckPasswordStrength enforces the minimum password policy: at least 8
// characters with one uppercase letter, one lowercase letter, and one digit.
// Returns a human-readable reason when the policy is not met.
func CheckPasswordStrength(password string) (reason string, ok bool) {
	if len(password) < 8 {
		return "must be at least 8 characters", false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		return "must contain an uppercase letter", false
	case !lower:
		return "must contain a lowercase letter", false
	case !digit:
		return "must contain a digit", false
	}
	return "", true
}
