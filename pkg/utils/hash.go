package utils

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/pitchside/backend/internal/apperr"
)

const (
	// PasswordCost is the bcrypt work factor for account passwords.
	PasswordCost = 12
	// MaxPasswordBytes is the longest password bcrypt will accept.
	MaxPasswordBytes = 72
)

// HashPassword hashes an account password. Over-long passwords are a
// ValidationError rather than a silent truncation.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", apperr.Validation("password must be at most 72 bytes").WithField("password", "max")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether plain matches the stored hash.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
