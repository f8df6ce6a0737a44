package util

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// NormalizeEmail validates a bare address and lowercases it. Display-name
// forms such as "Ann <ann@example.com>" are rejected.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New("is not a valid address")
	}
	return strings.ToLower(addr.Address), nil
}

// ValidatePassword checks the minimum length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("must have at least %d characters", MinPasswordLength)
	}
	return nil
}

// RequireString returns the trimmed value or an error when it is blank.
func RequireString(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("is required")
	}
	return value, nil
}
