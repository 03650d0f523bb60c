package utils

import (
	"github.com/google/uuid"
)

// GenerateSessionID creates a unique session identifier using UUID v4.
func GenerateSessionID() string {
	return uuid.New().String()
}

// IsSessionID reports whether s is a UUID-shaped session identifier.
func IsSessionID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
