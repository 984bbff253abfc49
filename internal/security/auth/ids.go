package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const apiKeyBytes = 24

// NewAPIKey returns 24 random bytes, hex encoded.
func NewAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewCompanyID returns a random UUIDv4.
func NewCompanyID() string {
	return uuid.NewString()
}

// NewTenantID returns a time-ordered, collision-resistant tenant identifier.
func NewTenantID() (string, error) {
	return prefixedV7("tenant-")
}

// NewUserID returns a time-ordered, collision-resistant user identifier.
func NewUserID() (string, error) {
	return prefixedV7("usr-")
}

// NewTokenID returns a fresh refresh-token lineage marker.
func NewTokenID() (string, error) {
	return prefixedV7("")
}

func prefixedV7(prefix string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	return prefix + id.String(), nil
}
