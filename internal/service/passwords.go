package service

import (
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
)

func hashPassword(h auth.PasswordHasher, plaintext string) (string, error) {
	start := time.Now()
	digest, err := h.Hash(plaintext)
	metrics.ObservePasswordHash("hash", time.Since(start))
	return digest, err
}

func verifyPassword(h auth.PasswordHasher, plaintext, digest string) (bool, error) {
	start := time.Now()
	ok, err := h.Verify(plaintext, digest)
	metrics.ObservePasswordHash("verify", time.Since(start))
	return ok, err
}
