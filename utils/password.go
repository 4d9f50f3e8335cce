package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost keeps a verification around 200ms on commodity hardware.
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest secret bcrypt will accept.
const MaxPasswordBytes = 72

// PasswordHasher produces self-describing one-way hashes and verifies
// secrets against them.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	// Verify returns false on a mismatch and an error only when the stored
	// hash is malformed.
	Verify(secret, hash string) (bool, error)
}

// BcryptHasher implements PasswordHasher. The salt and cost are embedded in
// every hash it produces.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(secret, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// Cost returns the bcrypt cost new hashes are produced with.
func (h *BcryptHasher) Cost() int {
	return h.cost
}
