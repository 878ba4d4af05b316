package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher runs bcrypt on a bounded number of worker slots so that
// slow hashes queue up instead of piling onto every request goroutine.
type PasswordHasher struct {
	slots *semaphore.Weighted
	cost  int
}

func NewPasswordHasher(workers, cost int) *PasswordHasher {
	if workers < 1 {
		workers = 1
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &PasswordHasher{
		slots: semaphore.NewWeighted(int64(workers)),
		cost:  cost,
	}
}

func (h *PasswordHasher) Hash(ctx context.Context, passwd string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(passwd), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether passwd matches hash. A context error is returned
// when no slot became available in time.
func (h *PasswordHasher) Verify(ctx context.Context, hash, passwd string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("acquire hash slot: %w", err)
	}
	defer h.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passwd))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("compare password: %w", err)
	}

	return true, nil
}
