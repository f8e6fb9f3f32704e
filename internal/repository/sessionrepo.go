package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/trailframes/server/internal/model"
)

// SessionTokenRepository stores persisted refresh-token records.
type SessionTokenRepository interface {
	// Create inserts a new session-token row.
	Create(ctx context.Context, st *model.SessionToken) error
	// Claim atomically deletes the row matching token and returns its
	// account ID. It is the sole point of mutual exclusion for rotation:
	// of two concurrent claims on the same token, exactly one observes
	// the row. A missing row yields errs.ErrNotFound.
	Claim(ctx context.Context, token string) (uuid.UUID, error)
	// Delete removes the row matching token; absent is a no-op.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes every row whose expiry is not after now and
	// returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// CountByAccount returns the number of active rows for an account.
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}
