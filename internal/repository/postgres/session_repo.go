package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
)

// SessionRepo implements SessionTokenRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session-token repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a new session-token row.
func (r *SessionRepo) Create(ctx context.Context, st *model.SessionToken) error {
	const q = `
INSERT INTO session_tokens (id, account_id, token, expires_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, st.ID, st.AccountID, st.Token, st.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Claim deletes the row matching token in a single conditional statement
// and returns its account ID. The DELETE ... RETURNING is the only point
// of mutual exclusion for rotation: of two concurrent claims, exactly one
// sees the row.
func (r *SessionRepo) Claim(ctx context.Context, token string) (uuid.UUID, error) {
	const q = `DELETE FROM session_tokens WHERE token=$1 RETURNING account_id`
	var accountID uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, q, token).Scan(&accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errs.ErrNotFound
		}
		return uuid.Nil, err
	}
	return accountID, nil
}

// Delete removes the row matching token. Absence is not an error.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	const q = `DELETE FROM session_tokens WHERE token=$1`
	_, err := r.db.Pool.Exec(ctx, q, token)
	return err
}

// DeleteExpired removes every row with expiry at or before now. The
// deletion is a pure set difference, so it is safe to overlap with
// request-path deletes.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM session_tokens WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByAccount returns the number of stored rows for an account.
func (r *SessionRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM session_tokens WHERE account_id=$1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, accountID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
