package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, email, pwd_hash, pwd_salt, athlete_id,
access_token_enc, refresh_token_enc, token_expires_at,
username, first_name, last_name, city, country, sex, weight, premium,
profile, profile_medium, created_at, updated_at`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, pwd_hash, pwd_salt)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Email, a.PasswordHash, a.PasswordSalt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email)
}

func (r *AccountRepo) get(ctx context.Context, q string, arg any) (*model.Account, error) {
	row := r.db.Pool.QueryRow(ctx, q, arg)

	var (
		a          model.Account
		athleteID  *int64
		accessEnc  *string
		refreshEnc *string
		expiresAt  *time.Time
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.PasswordSalt, &athleteID,
		&accessEnc, &refreshEnc, &expiresAt,
		&a.Profile.Username, &a.Profile.FirstName, &a.Profile.LastName,
		&a.Profile.City, &a.Profile.Country, &a.Profile.Sex,
		&a.Profile.Weight, &a.Profile.Premium,
		&a.Profile.Profile, &a.Profile.ProfileMedium,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	if athleteID != nil {
		a.AthleteID = *athleteID
	}
	if accessEnc != nil && refreshEnc != nil && expiresAt != nil {
		a.Credentials = model.ExternalCredentials{
			AccessTokenEnc:  *accessEnc,
			RefreshTokenEnc: *refreshEnc,
			ExpiresAt:       *expiresAt,
		}
	}
	return &a, nil
}

// UpdateExternalCredentials overwrites the encrypted token triple and the
// profile attributes in a single statement.
func (r *AccountRepo) UpdateExternalCredentials(
	ctx context.Context, id uuid.UUID, athleteID int64,
	creds model.ExternalCredentials, profile model.AthleteProfile,
) error {
	const q = `
UPDATE accounts SET
	athlete_id=$2, access_token_enc=$3, refresh_token_enc=$4, token_expires_at=$5,
	username=$6, first_name=$7, last_name=$8, city=$9, country=$10, sex=$11,
	weight=$12, premium=$13, profile=$14, profile_medium=$15, updated_at=now()
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, athleteID,
		creds.AccessTokenEnc, creds.RefreshTokenEnc, creds.ExpiresAt,
		profile.Username, profile.FirstName, profile.LastName,
		profile.City, profile.Country, profile.Sex,
		profile.Weight, profile.Premium, profile.Profile, profile.ProfileMedium)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
