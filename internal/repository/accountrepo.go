// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/trailframes/server/internal/model"
)

// AccountRepository provides access to registered accounts.
type AccountRepository interface {
	// Create inserts a new account. A duplicate email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// UpdateExternalCredentials overwrites the encrypted token triple and
	// profile attributes in one statement.
	UpdateExternalCredentials(ctx context.Context, id uuid.UUID, athleteID int64, creds model.ExternalCredentials, profile model.AthleteProfile) error
}
