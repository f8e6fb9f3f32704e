package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/trailframes/server/internal/crypto"
	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
	"github.com/trailframes/server/internal/repository"
)

// AccountService handles registration, login, and account lookup.
type AccountService struct {
	accounts repository.AccountRepository
}

// NewAccountService constructs an AccountService.
func NewAccountService(accounts repository.AccountRepository) *AccountService {
	return &AccountService{accounts: accounts}
}

// Register creates a new account with a per-account salt and argon2id
// password hash. A taken email yields errs.ErrAlreadyExists.
func (s *AccountService) Register(ctx context.Context, email, password string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") || len(email) < 3 {
		return nil, fmt.Errorf("%w: invalid email", errs.ErrValidation)
	}
	if err := pkgcrypto.CheckPasswordStrength(password); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return nil, err
	}

	a := &model.Account{
		ID:           id,
		Email:        email,
		PasswordHash: pkgcrypto.HashPassword([]byte(password), salt),
		PasswordSalt: salt,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil || a.PasswordHash == nil ||
		!pkgcrypto.VerifyPassword([]byte(password), a.PasswordSalt, a.PasswordHash) {
		return nil, errs.ErrInvalidCredentials
	}
	return a, nil
}

// GetByID loads an account by ID.
func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return s.accounts.GetByID(ctx, id)
}
