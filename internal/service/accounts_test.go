package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trailframes/server/internal/errs"
)

func TestRegister(t *testing.T) {
	accounts := newFakeAccounts()
	svc := NewAccountService(accounts)
	ctx := context.Background()

	a, err := svc.Register(ctx, "A@X.com", "Abcdef1!")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", a.Email) // normalized
	require.NotEmpty(t, a.PasswordHash)
	require.NotEmpty(t, a.PasswordSalt)

	// Duplicate email.
	_, err = svc.Register(ctx, "a@x.com", "Abcdef1!")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	// Policy violations.
	_, err = svc.Register(ctx, "b@x.com", "weak")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = svc.Register(ctx, "not-an-email", "Abcdef1!")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestLogin(t *testing.T) {
	accounts := newFakeAccounts()
	svc := NewAccountService(accounts)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@x.com", "Abcdef1!")
	require.NoError(t, err)

	a, err := svc.Login(ctx, "a@x.com", "Abcdef1!")
	require.NoError(t, err)
	require.Equal(t, registered.ID, a.ID)

	// Wrong password and unknown email look the same to the caller.
	_, err = svc.Login(ctx, "a@x.com", "Wrong1!aa")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@x.com", "Abcdef1!")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
}
