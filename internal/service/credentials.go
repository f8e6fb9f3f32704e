package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
	"github.com/trailframes/server/internal/repository"
	"github.com/trailframes/server/internal/strava"
	"github.com/trailframes/server/internal/vault"
)

// refreshBuffer is the lead time before expiry at which a stored external
// access token is proactively refreshed.
const refreshBuffer = 5 * time.Minute

// TokenExchanger performs OAuth grants against the external platform.
type TokenExchanger interface {
	// ExchangeCode trades an authorization code for a token pair and profile.
	ExchangeCode(ctx context.Context, code string) (*strava.TokenResponse, error)
	// RefreshToken trades a refresh token for a fresh pair.
	RefreshToken(ctx context.Context, refreshToken string) (*strava.TokenResponse, error)
}

// CredentialManager stores and retrieves an account's third-party OAuth
// tokens, keeping them encrypted at rest and fresh in use.
type CredentialManager struct {
	accounts  repository.AccountRepository
	vault     *vault.Vault
	exchanger TokenExchanger
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewCredentialManager constructs a CredentialManager.
func NewCredentialManager(accounts repository.AccountRepository, v *vault.Vault, exchanger TokenExchanger, clock clockwork.Clock, logger *zap.Logger) *CredentialManager {
	return &CredentialManager{accounts: accounts, vault: v, exchanger: exchanger, clock: clock, logger: logger}
}

// LinkWithCode exchanges an authorization code and stores the resulting
// credentials and profile on the account, replacing any prior linkage.
func (m *CredentialManager) LinkWithCode(ctx context.Context, accountID uuid.UUID, code string) (*model.Account, error) {
	tr, err := m.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	profile := athleteProfile(tr.Athlete)
	if err := m.Store(ctx, accountID, tr.Athlete.ID, tr.AccessToken, tr.RefreshToken, time.Unix(tr.ExpiresAt, 0), profile); err != nil {
		return nil, err
	}

	m.logger.Info("external platform linked",
		zap.String("account_id", accountID.String()),
		zap.Int64("athlete_id", tr.Athlete.ID),
	)
	return m.accounts.GetByID(ctx, accountID)
}

// Store encrypts both tokens and persists them with the profile
// attributes, overwriting prior values.
func (m *CredentialManager) Store(ctx context.Context, accountID uuid.UUID, athleteID int64, accessToken, refreshToken string, expiresAt time.Time, profile model.AthleteProfile) error {
	accessEnc, err := m.vault.Encrypt(accessToken)
	if err != nil {
		return err
	}
	refreshEnc, err := m.vault.Encrypt(refreshToken)
	if err != nil {
		return err
	}

	creds := model.ExternalCredentials{
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAt:       expiresAt,
	}
	return m.accounts.UpdateExternalCredentials(ctx, accountID, athleteID, creds, profile)
}

// GetValidAccessToken returns a live plaintext access token for the
// account. When the stored expiry is within the buffer window, the token
// pair is refreshed through the exchanger, re-encrypted, and persisted
// first; otherwise the stored token is decrypted and returned with no
// network call.
func (m *CredentialManager) GetValidAccessToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !account.Credentials.Linked() {
		return "", errs.ErrNotLinked
	}

	expiringSoon := m.clock.Now().Add(refreshBuffer).After(account.Credentials.ExpiresAt)
	if !expiringSoon {
		return m.vault.Decrypt(account.Credentials.AccessTokenEnc)
	}

	refreshToken, err := m.vault.Decrypt(account.Credentials.RefreshTokenEnc)
	if err != nil {
		return "", err
	}

	tr, err := m.exchanger.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	expiresAt := time.Unix(tr.ExpiresAt, 0)
	if err := m.Store(ctx, accountID, account.AthleteID, tr.AccessToken, tr.RefreshToken, expiresAt, account.Profile); err != nil {
		return "", err
	}

	m.logger.Info("external token refreshed",
		zap.String("account_id", accountID.String()),
		zap.Time("expires_at", expiresAt),
	)
	return tr.AccessToken, nil
}

func athleteProfile(a strava.Athlete) model.AthleteProfile {
	return model.AthleteProfile{
		Username:      a.Username,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		City:          a.City,
		Country:       a.Country,
		Sex:           a.Sex,
		Weight:        a.Weight,
		Premium:       a.Premium,
		Profile:       a.Profile,
		ProfileMedium: a.ProfileMedium,
	}
}
