// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TokenPair collects the issued access/refresh tokens for one session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// TokenPayload is the verifiable claim set carried by both tokens.
type TokenPayload struct {
	AccountID uuid.UUID
	Email     string
}

// AthleteProfile holds external-platform profile attributes, overwritten
// on each link/re-link.
type AthleteProfile struct {
	Username      string
	FirstName     string
	LastName      string
	City          string
	Country       string
	Sex           string
	Weight        float64
	Premium       bool
	Profile       string // full-size avatar URL
	ProfileMedium string
}

// ExternalCredentials is the encrypted external token triple stored on an
// account. The fields are either all present or all absent; partial
// linkage is not a valid state.
type ExternalCredentials struct {
	AccessTokenEnc  string // vault bundle
	RefreshTokenEnc string // vault bundle
	ExpiresAt       time.Time
}

// Linked reports whether the triple is fully populated.
func (c ExternalCredentials) Linked() bool {
	return c.AccessTokenEnc != "" && c.RefreshTokenEnc != "" && !c.ExpiresAt.IsZero()
}

// Account represents a registered identity, optionally linked to an
// external athlete.
type Account struct {
	ID           uuid.UUID // PK
	Email        string    // unique
	PasswordHash []byte    // argon2id(password, PasswordSalt), nil until set
	PasswordSalt []byte    // per-account salt

	AthleteID   int64 // external platform identity, 0 when unlinked
	Credentials ExternalCredentials
	Profile     AthleteProfile

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionToken is a persisted refresh-token record. Its value is globally
// unique and, while the row exists, identifies exactly one account.
type SessionToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Token     string // opaque signed token value, unique
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ActivityRecord is one imported external activity. Rows are created only
// by the ingestion engine and never mutated or deleted.
type ActivityRecord struct {
	ID                 uuid.UUID
	ExternalActivityID int64 // dedup key, unique across the whole store
	AccountID          uuid.UUID
	AthleteID          int64

	Name               string
	SportType          string
	Distance           float64 // meters
	MovingTime         int64   // seconds
	ElapsedTime        int64   // seconds
	TotalElevationGain float64
	ElevHigh           float64
	ElevLow            float64

	StartDate      time.Time
	StartDateLocal time.Time
	Timezone       string
	StartLatLng    []float64
	EndLatLng      []float64

	AverageSpeed float64
	MaxSpeed     float64
	AverageWatts float64
	MaxWatts     float64
	Kilojoules   float64

	AchievementCount int
	KudosCount       int
	CommentCount     int
	AthleteCount     int
	PhotoCount       int

	SummaryPolyline string
	Trainer         bool
	Commute         bool
	Manual          bool
	Private         bool
}
