// Package strava talks to the external platform's OAuth and activities APIs.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trailframes/server/internal/errs"
)

const requestTimeout = 15 * time.Second

// TokenResponse is the result of an authorization-code or refresh-token
// exchange: a fresh token pair, its absolute expiry, and the athlete
// profile attached to the grant.
type TokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    int64   `json:"expires_at"` // unix seconds
	Athlete      Athlete `json:"athlete"`
}

// Athlete is the profile payload returned with an authorization-code grant.
type Athlete struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	FirstName     string  `json:"firstname"`
	LastName      string  `json:"lastname"`
	City          string  `json:"city"`
	Country       string  `json:"country"`
	Sex           string  `json:"sex"`
	Weight        float64 `json:"weight"`
	Premium       bool    `json:"premium"`
	Profile       string  `json:"profile"`
	ProfileMedium string  `json:"profile_medium"`
}

// SummaryActivity is one item of the paginated activities feed.
type SummaryActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	SportType          string    `json:"sport_type"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	ElevHigh           float64   `json:"elev_high"`
	ElevLow            float64   `json:"elev_low"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	StartLatLng        []float64 `json:"start_latlng"`
	EndLatLng          []float64 `json:"end_latlng"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageWatts       float64   `json:"average_watts"`
	MaxWatts           float64   `json:"max_watts"`
	Kilojoules         float64   `json:"kilojoules"`
	AchievementCount   int       `json:"achievement_count"`
	KudosCount         int       `json:"kudos_count"`
	CommentCount       int       `json:"comment_count"`
	AthleteCount       int       `json:"athlete_count"`
	TotalPhotoCount    int       `json:"total_photo_count"`
	Trainer            bool      `json:"trainer"`
	Commute            bool      `json:"commute"`
	Manual             bool      `json:"manual"`
	Private            bool      `json:"private"`
	Athlete            struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
	Map struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// Client calls the platform's OAuth token endpoint and read API.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	http         *http.Client
}

// New constructs a Client. baseURL covers both the OAuth endpoint and the
// read API so tests can point everything at one fake server.
func New(clientID, clientSecret, baseURL string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: requestTimeout},
	}
}

// ExchangeCode trades an authorization code for a token pair and the
// linked athlete's profile.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})
}

// RefreshToken trades a refresh token for a fresh pair. A 400 or 401 from
// upstream means the grant was revoked, which is terminal: the user must
// re-link. Anything else is transient.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &errs.ExternalError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.ExternalError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ExternalError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		revoked := resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized
		return nil, &errs.ExternalError{
			Terminal: revoked,
			Err:      fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, body),
		}
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &errs.ExternalError{Err: err}
	}
	return &tr, nil
}

// Activities fetches one page of the athlete's activities feed.
func (c *Client) Activities(ctx context.Context, accessToken string, page, perPage int) ([]SummaryActivity, error) {
	u := c.baseURL + "/api/v3/athlete/activities?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &errs.ExternalError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.ExternalError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.ExternalError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		// 401/403 mean the token is no longer honored; rate limiting and
		// upstream failures are retryable.
		terminal := resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
		return nil, &errs.ExternalError{
			Terminal: terminal,
			Err:      fmt.Errorf("activities page %d failed with status %d: %s", page, resp.StatusCode, body),
		}
	}

	var items []SummaryActivity
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &errs.ExternalError{Err: err}
	}
	return items, nil
}
