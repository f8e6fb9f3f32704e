package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailframes/server/internal/config"
	"github.com/trailframes/server/internal/errs"
	"github.com/trailframes/server/internal/model"
	"github.com/trailframes/server/internal/service"
)

/*** fakes ***/

type fakeAccounts struct {
	account     *model.Account
	registerErr error
	loginErr    error
	getErr      error

	loginCalls int
}

func (f *fakeAccounts) Register(ctx context.Context, email, password string) (*model.Account, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.account, nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (*model.Account, error) {
	f.loginCalls++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.account, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.account, nil
}

type fakeTokens struct {
	pair        model.TokenPair
	payload     model.TokenPayload
	validateErr error
	rotateErr   error

	revoked []string
	rotated []string
}

func (f *fakeTokens) IssuePair(ctx context.Context, accountID uuid.UUID, email string) (model.TokenPair, error) {
	return f.pair, nil
}

func (f *fakeTokens) ValidateAccess(token string) (model.TokenPayload, error) {
	if f.validateErr != nil {
		return model.TokenPayload{}, f.validateErr
	}
	return f.payload, nil
}

func (f *fakeTokens) RotateRefresh(ctx context.Context, oldToken string) (model.TokenPair, error) {
	f.rotated = append(f.rotated, oldToken)
	if f.rotateErr != nil {
		return model.TokenPair{}, f.rotateErr
	}
	return f.pair, nil
}

func (f *fakeTokens) Revoke(ctx context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

type fakeLinker struct {
	account *model.Account
	err     error
	codes   []string
}

func (f *fakeLinker) LinkWithCode(ctx context.Context, accountID uuid.UUID, code string) (*model.Account, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

type fakeSyncer struct {
	result service.SyncResult
	err    error
	calls  int
}

func (f *fakeSyncer) SyncAll(ctx context.Context, accountID uuid.UUID) (service.SyncResult, error) {
	f.calls++
	if f.err != nil {
		return service.SyncResult{}, f.err
	}
	return f.result, nil
}

type fakeLimiter struct {
	blocked  bool
	wait     time.Duration
	failures int
	resets   int
}

func (f *fakeLimiter) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	return !f.blocked, f.wait, nil
}

func (f *fakeLimiter) Success(ctx context.Context, email string, ipHash []byte) error {
	f.resets++
	return nil
}

func (f *fakeLimiter) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	f.failures++
	return false, 0, nil
}

/*** harness ***/

type env struct {
	srv      *Server
	accounts *fakeAccounts
	tokens   *fakeTokens
	linker   *fakeLinker
	syncer   *fakeSyncer
	limiter  *fakeLimiter
}

func newEnv(t *testing.T) *env {
	t.Helper()

	id := uuid.Must(uuid.NewV4())
	account := &model.Account{ID: id, Email: "rider@example.com"}

	e := &env{
		accounts: &fakeAccounts{account: account},
		tokens: &fakeTokens{
			pair:    model.TokenPair{AccessToken: "access-jwt", RefreshToken: "refresh-jwt"},
			payload: model.TokenPayload{AccountID: id, Email: account.Email},
		},
		linker:  &fakeLinker{account: account},
		syncer:  &fakeSyncer{result: service.SyncResult{Fetched: 7, Inserted: 5}},
		limiter: &fakeLimiter{},
	}
	cfg := &config.Config{
		AppEnv:     "test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
	e.srv = NewServer(cfg, e.accounts, e.tokens, e.linker, e.syncer, e.limiter, zap.NewNop())
	return e
}

// csrfHandshake fetches the anti-forgery token and its cookie the way a
// browser client would before any mutating request.
func csrfHandshake(t *testing.T, srv *Server) (string, []*http.Cookie) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/auth/csrf", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CsrfToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.CsrfToken)
	return body.CsrfToken, rec.Result().Cookies()
}

func doJSON(srv *Server, method, path, body, csrf string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

/*** tests ***/

func TestRegisterSetsSessionCookies(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/register",
		`{"email":"rider@example.com","password":"Str0ng!pass"}`, csrf, cookies)

	require.Equal(t, http.StatusCreated, rec.Code)

	got := rec.Result().Cookies()
	access := cookieByName(got, "access_token")
	refresh := cookieByName(got, "refresh_token")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.Equal(t, "access-jwt", access.Value)
	assert.Equal(t, "refresh-jwt", refresh.Value)
	assert.True(t, access.HttpOnly)

	var body struct {
		Success bool `json:"success"`
		User    struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "rider@example.com", body.User.Email)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.accounts.registerErr = errs.ErrAlreadyExists
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/register",
		`{"email":"rider@example.com","password":"Str0ng!pass"}`, csrf, cookies)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in use")
}

func TestLoginInvalidCredentialsRecordsFailure(t *testing.T) {
	e := newEnv(t)
	e.accounts.loginErr = errs.ErrInvalidCredentials
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/login",
		`{"email":"rider@example.com","password":"wrong"}`, csrf, cookies)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, e.limiter.failures)
	assert.Nil(t, cookieByName(rec.Result().Cookies(), "access_token"))
}

func TestLoginRateLimited(t *testing.T) {
	e := newEnv(t)
	e.limiter.blocked = true
	e.limiter.wait = 90 * time.Second
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/login",
		`{"email":"rider@example.com","password":"Str0ng!pass"}`, csrf, cookies)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Zero(t, e.accounts.loginCalls)
}

func TestLoginSuccessResetsLimiter(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/login",
		`{"email":"rider@example.com","password":"Str0ng!pass"}`, csrf, cookies)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.limiter.resets)
	assert.NotNil(t, cookieByName(rec.Result().Cookies(), "refresh_token"))
}

func TestRefreshRotatesTokens(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)
	cookies = append(cookies, &http.Cookie{Name: "refresh_token", Value: "old-refresh"})

	rec := doJSON(e.srv, http.MethodPost, "/auth/refresh", "", csrf, cookies)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"old-refresh"}, e.tokens.rotated)
	refresh := cookieByName(rec.Result().Cookies(), "refresh_token")
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-jwt", refresh.Value)
}

func TestRefreshWithoutCookie(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/refresh", "", csrf, cookies)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	access := cookieByName(rec.Result().Cookies(), "access_token")
	require.NotNil(t, access)
	assert.Empty(t, access.Value)
	assert.Negative(t, access.MaxAge)
}

func TestRefreshReplayClearsCookies(t *testing.T) {
	e := newEnv(t)
	e.tokens.rotateErr = errs.ErrInvalidToken
	csrf, cookies := csrfHandshake(t, e.srv)
	cookies = append(cookies, &http.Cookie{Name: "refresh_token", Value: "stolen"})

	rec := doJSON(e.srv, http.MethodPost, "/auth/refresh", "", csrf, cookies)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	refresh := cookieByName(rec.Result().Cookies(), "refresh_token")
	require.NotNil(t, refresh)
	assert.Empty(t, refresh.Value)
}

func TestLogoutRevokesAndClears(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)
	cookies = append(cookies, &http.Cookie{Name: "refresh_token", Value: "current"})

	rec := doJSON(e.srv, http.MethodPost, "/auth/logout", "", csrf, cookies)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"current"}, e.tokens.revoked)
	access := cookieByName(rec.Result().Cookies(), "access_token")
	require.NotNil(t, access)
	assert.Empty(t, access.Value)
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)

	rec := doJSON(e.srv, http.MethodPost, "/auth/logout", "", csrf, cookies)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.tokens.revoked)
}

func TestCurrentUserRequiresSession(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/current-user", nil)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUserReturnsProfile(t *testing.T) {
	e := newEnv(t)
	e.accounts.account.AthleteID = 42
	e.accounts.account.Profile.Username = "trailrider"

	req := httptest.NewRequest(http.MethodGet, "/auth/current-user", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "access-jwt"})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trailrider"`)
	assert.Contains(t, rec.Body.String(), `"athleteId":42`)
}

func TestCurrentUserExpiredToken(t *testing.T) {
	e := newEnv(t)
	e.tokens.validateErr = errs.ErrTokenExpired

	req := httptest.NewRequest(http.MethodGet, "/auth/current-user", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "stale"})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStravaCallbackLinksAccount(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback?code=abc123", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "access-jwt"})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc123"}, e.linker.codes)
}

func TestStravaCallbackMissingCode(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "access-jwt"})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.linker.codes)
}

func TestStravaCallbackTerminalUpstreamError(t *testing.T) {
	e := newEnv(t)
	e.linker.err = &errs.ExternalError{Terminal: true, Err: errs.ErrNotFound}

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback?code=revoked", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "access-jwt"})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "external service request failed")
}

func TestSyncReturnsCounts(t *testing.T) {
	e := newEnv(t)
	csrf, cookies := csrfHandshake(t, e.srv)
	cookies = append(cookies, &http.Cookie{Name: "access_token", Value: "access-jwt"})

	rec := doJSON(e.srv, http.MethodPost, "/activities/sync", "", csrf, cookies)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.syncer.calls)
	assert.Contains(t, rec.Body.String(), `"fetched":7`)
	assert.Contains(t, rec.Body.String(), `"inserted":5`)
}

func TestSyncRejectsMissingCsrf(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/activities/sync", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "access-jwt"})
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.syncer.calls)
}

func TestSyncNotLinked(t *testing.T) {
	e := newEnv(t)
	e.syncer.err = errs.ErrNotLinked
	csrf, cookies := csrfHandshake(t, e.srv)
	cookies = append(cookies, &http.Cookie{Name: "access_token", Value: "access-jwt"})

	rec := doJSON(e.srv, http.MethodPost, "/activities/sync", "", csrf, cookies)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestInternalDetailsHiddenInProduction(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	account := &model.Account{ID: id, Email: "rider@example.com"}
	accounts := &fakeAccounts{account: account, getErr: errs.ErrDecryption}
	tokens := &fakeTokens{payload: model.TokenPayload{AccountID: id, Email: account.Email}}
	cfg := &config.Config{AppEnv: "production", AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
	srv := NewServer(cfg, accounts, tokens, &fakeLinker{}, &fakeSyncer{}, &fakeLimiter{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/auth/current-user", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "access-jwt"})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "decryption")
	assert.Contains(t, rec.Body.String(), "unexpected error")
}
