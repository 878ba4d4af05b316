package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-dm/internal/auth"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/stats"
	"github.com/npezzotti/go-dm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func assertRefreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookie := findCookie(rr, refreshCookieKey)
	require.NotNil(t, cookie, "expected refresh cookie to be set")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), cookie.MaxAge, 5)
	return cookie
}

func assertAccessToken(t *testing.T, ta *testApp, rr *httptest.ResponseRecorder, username string) {
	t.Helper()
	var resp types.TokenResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "bearer", resp.TokenType)
	sub, err := ta.codec.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, username, sub)
}

func Test_register(t *testing.T) {
	tcases := []struct {
		name       string
		body       any
		mockErr    error
		callRepo   bool
		statusCode int
		message    string
	}{
		{
			name:       "invalid json body",
			body:       "invalid json",
			statusCode: http.StatusBadRequest,
			message:    "bad request",
		},
		{
			name:       "username too short",
			body:       RegisterRequest{Username: "al", Email: "alice@example.com", Password: "password123"},
			statusCode: http.StatusUnprocessableEntity,
			message:    "username must be 6 to 20 characters",
		},
		{
			name:       "username too long",
			body:       RegisterRequest{Username: strings.Repeat("a", 21), Email: "alice@example.com", Password: "password123"},
			statusCode: http.StatusUnprocessableEntity,
			message:    "username must be 6 to 20 characters",
		},
		{
			name:       "invalid email",
			body:       RegisterRequest{Username: "alice01", Email: "not-an-email", Password: "password123"},
			statusCode: http.StatusUnprocessableEntity,
			message:    "invalid email",
		},
		{
			name:       "password too short",
			body:       RegisterRequest{Username: "alice01", Email: "alice@example.com", Password: "pw"},
			statusCode: http.StatusUnprocessableEntity,
			message:    "password must be 6 to 128 characters",
		},
		{
			name:       "duplicate username",
			body:       RegisterRequest{Username: "alice01", Email: "alice@example.com", Password: "password123"},
			mockErr:    &database.DuplicateError{Constraint: "accounts_username_key"},
			callRepo:   true,
			statusCode: http.StatusConflict,
			message:    "user already exists",
		},
		{
			name:       "duplicate email",
			body:       RegisterRequest{Username: "alice01", Email: "alice@example.com", Password: "password123"},
			mockErr:    &database.DuplicateError{Constraint: "accounts_email_key"},
			callRepo:   true,
			statusCode: http.StatusConflict,
			message:    "email already exists",
		},
		{
			name:       "database error",
			body:       RegisterRequest{Username: "alice01", Email: "alice@example.com", Password: "password123"},
			mockErr:    errors.New("db down"),
			callRepo:   true,
			statusCode: http.StatusInternalServerError,
			message:    "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			if tc.callRepo {
				ta.repo.On("CreateAccount", mock.Anything).Return(database.User{}, tc.mockErr).Once()
			}

			rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/register", jsonBody(t, tc.body)))

			assert.Equal(t, tc.statusCode, rr.Code)
			assert.Equal(t, tc.message, decodeError(t, rr).Message)
			assert.Nil(t, findCookie(rr, refreshCookieKey))
		})
	}

	t.Run("creates the account and starts a session", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == "alice01" && p.EmailAddress == "alice@example.com" &&
				bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("password123")) == nil
		})).Return(alice, nil).Once()
		ta.repo.On("CreateRefreshToken", mock.MatchedBy(func(p database.CreateRefreshTokenParams) bool {
			return p.UserId == alice.Id && len(p.TokenHash) == 64
		})).Return(database.RefreshToken{}, nil).Once()

		body := RegisterRequest{Username: " alice01 ", Email: "alice@example.com", Password: "password123"}
		rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/register", jsonBody(t, body)))

		assert.Equal(t, http.StatusCreated, rr.Code)
		assertRefreshCookie(t, rr)
		assertAccessToken(t, ta, rr, alice.Username)
	})
}

func Test_login(t *testing.T) {
	ta := newTestApp(t)
	hash, err := ta.hasher.Hash(context.Background(), "password123")
	require.NoError(t, err)
	user := alice
	user.PasswordHash = hash

	t.Run("json body", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("GetAccountByEmail", "alice@example.com").Return(user, nil).Once()
		ta.repo.On("CreateRefreshToken", mock.Anything).Return(database.RefreshToken{}, nil).Once()

		body := LoginRequest{Email: "alice@example.com", Password: "password123"}
		rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(t, body)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assertRefreshCookie(t, rr)
		assertAccessToken(t, ta, rr, alice.Username)
	})

	t.Run("password form", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("GetAccountByEmail", "alice@example.com").Return(user, nil).Once()
		ta.repo.On("CreateRefreshToken", mock.Anything).Return(database.RefreshToken{}, nil).Once()

		form := url.Values{"username": {"alice@example.com"}, "password": {"password123"}}
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := ta.do(req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assertRefreshCookie(t, rr)
	})

	tcases := []struct {
		name       string
		body       any
		mockUser   database.User
		mockErr    error
		callRepo   bool
		statusCode int
		message    string
	}{
		{
			name:       "invalid json body",
			body:       "invalid json",
			statusCode: http.StatusBadRequest,
			message:    "bad request",
		},
		{
			name:       "missing password",
			body:       LoginRequest{Email: "alice@example.com"},
			statusCode: http.StatusUnprocessableEntity,
			message:    "email and password are required",
		},
		{
			name:       "unknown email",
			body:       LoginRequest{Email: "alice@example.com", Password: "password123"},
			mockErr:    sql.ErrNoRows,
			callRepo:   true,
			statusCode: http.StatusUnauthorized,
			message:    "incorrect email or password",
		},
		{
			name:       "wrong password",
			body:       LoginRequest{Email: "alice@example.com", Password: "wrong-password"},
			mockUser:   user,
			callRepo:   true,
			statusCode: http.StatusUnauthorized,
			message:    "incorrect email or password",
		},
		{
			name:       "database error",
			body:       LoginRequest{Email: "alice@example.com", Password: "password123"},
			mockErr:    errors.New("db down"),
			callRepo:   true,
			statusCode: http.StatusInternalServerError,
			message:    "internal server error",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			if tc.callRepo {
				ta.repo.On("GetAccountByEmail", "alice@example.com").Return(tc.mockUser, tc.mockErr).Once()
			}

			rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(t, tc.body)))

			assert.Equal(t, tc.statusCode, rr.Code)
			assert.Equal(t, tc.message, decodeError(t, rr).Message)
			assert.Nil(t, findCookie(rr, refreshCookieKey))
		})
	}
}

func Test_me(t *testing.T) {
	ta := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", ta.bearer(t, alice))

	rr := ta.do(req)

	require.Equal(t, http.StatusOK, rr.Code)
	var user types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, alice.Id, user.Id)
	assert.Equal(t, alice.Username, user.Username)
	assert.Equal(t, alice.EmailAddress, user.EmailAddress)
	assert.NotContains(t, rr.Body.String(), "password")
}

func Test_refresh(t *testing.T) {
	const secret = "raw-refresh-secret"
	hash := auth.HashRefreshSecret(secret)

	t.Run("rotates the secret", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.TokensRotated).Once()

		ta := newTestApp(t, withStats(su))
		ta.repo.On("GetActiveRefreshToken", hash, mock.Anything).Return(database.RefreshToken{UserId: alice.Id}, nil).Once()
		ta.repo.On("GetAccountById", alice.Id).Return(alice, nil).Once()
		ta.repo.On("RotateRefreshToken", hash, mock.Anything, mock.Anything).Return(database.RefreshToken{}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: refreshCookieKey, Value: secret})
		rr := ta.do(req)

		assert.Equal(t, http.StatusOK, rr.Code)
		cookie := assertRefreshCookie(t, rr)
		assert.NotEqual(t, secret, cookie.Value)
		assertAccessToken(t, ta, rr, alice.Username)
	})

	t.Run("missing cookie", func(t *testing.T) {
		ta := newTestApp(t)

		rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "missing token", decodeError(t, rr).Message)
	})

	t.Run("revoked secret clears the cookie", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("GetActiveRefreshToken", hash, mock.Anything).Return(database.RefreshToken{}, sql.ErrNoRows).Once()

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: refreshCookieKey, Value: secret})
		rr := ta.do(req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid credentials", decodeError(t, rr).Message)
		cookie := findCookie(rr, refreshCookieKey)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Less(t, cookie.MaxAge, 0)
	})

	t.Run("lost rotation race", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("GetActiveRefreshToken", hash, mock.Anything).Return(database.RefreshToken{UserId: alice.Id}, nil).Once()
		ta.repo.On("GetAccountById", alice.Id).Return(alice, nil).Once()
		ta.repo.On("RotateRefreshToken", hash, mock.Anything, mock.Anything).Return(database.RefreshToken{}, sql.ErrNoRows).Once()

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: refreshCookieKey, Value: secret})
		rr := ta.do(req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func Test_logout(t *testing.T) {
	const secret = "raw-refresh-secret"

	t.Run("revokes and clears the cookie", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("RevokeRefreshToken", auth.HashRefreshSecret(secret), mock.Anything).Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: refreshCookieKey, Value: secret})
		rr := ta.do(req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		cookie := findCookie(rr, refreshCookieKey)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Less(t, cookie.MaxAge, 0)
	})

	t.Run("without a cookie", func(t *testing.T) {
		ta := newTestApp(t)

		rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.NotNil(t, findCookie(rr, refreshCookieKey))
	})

	t.Run("revoke fails", func(t *testing.T) {
		ta := newTestApp(t)
		ta.repo.On("RevokeRefreshToken", auth.HashRefreshSecret(secret), mock.Anything).Return(errors.New("db down")).Once()

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: refreshCookieKey, Value: secret})
		rr := ta.do(req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestAuthRateLimit(t *testing.T) {
	ta := newTestApp(t)

	for i := 0; i < authRateRequests; i++ {
		rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(t, "invalid json")))
		require.Equal(t, http.StatusBadRequest, rr.Code, "request %d", i)
	}

	rr := ta.do(httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(t, "invalid json")))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate limit exceeded", decodeError(t, rr).Message)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(t, "invalid json"))
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusBadRequest, ta.do(req).Code, "other clients are unaffected")
}
