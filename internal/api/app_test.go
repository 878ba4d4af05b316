package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-dm/internal/auth"
	"github.com/npezzotti/go-dm/internal/config"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/server"
	"github.com/npezzotti/go-dm/internal/stats"
	"github.com/npezzotti/go-dm/internal/storage"
	"github.com/npezzotti/go-dm/internal/testutil"
	"github.com/npezzotti/go-dm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	alice      = database.User{Id: 1, Username: "alice01", EmailAddress: "alice@example.com"}
	bob        = database.User{Id: 2, Username: "bobby02", EmailAddress: "bob@example.com"}
)

type broadcast struct {
	conversationId int
	ev             *server.Event
}

type fakeLive struct {
	mu         sync.Mutex
	broadcasts []broadcast
	served     []int
}

func (f *fakeLive) ServeConversation(w http.ResponseWriter, r *http.Request, conversationId int) {
	f.mu.Lock()
	f.served = append(f.served, conversationId)
	f.mu.Unlock()
	w.WriteHeader(http.StatusTeapot)
}

func (f *fakeLive) Broadcast(conversationId int, ev *server.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcast{conversationId, ev})
	return 1
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Check(f storage.File) error {
	args := m.Called(f.Name, f.Mime, f.Size)
	return args.Error(0)
}

func (m *mockUploader) Upload(ctx context.Context, userId int, f storage.File) (types.UploadedFile, error) {
	body, _ := io.ReadAll(f.Body)
	args := m.Called(userId, f.Name, string(body))
	return args.Get(0).(types.UploadedFile), args.Error(1)
}

type testApp struct {
	app     *DMApp
	repo    *database.MockDMRepository
	live    *fakeLive
	codec   *auth.TokenCodec
	hasher  *auth.PasswordHasher
	uploads Uploader
	stats   stats.StatsProvider
}

type appOption func(*testApp)

func withUploads(u Uploader) appOption {
	return func(ta *testApp) { ta.uploads = u }
}

func withStats(su stats.StatsProvider) appOption {
	return func(ta *testApp) { ta.stats = su }
}

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	codec, err := auth.NewTokenCodec(testSecret, "HS256")
	require.NoError(t, err)

	ta := &testApp{
		repo:   &database.MockDMRepository{},
		live:   &fakeLive{},
		codec:  codec,
		hasher: auth.NewPasswordHasher(2, bcrypt.MinCost),
		stats:  stats.NopStats{},
	}
	for _, opt := range opts {
		opt(ta)
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:8000",
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxUploadBytes: 1024,
	}
	authority := auth.NewSessionAuthority(codec, ta.repo, 30*time.Minute, 7*24*time.Hour)
	ta.app = NewDMApp(http.NewServeMux(), testutil.TestLogger(t), ta.live, ta.repo, authority, ta.hasher, ta.stats, ta.uploads, cfg)
	t.Cleanup(ta.app.limiter.Stop)
	t.Cleanup(func() { ta.repo.AssertExpectations(t) })

	return ta
}

// bearer signs an access token for user and expects the middleware to load it.
func (ta *testApp) bearer(t *testing.T, user database.User) string {
	t.Helper()
	token, err := ta.codec.Sign(user.Username, time.Minute)
	require.NoError(t, err)
	ta.repo.On("GetAccountByUsername", user.Username).Return(user, nil).Once()
	return "Bearer " + token
}

func (ta *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ta.app.Handler().ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	if s, ok := v.(string); ok {
		return bytes.NewBufferString(s)
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var errResp ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	return errResp
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestNewDMApp(t *testing.T) {
	ta := newTestApp(t)

	assert.NotNil(t, ta.app.srv, "expected http server to be initialized")
	assert.Equal(t, "localhost:8000", ta.app.srv.Addr)
	assert.Equal(t, ta.repo, ta.app.db)
	assert.NotNil(t, ta.app.conversations)
	assert.NotNil(t, ta.app.paginator)
	assert.NotNil(t, ta.app.mutator)
	assert.Nil(t, ta.app.uploads)
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name       string
		mockErr    error
		statusCode int
		status     string
	}{
		{name: "database reachable", statusCode: http.StatusOK, status: "ok"},
		{name: "database down", mockErr: errors.New("db error"), statusCode: http.StatusServiceUnavailable, status: "unavailable"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestApp(t)
			ta.repo.On("Ping").Return(tc.mockErr).Once()

			rr := ta.do(httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tc.statusCode, rr.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tc.status, body["status"])
		})
	}
}

func Test_authMiddleware(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		ta := newTestApp(t)

		rr := ta.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "missing token", decodeError(t, rr).Message)
	})

	t.Run("malformed token", func(t *testing.T) {
		ta := newTestApp(t)
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")

		rr := ta.do(req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown subject", func(t *testing.T) {
		ta := newTestApp(t)
		token, err := ta.codec.Sign("ghost01", time.Minute)
		require.NoError(t, err)
		ta.repo.On("GetAccountByUsername", "ghost01").Return(database.User{}, sql.ErrNoRows).Once()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rr := ta.do(req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("repository failure", func(t *testing.T) {
		ta := newTestApp(t)
		token, err := ta.codec.Sign(alice.Username, time.Minute)
		require.NoError(t, err)
		ta.repo.On("GetAccountByUsername", alice.Username).Return(database.User{}, errors.New("db down")).Once()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rr := ta.do(req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Empty(t, rr.Header().Get("WWW-Authenticate"))
	})

	t.Run("valid token", func(t *testing.T) {
		ta := newTestApp(t)
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", ta.bearer(t, alice))

		rr := ta.do(req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	})
}

func Test_errorHandler(t *testing.T) {
	ta := newTestApp(t)
	h := ta.app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Equal(t, "internal server error", decodeError(t, rr).Message)
}

func Test_serveWs(t *testing.T) {
	t.Run("hands off to the live channel", func(t *testing.T) {
		ta := newTestApp(t)

		rr := ta.do(httptest.NewRequest(http.MethodGet, "/ws/conversation/3?token=abc", nil))

		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.Equal(t, []int{3}, ta.live.served)
	})

	t.Run("invalid conversation id", func(t *testing.T) {
		ta := newTestApp(t)

		rr := ta.do(httptest.NewRequest(http.MethodGet, "/ws/conversation/abc", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, ta.live.served)
	})
}

func TestCORS(t *testing.T) {
	ta := newTestApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/messages/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	rr := ta.do(req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestDMApp_Shutdown(t *testing.T) {
	ta := newTestApp(t)

	assert.NoError(t, ta.app.Shutdown(context.Background()))

	select {
	case <-ta.app.limiter.stop:
	default:
		t.Fatal("expected rate limiter to be stopped")
	}
}
