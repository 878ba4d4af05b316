package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/auth"
	"github.com/npezzotti/go-dm/internal/chat"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/stats"
	"github.com/npezzotti/go-dm/internal/types"
)

const refreshCookieKey = "refresh_token"

const (
	usernameAccountsKey = "accounts_username_key"
	emailAccountsKey    = "accounts_email_key"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r RegisterRequest) validate() error {
	if n := utf8.RuneCountInString(r.Username); n < 6 || n > 20 {
		return apperr.Validation("username must be 6 to 20 characters")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return apperr.Validation("invalid email")
	}
	if n := utf8.RuneCountInString(r.Password); n < 6 || n > 128 {
		return apperr.Validation("password must be 6 to 128 characters")
	}
	return nil
}

func (s *DMApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *DMApp) writeError(w http.ResponseWriter, err error) {
	errResp := FromError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("%d: %v", errResp.StatusCode, err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *DMApp) setRefreshCookie(w http.ResponseWriter, secret string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(s.now()).Seconds())
	if maxAge < 1 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieKey,
		Value:    secret,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *DMApp) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieKey,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *DMApp) writeSession(w http.ResponseWriter, statusCode int, sess auth.Session) {
	s.setRefreshCookie(w, sess.RefreshSecret, sess.RefreshExpiresAt)
	s.writeJson(w, statusCode, types.TokenResponse{
		AccessToken: sess.AccessToken,
		TokenType:   "bearer",
	})
}

func (s *DMApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	pwdHash, err := s.hasher.Hash(r.Context(), req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		var dup *database.DuplicateError
		if errors.As(err, &dup) {
			switch dup.Constraint {
			case emailAccountsKey:
				err = apperr.ErrEmailExists.Wrap(err)
			case usernameAccountsKey:
				err = apperr.ErrUserExists.Wrap(err)
			default:
				err = apperr.ErrUserExists.Wrap(err)
			}
		}
		s.writeError(w, err)
		return
	}

	sess, err := s.authority.StartSession(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSession(w, http.StatusCreated, sess)
}

// decodeLogin accepts a JSON body or an OAuth2 password form, in which the
// username field carries the email address.
func decodeLogin(r *http.Request) (LoginRequest, error) {
	var req LoginRequest

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("username")
		if req.Email == "" {
			req.Email = r.PostForm.Get("email")
		}
		req.Password = r.PostForm.Get("password")
		return req, nil
	}

	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func (s *DMApp) login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		s.writeError(w, apperr.Validation("email and password are required"))
		return
	}

	user, err := s.db.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = apperr.ErrBadLogin
		}
		s.writeError(w, err)
		return
	}

	ok, err := s.hasher.Verify(r.Context(), user.PasswordHash, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeError(w, apperr.ErrBadLogin)
		return
	}

	sess, err := s.authority.StartSession(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeSession(w, http.StatusOK, sess)
}

func (s *DMApp) me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, chat.UserView(user))
}

func (s *DMApp) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieKey)
	if err != nil || cookie.Value == "" {
		s.writeError(w, apperr.ErrMissingCredential)
		return
	}

	sess, err := s.authority.Rotate(r.Context(), cookie.Value)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuth {
			s.clearRefreshCookie(w)
		}
		s.writeError(w, err)
		return
	}

	s.stats.Incr(stats.TokensRotated)
	s.writeSession(w, http.StatusOK, sess)
}

func (s *DMApp) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieKey); err == nil && cookie.Value != "" {
		if err := s.authority.Revoke(r.Context(), cookie.Value); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *DMApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
