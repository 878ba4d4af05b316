package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/database"
)

// CredentialStore is the persistence SessionAuthority depends on.
type CredentialStore interface {
	GetAccountById(ctx context.Context, id int) (database.User, error)
	GetAccountByUsername(ctx context.Context, username string) (database.User, error)
	CreateRefreshToken(ctx context.Context, params database.CreateRefreshTokenParams) (database.RefreshToken, error)
	GetActiveRefreshToken(ctx context.Context, tokenHash string, now time.Time) (database.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, next database.CreateRefreshTokenParams, now time.Time) (database.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error
}

// Session is the credential pair handed to a client after login, register
// or rotation. RefreshSecret is only ever available here.
type Session struct {
	User             database.User
	AccessToken      string
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

type SessionAuthority struct {
	codec      *TokenCodec
	store      CredentialStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionAuthority(codec *TokenCodec, store CredentialStore, accessTTL, refreshTTL time.Duration) *SessionAuthority {
	return &SessionAuthority{
		codec:      codec,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (a *SessionAuthority) IssueAccessToken(username string) (string, error) {
	return a.codec.Sign(username, a.accessTTL)
}

// IssueRefreshCredential stores the hash of a fresh secret for userId and
// returns the raw secret.
func (a *SessionAuthority) IssueRefreshCredential(ctx context.Context, userId int) (string, time.Time, error) {
	raw, hash, err := GenerateRefreshSecret()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	expiresAt := a.now().Add(a.refreshTTL)
	if _, err := a.store.CreateRefreshToken(ctx, database.CreateRefreshTokenParams{
		UserId:    userId,
		TokenHash: hash,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("create refresh token: %w", err)
	}

	return raw, expiresAt, nil
}

// StartSession issues both credentials for a freshly authenticated user.
func (a *SessionAuthority) StartSession(ctx context.Context, user database.User) (Session, error) {
	access, err := a.IssueAccessToken(user.Username)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	raw, expiresAt, err := a.IssueRefreshCredential(ctx, user.Id)
	if err != nil {
		return Session{}, err
	}

	return Session{
		User:             user,
		AccessToken:      access,
		RefreshSecret:    raw,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// ResolveUser returns the owner of an active refresh secret without
// consuming it.
func (a *SessionAuthority) ResolveUser(ctx context.Context, raw string) (database.User, error) {
	if raw == "" {
		return database.User{}, apperr.ErrMissingCredential
	}

	rt, err := a.store.GetActiveRefreshToken(ctx, HashRefreshSecret(raw), a.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, apperr.ErrInvalidCredential
		}
		return database.User{}, fmt.Errorf("get refresh token: %w", err)
	}

	user, err := a.store.GetAccountById(ctx, rt.UserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, apperr.ErrInvalidCredential
		}
		return database.User{}, fmt.Errorf("get account: %w", err)
	}

	return user, nil
}

// Rotate consumes raw and issues a replacement pair. A secret can be
// rotated once; any later presentation fails with ErrInvalidCredential.
func (a *SessionAuthority) Rotate(ctx context.Context, raw string) (Session, error) {
	user, err := a.ResolveUser(ctx, raw)
	if err != nil {
		return Session{}, err
	}

	nextRaw, nextHash, err := GenerateRefreshSecret()
	if err != nil {
		return Session{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := a.now()
	next := database.CreateRefreshTokenParams{
		UserId:    user.Id,
		TokenHash: nextHash,
		ExpiresAt: now.Add(a.refreshTTL),
	}

	if _, err := a.store.RotateRefreshToken(ctx, HashRefreshSecret(raw), next, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, apperr.ErrInvalidCredential
		}
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	access, err := a.IssueAccessToken(user.Username)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	return Session{
		User:             user,
		AccessToken:      access,
		RefreshSecret:    nextRaw,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Revoke marks raw revoked. Unknown or already revoked secrets are ignored.
func (a *SessionAuthority) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	if err := a.store.RevokeRefreshToken(ctx, HashRefreshSecret(raw), a.now()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// Authenticate verifies a bearer token and loads its subject.
func (a *SessionAuthority) Authenticate(ctx context.Context, bearer string) (database.User, error) {
	if bearer == "" {
		return database.User{}, apperr.ErrMissingCredential
	}

	username, err := a.codec.Verify(bearer)
	if err != nil {
		return database.User{}, err
	}

	user, err := a.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, ErrUnknownSubject
		}
		return database.User{}, fmt.Errorf("get account: %w", err)
	}

	return user, nil
}
