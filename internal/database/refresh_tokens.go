package database

import (
	"context"
	"fmt"
	"time"
)

const refreshTokenColumns = "id, user_id, token_hash, expires_at, revoked_at, created_at"

func scanRefreshToken(row interface{ Scan(...any) error }) (RefreshToken, error) {
	var rt RefreshToken
	err := row.Scan(
		&rt.Id,
		&rt.UserId,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.RevokedAt,
		&rt.CreatedAt,
	)
	return rt, err
}

func insertRefreshToken(ctx context.Context, q DBTX, params CreateRefreshTokenParams, now time.Time) (RefreshToken, error) {
	row := q.QueryRowContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING "+refreshTokenColumns,
		params.UserId,
		params.TokenHash,
		params.ExpiresAt,
		now,
	)
	return scanRefreshToken(row)
}

func (db *PgDMRepository) CreateRefreshToken(ctx context.Context, params CreateRefreshTokenParams) (RefreshToken, error) {
	return insertRefreshToken(ctx, db.conn, params, time.Now().UTC())
}

// GetActiveRefreshToken returns the unrevoked, unexpired token with the
// given hash, or sql.ErrNoRows.
func (db *PgDMRepository) GetActiveRefreshToken(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+refreshTokenColumns+" FROM refresh_tokens "+
			"WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2",
		tokenHash,
		now,
	)
	return scanRefreshToken(row)
}

// RotateRefreshToken revokes the active token identified by oldHash and
// stores its successor in one transaction. The revoke is conditional, so of
// two concurrent rotations of the same token only one succeeds; the other
// gets sql.ErrNoRows.
func (db *PgDMRepository) RotateRefreshToken(ctx context.Context, oldHash string, next CreateRefreshTokenParams, now time.Time) (RefreshToken, error) {
	var rt RefreshToken
	err := withTx(ctx, db.conn, func(tx DBTX) error {
		var userId int
		err := tx.QueryRowContext(ctx,
			"UPDATE refresh_tokens SET revoked_at = $2 "+
				"WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2 "+
				"RETURNING user_id",
			oldHash,
			now,
		).Scan(&userId)
		if err != nil {
			return err
		}

		if userId != next.UserId {
			return fmt.Errorf("refresh token belongs to user %d, not %d", userId, next.UserId)
		}

		rt, err = insertRefreshToken(ctx, tx, next, now)
		if err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}

		return nil
	})
	if err != nil {
		return RefreshToken{}, err
	}

	return rt, nil
}

// RevokeRefreshToken is idempotent: unknown or already revoked hashes are
// not an error.
func (db *PgDMRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL",
		tokenHash,
		now,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}
