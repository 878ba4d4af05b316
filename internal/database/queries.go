package database

import (
	"context"
	"fmt"
	"time"
)

const accountColumns = "id, username, email, password_hash, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (db *PgDMRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING "+accountColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		now,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, asDuplicate(err)
	}

	return u, nil
}

func (db *PgDMRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)
	return scanUser(row)
}

func (db *PgDMRepository) GetAccountByUsername(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username = $1 LIMIT 1",
		username,
	)
	return scanUser(row)
}

func (db *PgDMRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)
	return scanUser(row)
}

func (db *PgDMRepository) GetConversation(ctx context.Context, id int) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, user1_id, user2_id, created_at FROM conversations WHERE id = $1",
		id,
	)

	var c Conversation
	err := row.Scan(&c.Id, &c.User1Id, &c.User2Id, &c.CreatedAt)
	return c, err
}

// UpsertConversation returns the conversation for the canonical pair,
// creating it when absent. Concurrent callers converge on the same row.
func (db *PgDMRepository) UpsertConversation(ctx context.Context, user1Id, user2Id int) (Conversation, error) {
	if user1Id >= user2Id {
		return Conversation{}, fmt.Errorf("conversation pair (%d, %d) is not canonical", user1Id, user2Id)
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO conversations (user1_id, user2_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id "+
			"RETURNING id, user1_id, user2_id, created_at",
		user1Id,
		user2Id,
		time.Now().UTC(),
	)

	var c Conversation
	err := row.Scan(&c.Id, &c.User1Id, &c.User2Id, &c.CreatedAt)
	return c, err
}

func (db *PgDMRepository) ListConversations(ctx context.Context, userId, limit, offset int) ([]ConversationWithPeer, error) {
	query := `
		SELECT c.id, c.user1_id, c.user2_id, c.created_at,
		       a.id, a.username, a.email
		FROM conversations c
		JOIN accounts a ON a.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.id DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.conn.QueryContext(ctx, query, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]ConversationWithPeer, 0, limit)
	for rows.Next() {
		var c ConversationWithPeer
		if err := rows.Scan(
			&c.Id,
			&c.User1Id,
			&c.User2Id,
			&c.CreatedAt,
			&c.Peer.Id,
			&c.Peer.Username,
			&c.Peer.EmailAddress,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		convs = append(convs, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return convs, nil
}
