package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const messageColumns = "id, conversation_id, sender_id, content, reply_to_id, is_edited, created_at, updated_at, deleted_at"

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.Content,
		&m.ReplyToId,
		&m.IsEdited,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.DeletedAt,
	)
	return m, err
}

func scanMessages(rows *sql.Rows, capacity int) ([]Message, error) {
	defer rows.Close()

	messages := make([]Message, 0, capacity)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

// CreateMessage inserts a message and its attachments in one transaction.
func (db *PgDMRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	var msg Message
	err := withTx(ctx, db.conn, func(tx DBTX) error {
		row := tx.QueryRowContext(ctx,
			"INSERT INTO messages (conversation_id, sender_id, content, reply_to_id, created_at, updated_at) "+
				"VALUES ($1, $2, $3, $4, $5, $5) RETURNING "+messageColumns,
			params.ConversationId,
			params.SenderId,
			params.Content,
			params.ReplyToId,
			params.CreatedAt,
		)

		var err error
		msg, err = scanMessage(row)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		msg.Attachments = make([]Attachment, 0, len(params.Attachments))
		for _, a := range params.Attachments {
			row := tx.QueryRowContext(ctx,
				"INSERT INTO attachments (message_id, file_name, mime_type, size_bytes, storage, file_path, uploaded_at) "+
					"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, uploaded_at",
				msg.Id,
				a.FileName,
				a.MimeType,
				a.SizeBytes,
				a.Storage,
				a.FilePath,
				params.CreatedAt,
			)

			att := Attachment{
				MessageId: msg.Id,
				FileName:  a.FileName,
				MimeType:  a.MimeType,
				SizeBytes: a.SizeBytes,
				Storage:   a.Storage,
				FilePath:  a.FilePath,
			}
			if err := row.Scan(&att.Id, &att.UploadedAt); err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, att)
		}

		return nil
	})
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgDMRepository) GetMessage(ctx context.Context, id int64) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1",
		id,
	)
	return scanMessage(row)
}

func (db *PgDMRepository) MessageInConversation(ctx context.Context, id int64, conversationId int) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1 AND conversation_id = $2)",
		id,
		conversationId,
	).Scan(&exists)

	return exists, err
}

// ListMessagesAfter returns up to limit live messages with id > afterId,
// oldest first.
func (db *PgDMRepository) ListMessagesAfter(ctx context.Context, conversationId int, afterId int64, limit int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE conversation_id = $1 AND deleted_at IS NULL AND id > $2 "+
			"ORDER BY id ASC LIMIT $3",
		conversationId,
		afterId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages after: %w", err)
	}

	return scanMessages(rows, limit)
}

// ListMessagesBefore returns up to limit live messages with id < beforeId,
// newest first. A zero beforeId selects the latest messages.
func (db *PgDMRepository) ListMessagesBefore(ctx context.Context, conversationId int, beforeId int64, limit int) ([]Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if beforeId > 0 {
		rows, err = db.conn.QueryContext(ctx,
			"SELECT "+messageColumns+" FROM messages "+
				"WHERE conversation_id = $1 AND deleted_at IS NULL AND id < $2 "+
				"ORDER BY id DESC LIMIT $3",
			conversationId,
			beforeId,
			limit,
		)
	} else {
		rows, err = db.conn.QueryContext(ctx,
			"SELECT "+messageColumns+" FROM messages "+
				"WHERE conversation_id = $1 AND deleted_at IS NULL "+
				"ORDER BY id DESC LIMIT $2",
			conversationId,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages before: %w", err)
	}

	return scanMessages(rows, limit)
}

func (db *PgDMRepository) GetAttachments(ctx context.Context, messageIds []int64) (map[int64][]Attachment, error) {
	attachments := make(map[int64][]Attachment, len(messageIds))
	if len(messageIds) == 0 {
		return attachments, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, message_id, file_name, mime_type, size_bytes, storage, file_path, uploaded_at "+
			"FROM attachments WHERE message_id = ANY($1) ORDER BY id ASC",
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, fmt.Errorf("get attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Attachment
		if err := rows.Scan(
			&a.Id,
			&a.MessageId,
			&a.FileName,
			&a.MimeType,
			&a.SizeBytes,
			&a.Storage,
			&a.FilePath,
			&a.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		attachments[a.MessageId] = append(attachments[a.MessageId], a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return attachments, nil
}

// UpdateMessageContent edits a live message owned by senderId. It returns
// sql.ErrNoRows when no such message exists.
func (db *PgDMRepository) UpdateMessageContent(ctx context.Context, id int64, senderId int, content string, now time.Time) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE messages SET content = $3, is_edited = TRUE, updated_at = $4 "+
			"WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL RETURNING "+messageColumns,
		id,
		senderId,
		content,
		now,
	)
	return scanMessage(row)
}

func (db *PgDMRepository) GetMessagesByIds(ctx context.Context, ids []int64) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = ANY($1) ORDER BY id ASC",
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get messages by ids: %w", err)
	}

	return scanMessages(rows, len(ids))
}

// SoftDeleteMessages marks the live messages among ids owned by senderId as
// deleted in a single statement and reports which rows changed.
func (db *PgDMRepository) SoftDeleteMessages(ctx context.Context, ids []int64, senderId int, now time.Time) ([]DeletedMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		"UPDATE messages SET deleted_at = $3, updated_at = $3 "+
			"WHERE id = ANY($1) AND sender_id = $2 AND deleted_at IS NULL "+
			"RETURNING id, conversation_id",
		pq.Array(ids),
		senderId,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("soft delete messages: %w", err)
	}
	defer rows.Close()

	deleted := make([]DeletedMessage, 0, len(ids))
	for rows.Next() {
		var d DeletedMessage
		if err := rows.Scan(&d.Id, &d.ConversationId); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		deleted = append(deleted, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return deleted, nil
}
