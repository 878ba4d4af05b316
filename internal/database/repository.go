package database

import (
	"context"
	"time"
)

type DMRepository interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, id int) (User, error)
	GetAccountByUsername(ctx context.Context, username string) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)

	GetConversation(ctx context.Context, id int) (Conversation, error)
	UpsertConversation(ctx context.Context, user1Id, user2Id int) (Conversation, error)
	ListConversations(ctx context.Context, userId, limit, offset int) ([]ConversationWithPeer, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessage(ctx context.Context, id int64) (Message, error)
	MessageInConversation(ctx context.Context, id int64, conversationId int) (bool, error)
	ListMessagesAfter(ctx context.Context, conversationId int, afterId int64, limit int) ([]Message, error)
	ListMessagesBefore(ctx context.Context, conversationId int, beforeId int64, limit int) ([]Message, error)
	GetAttachments(ctx context.Context, messageIds []int64) (map[int64][]Attachment, error)
	UpdateMessageContent(ctx context.Context, id int64, senderId int, content string, now time.Time) (Message, error)
	GetMessagesByIds(ctx context.Context, ids []int64) ([]Message, error)
	SoftDeleteMessages(ctx context.Context, ids []int64, senderId int, now time.Time) ([]DeletedMessage, error)

	CreateRefreshToken(ctx context.Context, params CreateRefreshTokenParams) (RefreshToken, error)
	GetActiveRefreshToken(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash string, next CreateRefreshTokenParams, now time.Time) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error
}
