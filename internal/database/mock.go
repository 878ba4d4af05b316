package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockDMRepository struct {
	mock.Mock
}

func (m *MockDMRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockDMRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDMRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDMRepository) GetAccountByUsername(ctx context.Context, username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDMRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockDMRepository) GetConversation(ctx context.Context, id int) (Conversation, error) {
	args := m.Called(id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockDMRepository) UpsertConversation(ctx context.Context, user1Id, user2Id int) (Conversation, error) {
	args := m.Called(user1Id, user2Id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockDMRepository) ListConversations(ctx context.Context, userId, limit, offset int) ([]ConversationWithPeer, error) {
	args := m.Called(userId, limit, offset)
	if convs, ok := args.Get(0).([]ConversationWithPeer); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockDMRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockDMRepository) GetMessage(ctx context.Context, id int64) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockDMRepository) MessageInConversation(ctx context.Context, id int64, conversationId int) (bool, error) {
	args := m.Called(id, conversationId)
	return args.Bool(0), args.Error(1)
}
func (m *MockDMRepository) ListMessagesAfter(ctx context.Context, conversationId int, afterId int64, limit int) ([]Message, error) {
	args := m.Called(conversationId, afterId, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockDMRepository) ListMessagesBefore(ctx context.Context, conversationId int, beforeId int64, limit int) ([]Message, error) {
	args := m.Called(conversationId, beforeId, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockDMRepository) GetAttachments(ctx context.Context, messageIds []int64) (map[int64][]Attachment, error) {
	args := m.Called(messageIds)
	if atts, ok := args.Get(0).(map[int64][]Attachment); ok {
		return atts, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockDMRepository) UpdateMessageContent(ctx context.Context, id int64, senderId int, content string, now time.Time) (Message, error) {
	args := m.Called(id, senderId, content, now)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockDMRepository) GetMessagesByIds(ctx context.Context, ids []int64) ([]Message, error) {
	args := m.Called(ids)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockDMRepository) SoftDeleteMessages(ctx context.Context, ids []int64, senderId int, now time.Time) ([]DeletedMessage, error) {
	args := m.Called(ids, senderId, now)
	if deleted, ok := args.Get(0).([]DeletedMessage); ok {
		return deleted, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockDMRepository) CreateRefreshToken(ctx context.Context, params CreateRefreshTokenParams) (RefreshToken, error) {
	args := m.Called(params)
	return args.Get(0).(RefreshToken), args.Error(1)
}
func (m *MockDMRepository) GetActiveRefreshToken(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error) {
	args := m.Called(tokenHash, now)
	return args.Get(0).(RefreshToken), args.Error(1)
}
func (m *MockDMRepository) RotateRefreshToken(ctx context.Context, oldHash string, next CreateRefreshTokenParams, now time.Time) (RefreshToken, error) {
	args := m.Called(oldHash, next, now)
	return args.Get(0).(RefreshToken), args.Error(1)
}
func (m *MockDMRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	args := m.Called(tokenHash, now)
	return args.Error(0)
}
