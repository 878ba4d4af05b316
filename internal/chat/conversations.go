// Package chat holds the conversation and message rules shared by the REST
// surface and the live channel.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/database"
)

const (
	DefaultConversationLimit = 50
	MaxConversationLimit     = 200
)

type ConversationService struct {
	db database.DMRepository
}

func NewConversationService(db database.DMRepository) *ConversationService {
	return &ConversationService{db: db}
}

// CanonicalPair orders two user ids so that the smaller comes first.
func CanonicalPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetOrCreate returns the conversation between userId and partnerId,
// creating it on first contact. The result does not depend on which of the
// two users asks.
func (s *ConversationService) GetOrCreate(ctx context.Context, userId, partnerId int) (database.Conversation, error) {
	if partnerId < 1 {
		return database.Conversation{}, apperr.Validation("invalid partner_id")
	}
	if userId == partnerId {
		return database.Conversation{}, apperr.ErrSelfConversation
	}

	if _, err := s.db.GetAccountById(ctx, partnerId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Conversation{}, apperr.ErrPartnerNotFound
		}
		return database.Conversation{}, fmt.Errorf("get partner: %w", err)
	}

	lo, hi := CanonicalPair(userId, partnerId)
	conv, err := s.db.UpsertConversation(ctx, lo, hi)
	if err != nil {
		return database.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	return conv, nil
}

func (s *ConversationService) List(ctx context.Context, userId, limit, offset int) ([]database.ConversationWithPeer, error) {
	limit = clamp(limit, 1, MaxConversationLimit)
	if offset < 0 {
		offset = 0
	}

	convs, err := s.db.ListConversations(ctx, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	return convs, nil
}

// Membership loads a conversation and checks that userId takes part in it.
func (s *ConversationService) Membership(ctx context.Context, conversationId, userId int) (database.Conversation, error) {
	return loadMembership(ctx, s.db, conversationId, userId)
}

func loadMembership(ctx context.Context, db database.DMRepository, conversationId, userId int) (database.Conversation, error) {
	conv, err := db.GetConversation(ctx, conversationId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Conversation{}, apperr.ErrConversationNotFound
		}
		return database.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	if !conv.HasParticipant(userId) {
		return database.Conversation{}, apperr.ErrNotAMember
	}

	return conv, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
