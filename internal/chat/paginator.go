package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/database"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

type PageRequest struct {
	ConversationId int
	CallerId       int
	Limit          int
	// BeforeId and AfterId are exclusive cursors; zero means unset.
	BeforeId int64
	AfterId  int64
}

type MessagePaginator struct {
	db database.DMRepository
}

func NewMessagePaginator(db database.DMRepository) *MessagePaginator {
	return &MessagePaginator{db: db}
}

// List returns one window of live messages in ascending id order, each with
// its attachments. AfterId wins when both cursors are set.
func (p *MessagePaginator) List(ctx context.Context, req PageRequest) ([]database.Message, error) {
	if _, err := loadMembership(ctx, p.db, req.ConversationId, req.CallerId); err != nil {
		if errors.Is(err, apperr.ErrConversationNotFound) {
			return nil, apperr.ErrNotAMember
		}
		return nil, err
	}

	limit := clamp(req.Limit, 1, MaxPageLimit)

	var (
		msgs []database.Message
		err  error
	)
	switch {
	case req.AfterId > 0:
		msgs, err = p.db.ListMessagesAfter(ctx, req.ConversationId, req.AfterId, limit)
	default:
		msgs, err = p.db.ListMessagesBefore(ctx, req.ConversationId, req.BeforeId, limit)
		slices.Reverse(msgs)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if err := attachAll(ctx, p.db, msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

func attachAll(ctx context.Context, db database.DMRepository, msgs []database.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.Id
	}

	atts, err := db.GetAttachments(ctx, ids)
	if err != nil {
		return fmt.Errorf("get attachments: %w", err)
	}

	for i := range msgs {
		msgs[i].Attachments = atts[msgs[i].Id]
	}

	return nil
}
