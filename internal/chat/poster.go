package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/database"
)

const (
	DefaultAttachmentName    = "file"
	DefaultAttachmentStorage = "s3"
)

type AttachmentDraft struct {
	FilePath  string
	FileName  string
	Mime      string
	SizeBytes *int64
	Storage   string
}

// Draft is a decoded send_message frame.
type Draft struct {
	Content     string
	Attachments []AttachmentDraft
	ReplyToId   *int64
}

// Empty reports whether d has neither text nor attachments.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Content) == "" && len(d.Attachments) == 0
}

type MessagePoster struct {
	db  database.DMRepository
	now func() time.Time
}

func NewMessagePoster(db database.DMRepository) *MessagePoster {
	return &MessagePoster{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Post validates d and stores it as a new message from senderId. The
// message and its attachments are written in one transaction. Membership is
// the caller's responsibility.
func (p *MessagePoster) Post(ctx context.Context, conversationId, senderId int, d Draft) (database.Message, error) {
	params := database.CreateMessageParams{
		ConversationId: conversationId,
		SenderId:       senderId,
		CreatedAt:      p.now(),
	}

	if content := strings.TrimSpace(d.Content); content != "" {
		params.Content = &content
	}

	for _, a := range d.Attachments {
		att, err := attachmentParams(a)
		if err != nil {
			return database.Message{}, err
		}
		params.Attachments = append(params.Attachments, att)
	}

	if params.Content == nil && len(params.Attachments) == 0 {
		return database.Message{}, apperr.ErrContentRequired
	}

	if d.ReplyToId != nil {
		if *d.ReplyToId < 1 {
			return database.Message{}, apperr.ErrInvalidReplyTo
		}

		ok, err := p.db.MessageInConversation(ctx, *d.ReplyToId, conversationId)
		if err != nil {
			return database.Message{}, fmt.Errorf("check reply target: %w", err)
		}
		if !ok {
			return database.Message{}, apperr.ErrInvalidReplyTo
		}
		params.ReplyToId = d.ReplyToId
	}

	msg, err := p.db.CreateMessage(ctx, params)
	if err != nil {
		return database.Message{}, fmt.Errorf("create message: %w", err)
	}

	return msg, nil
}

func attachmentParams(a AttachmentDraft) (database.CreateAttachmentParams, error) {
	path := strings.TrimSpace(a.FilePath)
	if path == "" {
		return database.CreateAttachmentParams{}, apperr.ErrInvalidAttachment
	}

	att := database.CreateAttachmentParams{
		FilePath:  path,
		FileName:  a.FileName,
		SizeBytes: a.SizeBytes,
		Storage:   a.Storage,
	}
	if att.FileName == "" {
		att.FileName = DefaultAttachmentName
	}
	if att.Storage == "" {
		att.Storage = DefaultAttachmentStorage
	}
	if a.Mime != "" {
		mime := a.Mime
		att.MimeType = &mime
	}

	return att, nil
}
