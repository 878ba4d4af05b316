package chat

import (
	"time"

	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/types"
)

func MessageView(m database.Message) types.Message {
	atts := make([]types.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		atts = append(atts, types.Attachment{
			Id:        a.Id,
			FileName:  a.FileName,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
			Storage:   a.Storage,
			FilePath:  a.FilePath,
		})
	}

	return types.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Content:        m.Content,
		ReplyToId:      m.ReplyToId,
		Attachments:    atts,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsEdited:       m.IsEdited,
		Deleted:        m.Deleted(),
	}
}

func MessageViews(msgs []database.Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageView(m))
	}
	return out
}

func ConversationView(c database.Conversation) types.Conversation {
	return types.Conversation{
		Id:        c.Id,
		User1Id:   c.User1Id,
		User2Id:   c.User2Id,
		CreatedAt: c.CreatedAt,
	}
}

func ConversationWithPeerView(c database.ConversationWithPeer) types.Conversation {
	v := ConversationView(c.Conversation)
	v.Peer = &types.Peer{
		Id:           c.Peer.Id,
		Username:     c.Peer.Username,
		EmailAddress: c.Peer.EmailAddress,
	}
	return v
}

func UserView(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
