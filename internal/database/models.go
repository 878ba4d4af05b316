package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversation is stored canonically with User1Id < User2Id.
type Conversation struct {
	Id        int
	User1Id   int
	User2Id   int
	CreatedAt time.Time
}

func (c Conversation) HasParticipant(userId int) bool {
	return c.User1Id == userId || c.User2Id == userId
}

type ConversationWithPeer struct {
	Conversation
	Peer User
}

type Message struct {
	Id             int64
	ConversationId int
	SenderId       int
	Content        *string
	ReplyToId      *int64
	IsEdited       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	Attachments    []Attachment
}

func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

type Attachment struct {
	Id         int64
	MessageId  int64
	FileName   string
	MimeType   *string
	SizeBytes  *int64
	Storage    string
	FilePath   string
	UploadedAt time.Time
}

type RefreshToken struct {
	Id        int64
	UserId    int
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateMessageParams struct {
	ConversationId int
	SenderId       int
	Content        *string
	ReplyToId      *int64
	Attachments    []CreateAttachmentParams
	CreatedAt      time.Time
}

type CreateAttachmentParams struct {
	FileName  string
	MimeType  *string
	SizeBytes *int64
	Storage   string
	FilePath  string
}

type CreateRefreshTokenParams struct {
	UserId    int
	TokenHash string
	ExpiresAt time.Time
}

// DeletedMessage identifies a message soft-deleted by a bulk operation.
type DeletedMessage struct {
	Id             int64
	ConversationId int
}
