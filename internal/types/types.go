package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Peer struct {
	Id           int    `json:"id"`
	Username     string `json:"username"`
	EmailAddress string `json:"email"`
}

type Conversation struct {
	Id        int       `json:"id"`
	User1Id   int       `json:"user1_id"`
	User2Id   int       `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
	Peer      *Peer     `json:"peer,omitempty"`
}

type Attachment struct {
	Id        int64   `json:"id"`
	FileName  string  `json:"file_name"`
	MimeType  *string `json:"mime_type"`
	SizeBytes *int64  `json:"size_bytes"`
	Storage   string  `json:"storage"`
	FilePath  string  `json:"file_path"`
}

type Message struct {
	Id             int64        `json:"id"`
	ConversationId int          `json:"conversation_id"`
	SenderId       int          `json:"sender_id"`
	Content        *string      `json:"content"`
	ReplyToId      *int64       `json:"reply_to_id"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      string       `json:"created_at"`
	IsEdited       bool         `json:"is_edited"`
	Deleted        bool         `json:"deleted"`
}

// UploadedFile is the attachment record returned by /upload and accepted
// in send_message frames.
type UploadedFile struct {
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	Mime       string `json:"mime"`
	SizeBytes  int64  `json:"size_bytes"`
	Storage    string `json:"storage"`
	ProviderId string `json:"provider_id"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type BulkDeleteResult struct {
	Deleted   []int64 `json:"deleted"`
	Forbidden []int64 `json:"forbidden"`
	NotFound  []int64 `json:"not_found"`
}
