package server

import (
	"bytes"
	"encoding/json"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/chat"
)

const frameSendMessage = "send_message"

var errInvalidFrame = apperr.Validation("invalid message format")

// Frame is a decoded client to server frame: either *SendMessageFrame or
// *UnknownFrame.
type Frame interface {
	frame()
}

type SendMessageFrame struct {
	Draft chat.Draft
}

// UnknownFrame carries any frame whose type is not handled. It is echoed
// back to the sender.
type UnknownFrame struct {
	Raw json.RawMessage
}

func (*SendMessageFrame) frame() {}
func (*UnknownFrame) frame()     {}

type sendMessagePayload struct {
	Content     *string         `json:"content"`
	Attachments json.RawMessage `json:"attachments"`
	ReplyToId   json.RawMessage `json:"reply_to_id"`
}

type attachmentPayload struct {
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	Mime      string `json:"mime"`
	SizeBytes *int64 `json:"size_bytes"`
	Storage   string `json:"storage"`
}

// DecodeFrame validates the shape of raw. Errors carry the reason that is
// reported back to the sender.
func DecodeFrame(raw []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errInvalidFrame
	}

	var typ string
	if t, ok := fields["type"]; ok {
		// a non-string type is just another unknown frame
		_ = json.Unmarshal(t, &typ)
	}

	if typ != frameSendMessage {
		return &UnknownFrame{Raw: json.RawMessage(raw)}, nil
	}

	var p sendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errInvalidFrame
	}

	f := &SendMessageFrame{}
	if p.Content != nil {
		f.Draft.Content = *p.Content
	}

	if !isNull(p.Attachments) {
		var items []json.RawMessage
		if err := json.Unmarshal(p.Attachments, &items); err != nil {
			return nil, apperr.ErrInvalidAttachments
		}

		for _, item := range items {
			var a attachmentPayload
			if err := json.Unmarshal(item, &a); err != nil || a.FilePath == "" {
				return nil, apperr.ErrInvalidAttachment
			}
			f.Draft.Attachments = append(f.Draft.Attachments, chat.AttachmentDraft{
				FilePath:  a.FilePath,
				FileName:  a.FileName,
				Mime:      a.Mime,
				SizeBytes: a.SizeBytes,
				Storage:   a.Storage,
			})
		}
	}

	if !isNull(p.ReplyToId) {
		var id int64
		if err := json.Unmarshal(p.ReplyToId, &id); err != nil {
			// an empty message is reported before a bad reply target
			if f.Draft.Empty() {
				return nil, apperr.ErrContentRequired
			}
			return nil, apperr.ErrInvalidReplyTo
		}
		f.Draft.ReplyToId = &id
	}

	return f, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
