package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so each transport can map it to its own
// representation (status code, close code, in-band error event).
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Err.Error())
	}

	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns a copy of the sentinel e carrying cause. errors.Is still
// matches the sentinel through Unwrap.
func (e *Error) Wrap(cause error) error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Err: &wrapped{sentinel: e, cause: cause}}
}

type wrapped struct {
	sentinel *Error
	cause    error
}

func (w *wrapped) Error() string { return w.cause.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.sentinel, w.cause} }

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Validation(reason string) *Error {
	return New(KindValidation, reason)
}

func NotFound(reason string) *Error {
	return New(KindNotFound, reason)
}

func Upstream(reason string, err error) *Error {
	return &Error{Kind: KindUpstream, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// Reason returns the client-facing reason of the first *Error in err's chain.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}

	return ""
}

var (
	ErrMissingCredential = New(KindAuth, "missing token")
	ErrInvalidCredential = New(KindAuth, "invalid credentials")
	ErrBadLogin          = New(KindAuth, "incorrect email or password")

	ErrNotAMember = New(KindAuthorization, "not in conversation")
	ErrNotAuthor  = New(KindAuthorization, "not the author")

	ErrEmptyContent       = Validation("empty content")
	ErrEmptyIds           = Validation("empty ids")
	ErrInvalidAttachments = Validation("invalid attachments")
	ErrInvalidAttachment  = Validation("invalid attachment")
	ErrContentRequired    = Validation("content or attachments required")
	ErrInvalidReplyTo     = Validation("invalid reply_to_id")

	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrPartnerNotFound      = NotFound("partner not found")
	ErrUserNotFound         = NotFound("user not found")

	ErrSelfConversation = New(KindConflict, "cannot create conversation with yourself")
	ErrUserExists       = New(KindConflict, "user already exists")
	ErrEmailExists      = New(KindConflict, "email already exists")
)
