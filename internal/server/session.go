package server

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/chat"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/npezzotti/go-dm/internal/stats"
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (database.User, error)
}

type MembershipChecker interface {
	Membership(ctx context.Context, conversationId, userId int) (database.Conversation, error)
}

type MessagePoster interface {
	Post(ctx context.Context, conversationId, senderId int, d chat.Draft) (database.Message, error)
}

// session drives one live connection to a conversation from the handshake
// to disconnect.
type session struct {
	cs             *ChatServer
	conn           *websocket.Conn
	conversationId int
	credential     string
	state          SessionState
	user           database.User
	client         *Client
}

func (s *session) run(ctx context.Context) {
	s.state = StateConnecting
	defer func() { s.state = StateClosed }()

	user, err := s.cs.auth.Authenticate(ctx, s.credential)
	if err != nil {
		s.reject(err)
		return
	}
	s.user = user
	s.state = StateAuthenticated

	if _, err := s.cs.members.Membership(ctx, s.conversationId, user.Id); err != nil {
		if errors.Is(err, apperr.ErrConversationNotFound) {
			err = apperr.ErrNotAMember
		}
		s.reject(err)
		return
	}

	s.client = NewClient(user.Id, s.conn, s.cs.log)
	if !s.cs.addClient(s.client) {
		s.client.Close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.cs.removeClient(s.client)

	s.cs.registry.Join(s.conversationId, s.client)
	defer s.cs.registry.Leave(s.conversationId, s.client)
	s.state = StateActive

	s.cs.log.Printf("client %s: user %d joined conversation %d", s.client.id, user.Id, s.conversationId)
	s.client.Send(ConnectedEvent(s.conversationId, user.Id))

	go s.client.Write()
	s.client.Read(func(raw []byte) { s.handleFrame(ctx, raw) })
	s.client.terminate()

	s.cs.log.Printf("client %s: user %d left conversation %d", s.client.id, user.Id, s.conversationId)
}

// reject closes the handshake with a policy violation carrying the
// failure's reason. Failures without one are internal.
func (s *session) reject(err error) {
	code, reason := websocket.ClosePolicyViolation, apperr.Reason(err)
	switch apperr.KindOf(err) {
	case apperr.KindAuth, apperr.KindAuthorization:
	default:
		s.cs.log.Printf("live session for conversation %d: %v", s.conversationId, err)
		code, reason = websocket.CloseInternalServerErr, "internal error"
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.cs.log.Printf("live session for conversation %d: write close: %v", s.conversationId, err)
	}
	s.conn.Close()
}

func (s *session) handleFrame(ctx context.Context, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		s.client.Send(ErrorEvent(apperr.Reason(err)))
		return
	}

	switch f := frame.(type) {
	case *UnknownFrame:
		s.client.Send(EchoEvent(f.Raw))
	case *SendMessageFrame:
		msg, err := s.cs.poster.Post(ctx, s.conversationId, s.user.Id, f.Draft)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindValidation {
				s.client.Send(ErrorEvent(apperr.Reason(err)))
				return
			}
			s.cs.log.Printf("client %s: post message: %v", s.client.id, err)
			s.client.Send(ErrorEvent("internal error"))
			return
		}

		s.cs.stats.Incr(stats.MessagesSent)
		s.cs.registry.Broadcast(s.conversationId, MessageNewEvent(chat.MessageView(msg)))
	}
}
