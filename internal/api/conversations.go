package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/chat"
	"github.com/npezzotti/go-dm/internal/server"
	"github.com/npezzotti/go-dm/internal/stats"
	"github.com/npezzotti/go-dm/internal/types"
)

type CreateConversationRequest struct {
	PartnerId int `json:"partner_id"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type BulkDeleteRequest struct {
	Ids []any `json:"ids"`
}

// queryInt reads an optional integer query parameter. Negative values are
// rejected.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return v, nil
}

// queryLimit reads an optional page size. Any integer is accepted; the
// services clamp it into their own range.
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid limit")
	}
	return v, nil
}

func pathId(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (s *DMApp) createConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.conversations.GetOrCreate(r.Context(), user.Id, req.PartnerId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.ConversationView(conv))
}

func (s *DMApp) listConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, err := queryLimit(r, chat.DefaultConversationLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}

	convs, err := s.conversations.List(r.Context(), user.Id, limit, int(offset))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]types.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, chat.ConversationWithPeerView(c))
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *DMApp) listMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId, ok := pathId(r)
	if !ok {
		s.writeError(w, apperr.Validation("invalid conversation id"))
		return
	}

	req := chat.PageRequest{
		ConversationId: int(conversationId),
		CallerId:       user.Id,
	}

	limit, err := queryLimit(r, chat.DefaultPageLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req.Limit = limit

	if req.BeforeId, err = queryInt(r, "before_id", 0); err != nil {
		s.writeError(w, err)
		return
	}
	if req.AfterId, err = queryInt(r, "after_id", 0); err != nil {
		s.writeError(w, err)
		return
	}

	msgs, err := s.paginator.List(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.MessageViews(msgs))
}

func (s *DMApp) editMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := pathId(r)
	if !ok {
		s.writeError(w, apperr.ErrMessageNotFound)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.mutator.Edit(r.Context(), user.Id, messageId, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view := chat.MessageView(msg)
	s.stats.Incr(stats.MessagesEdited)
	s.cs.Broadcast(msg.ConversationId, server.MessageEditedEvent(view))

	s.writeJson(w, http.StatusOK, view)
}

func (s *DMApp) bulkDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req BulkDeleteRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	res, err := s.mutator.BulkDelete(r.Context(), user.Id, req.Ids)
	if err != nil {
		s.writeError(w, err)
		return
	}

	for conversationId, ids := range res.ByConversation {
		s.cs.Broadcast(conversationId, server.MessageDeletedEvent(ids))
	}
	for range res.Deleted {
		s.stats.Incr(stats.MessagesDeleted)
	}

	s.writeJson(w, http.StatusOK, types.BulkDeleteResult{
		Deleted:   res.Deleted,
		Forbidden: res.Forbidden,
		NotFound:  res.NotFound,
	})
}

// serveWs hands the connection to the live channel, which authenticates it
// from the Authorization header or the token query parameter.
func (s *DMApp) serveWs(w http.ResponseWriter, r *http.Request) {
	conversationId, ok := pathId(r)
	if !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.ServeConversation(w, r, int(conversationId))
}
