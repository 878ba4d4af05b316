package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/database"
)

type MessageMutator struct {
	db  database.DMRepository
	now func() time.Time
}

func NewMessageMutator(db database.DMRepository) *MessageMutator {
	return &MessageMutator{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Edit replaces the content of a live message owned by callerId.
func (m *MessageMutator) Edit(ctx context.Context, callerId int, messageId int64, content string) (database.Message, error) {
	msg, err := m.db.GetMessage(ctx, messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Message{}, apperr.ErrMessageNotFound
		}
		return database.Message{}, fmt.Errorf("get message: %w", err)
	}
	if msg.Deleted() {
		return database.Message{}, apperr.ErrMessageNotFound
	}
	if msg.SenderId != callerId {
		return database.Message{}, apperr.ErrNotAuthor
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return database.Message{}, apperr.ErrEmptyContent
	}

	updated, err := m.db.UpdateMessageContent(ctx, messageId, callerId, content, m.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// deleted between the read and the update
			return database.Message{}, apperr.ErrMessageNotFound
		}
		return database.Message{}, fmt.Errorf("update message: %w", err)
	}

	msgs := []database.Message{updated}
	if err := attachAll(ctx, m.db, msgs); err != nil {
		return database.Message{}, err
	}

	return msgs[0], nil
}

type BulkDeleteResult struct {
	Deleted   []int64
	Forbidden []int64
	NotFound  []int64
	// ByConversation groups Deleted by the conversation each message belongs to.
	ByConversation map[int][]int64
}

// BulkDelete soft-deletes the messages among rawIds that callerId sent.
// Ids owned by someone else are reported as forbidden, unknown ids as not
// found. Messages the caller already deleted are silently skipped.
func (m *MessageMutator) BulkDelete(ctx context.Context, callerId int, rawIds []any) (BulkDeleteResult, error) {
	ids := NormalizeIds(rawIds)
	if len(ids) == 0 {
		return BulkDeleteResult{}, apperr.ErrEmptyIds
	}

	msgs, err := m.db.GetMessagesByIds(ctx, ids)
	if err != nil {
		return BulkDeleteResult{}, fmt.Errorf("get messages: %w", err)
	}

	res := BulkDeleteResult{
		Deleted:        []int64{},
		Forbidden:      []int64{},
		NotFound:       []int64{},
		ByConversation: make(map[int][]int64),
	}

	found := make(map[int64]struct{}, len(msgs))
	owned := make([]int64, 0, len(msgs))
	for _, msg := range msgs {
		found[msg.Id] = struct{}{}
		switch {
		case msg.SenderId != callerId:
			res.Forbidden = append(res.Forbidden, msg.Id)
		case !msg.Deleted():
			owned = append(owned, msg.Id)
		}
	}

	for _, id := range ids {
		if _, ok := found[id]; !ok {
			res.NotFound = append(res.NotFound, id)
		}
	}

	if len(owned) == 0 {
		return res, nil
	}

	deleted, err := m.db.SoftDeleteMessages(ctx, owned, callerId, m.now())
	if err != nil {
		return BulkDeleteResult{}, fmt.Errorf("soft delete messages: %w", err)
	}

	for _, d := range deleted {
		res.Deleted = append(res.Deleted, d.Id)
		res.ByConversation[d.ConversationId] = append(res.ByConversation[d.ConversationId], d.Id)
	}
	slices.Sort(res.Deleted)
	for _, group := range res.ByConversation {
		slices.Sort(group)
	}

	return res, nil
}

// NormalizeIds converts loosely typed ids into a sorted set of positive
// integers. Values that are not numeric or not positive are dropped.
func NormalizeIds(raw []any) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, ok := toId(v)
		if !ok || id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	slices.Sort(out)
	return out
}

func toId(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return toId(f)
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
