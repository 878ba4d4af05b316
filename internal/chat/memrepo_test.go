package chat

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	"github.com/npezzotti/go-dm/internal/database"
)

// memRepo keeps messages in memory. Methods it does not override fall
// through to the embedded mock.
type memRepo struct {
	*database.MockDMRepository

	mu       sync.Mutex
	convs    map[int]database.Conversation
	messages []database.Message
	atts     map[int64][]database.Attachment
}

func newMemRepo(convs ...database.Conversation) *memRepo {
	r := &memRepo{
		MockDMRepository: &database.MockDMRepository{},
		convs:            make(map[int]database.Conversation),
		atts:             make(map[int64][]database.Attachment),
	}
	for _, c := range convs {
		r.convs[c.Id] = c
	}
	return r
}

func (r *memRepo) seed(convId, senderId int, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		content := "msg"
		r.messages = append(r.messages, database.Message{
			Id:             int64(len(r.messages) + 1),
			ConversationId: convId,
			SenderId:       senderId,
			Content:        &content,
			CreatedAt:      time.Date(2026, 1, 1, 0, 0, len(r.messages), 0, time.UTC),
		})
	}
}

func (r *memRepo) softDelete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.messages[id-1].DeletedAt = &now
}

func (r *memRepo) GetConversation(_ context.Context, id int) (database.Conversation, error) {
	c, ok := r.convs[id]
	if !ok {
		return database.Conversation{}, sql.ErrNoRows
	}
	return c, nil
}

func (r *memRepo) ListMessagesAfter(_ context.Context, convId int, afterId int64, limit int) ([]database.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []database.Message
	for _, m := range r.messages {
		if m.ConversationId == convId && !m.Deleted() && m.Id > afterId && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) ListMessagesBefore(_ context.Context, convId int, beforeId int64, limit int) ([]database.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []database.Message
	for _, m := range slices.Backward(r.messages) {
		if m.ConversationId != convId || m.Deleted() {
			continue
		}
		if beforeId > 0 && m.Id >= beforeId {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memRepo) GetAttachments(_ context.Context, ids []int64) (map[int64][]database.Attachment, error) {
	out := make(map[int64][]database.Attachment)
	for _, id := range ids {
		if a, ok := r.atts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}
