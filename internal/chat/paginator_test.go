package chat

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/npezzotti/go-dm/internal/apperr"
	"github.com/npezzotti/go-dm/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(msgs []database.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Id
	}
	return out
}

func TestMessagePaginator_List(t *testing.T) {
	conv := database.Conversation{Id: 1, User1Id: 1, User2Id: 2}
	repo := newMemRepo(conv)
	repo.seed(conv.Id, 1, 10)
	repo.atts[9] = []database.Attachment{{Id: 1, MessageId: 9, FileName: "a.png", FilePath: "users/1/a.png", Storage: "s3"}}

	p := NewMessagePaginator(repo)

	tcases := []struct {
		name     string
		req      PageRequest
		expected []int64
	}{
		{
			name:     "before cursor",
			req:      PageRequest{Limit: 3, BeforeId: 8},
			expected: []int64{5, 6, 7},
		},
		{
			name:     "after cursor",
			req:      PageRequest{Limit: 3, AfterId: 8},
			expected: []int64{9, 10},
		},
		{
			name:     "latest",
			req:      PageRequest{Limit: 3},
			expected: []int64{8, 9, 10},
		},
		{
			name:     "after wins over before",
			req:      PageRequest{Limit: 3, BeforeId: 5, AfterId: 6},
			expected: []int64{7, 8, 9},
		},
		{
			name:     "limit clamped up to one",
			req:      PageRequest{Limit: 0},
			expected: []int64{10},
		},
		{
			name:     "limit clamped down to max",
			req:      PageRequest{Limit: 1000},
			expected: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		{
			name:     "nothing after the last message",
			req:      PageRequest{Limit: 3, AfterId: 10},
			expected: []int64{},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.ConversationId = conv.Id
			tc.req.CallerId = 2

			msgs, err := p.List(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids(msgs))
		})
	}

	t.Run("attachments are loaded", func(t *testing.T) {
		msgs, err := p.List(context.Background(), PageRequest{ConversationId: conv.Id, CallerId: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Len(t, msgs[0].Attachments, 1)
		assert.Empty(t, msgs[1].Attachments)
	})
}

func TestMessagePaginator_ExcludesDeleted(t *testing.T) {
	conv := database.Conversation{Id: 1, User1Id: 1, User2Id: 2}
	repo := newMemRepo(conv)
	repo.seed(conv.Id, 1, 5)
	repo.softDelete(4)

	msgs, err := NewMessagePaginator(repo).List(context.Background(), PageRequest{ConversationId: 1, CallerId: 1, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 5}, ids(msgs))
}

func TestMessagePaginator_Membership(t *testing.T) {
	conv := database.Conversation{Id: 1, User1Id: 1, User2Id: 2}
	repo := newMemRepo(conv)
	p := NewMessagePaginator(repo)

	_, err := p.List(context.Background(), PageRequest{ConversationId: 1, CallerId: 3, Limit: 10})
	assert.ErrorIs(t, err, apperr.ErrNotAMember)

	_, err = p.List(context.Background(), PageRequest{ConversationId: 99, CallerId: 1, Limit: 10})
	assert.ErrorIs(t, err, apperr.ErrNotAMember)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestMessagePaginator_RepositoryError(t *testing.T) {
	mockRepo := &database.MockDMRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetConversation", 1).Return(database.Conversation{Id: 1, User1Id: 1, User2Id: 2}, nil).Once()
	mockRepo.On("ListMessagesBefore", 1, int64(0), DefaultPageLimit).Return(nil, errors.New("db down")).Once()

	_, err := NewMessagePaginator(mockRepo).List(context.Background(), PageRequest{ConversationId: 1, CallerId: 1, Limit: DefaultPageLimit})
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}
