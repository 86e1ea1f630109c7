package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-dashboard/internal/mocks"
	"chat-dashboard/internal/models"
	"chat-dashboard/internal/repositories"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type harness struct {
	svc           *Service
	conversations *mocks.ConversationRepositoryMock
	messages      *mocks.MessageRepositoryMock
	publisher     *mocks.PublisherMock
	broadcaster   *mocks.BroadcasterMock
}

func newHarness(t *testing.T, simulate bool) harness {
	t.Helper()
	h := harness{
		conversations: new(mocks.ConversationRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		publisher:     new(mocks.PublisherMock),
		broadcaster:   new(mocks.BroadcasterMock),
	}
	h.svc = NewService(h.conversations, h.messages, Options{
		SimulateDelivery: simulate,
		Publisher:        h.publisher,
		Broadcaster:      h.broadcaster,
	})
	h.svc.now = func() time.Time { return fixedNow }
	h.svc.newExternalID = func() string { return "msg_test" }
	t.Cleanup(func() {
		h.conversations.AssertExpectations(t)
		h.messages.AssertExpectations(t)
		h.publisher.AssertExpectations(t)
		h.broadcaster.AssertExpectations(t)
	})
	return h
}

func ownedConversation(id int64) models.ConversationWithContact {
	return models.ConversationWithContact{
		Conversation: models.Conversation{ID: id, UserID: 1, ContactID: 10},
		Contact:      models.Contact{ID: 10, UserID: 1, PhoneNumber: "+15550100"},
	}
}

func TestListConversationsFiltersByUser(t *testing.T) {
	h := newHarness(t, true)
	want := []models.ConversationSummary{{ConversationWithContact: ownedConversation(3)}}
	h.conversations.On("ListConversations", mock.Anything, models.ConversationFilter{UserID: 1}).Return(want, nil).Once()

	got, err := h.svc.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestListConversationsWrapsRepoError(t *testing.T) {
	h := newHarness(t, true)
	h.conversations.On("ListConversations", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	_, err := h.svc.ListConversations(context.Background(), 1)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOpenConversationMarksReadAndLoadsHistory(t *testing.T) {
	h := newHarness(t, true)
	conv := ownedConversation(5)
	msgs := []models.Message{{ID: 1, ConversationID: 5}, {ID: 2, ConversationID: 5}}

	h.conversations.On("MarkRead", mock.Anything, int64(5), int64(1), fixedNow).Return(int64(2), nil).Once()
	h.conversations.On("GetConversationForUser", mock.Anything, int64(5), int64(1)).Return(conv, nil).Once()
	h.messages.On("ListMessages", mock.Anything, int64(5)).Return(msgs, nil).Once()
	h.broadcaster.On("BroadcastRead", int64(5), int64(2)).Once()
	h.publisher.On("Publish", mock.Anything, "conversation.read", mock.Anything).Return(nil).Once()

	detail, err := h.svc.OpenConversation(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), detail.ID)
	assert.Len(t, detail.Messages, 2)
}

func TestOpenConversationWithoutUnreadSkipsEvents(t *testing.T) {
	h := newHarness(t, true)
	h.conversations.On("MarkRead", mock.Anything, int64(5), int64(1), fixedNow).Return(int64(0), nil).Once()
	h.conversations.On("GetConversationForUser", mock.Anything, int64(5), int64(1)).Return(ownedConversation(5), nil).Once()
	h.messages.On("ListMessages", mock.Anything, int64(5)).Return([]models.Message{}, nil).Once()

	_, err := h.svc.OpenConversation(context.Background(), 1, 5)
	require.NoError(t, err)
}

func TestOpenConversationOfAnotherUserIsNotFound(t *testing.T) {
	h := newHarness(t, true)
	h.conversations.On("MarkRead", mock.Anything, int64(9), int64(1), fixedNow).
		Return(int64(0), repositories.ErrConversationNotFound).Once()

	_, err := h.svc.OpenConversation(context.Background(), 1, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendMessageStoresOutboundAndDelivers(t *testing.T) {
	h := newHarness(t, true)
	h.conversations.On("GetConversationForUser", mock.Anything, int64(5), int64(1)).Return(ownedConversation(5), nil).Once()

	stored := models.Message{ID: 77, ConversationID: 5, Type: models.TypeText, Status: models.StatusDelivered}
	h.messages.On("AppendMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.ConversationID == 5 &&
			in.ExternalMessageID == "msg_test" &&
			in.Direction == models.DirectionOutbound &&
			in.Type == models.TypeText &&
			in.Content == "Hello" &&
			in.SentAt.Equal(fixedNow) &&
			in.DeliveredAt != nil && in.DeliveredAt.Equal(fixedNow)
	})).Return(stored, nil).Once()
	h.broadcaster.On("BroadcastMessage", int64(5), stored).Once()
	h.publisher.On("Publish", mock.Anything, "message.sent", mock.Anything).Return(nil).Once()

	msg, err := h.svc.SendMessage(context.Background(), 1, SendMessageInput{ConversationID: 5, Content: "  Hello  "})
	require.NoError(t, err)
	assert.Equal(t, stored, msg)
}

func TestSendMessageWithoutSimulatedDeliveryStaysSent(t *testing.T) {
	h := newHarness(t, false)
	h.conversations.On("GetConversationForUser", mock.Anything, int64(5), int64(1)).Return(ownedConversation(5), nil).Once()
	stored := models.Message{ID: 78, ConversationID: 5, Type: models.TypeImage, Status: models.StatusSent}
	h.messages.On("AppendMessage", mock.Anything, mock.MatchedBy(func(in models.NewMessage) bool {
		return in.DeliveredAt == nil && in.Type == models.TypeImage
	})).Return(stored, nil).Once()
	h.broadcaster.On("BroadcastMessage", int64(5), stored).Once()
	h.publisher.On("Publish", mock.Anything, "message.sent", mock.Anything).Return(errors.New("broker down")).Once()

	msg, err := h.svc.SendMessage(context.Background(), 1, SendMessageInput{ConversationID: 5, Content: "pic", Type: models.TypeImage})
	require.NoError(t, err, "publish failures must not fail the send")
	assert.Equal(t, models.StatusSent, msg.Status)
}

func TestSendMessageValidation(t *testing.T) {
	cases := []struct {
		name   string
		input  SendMessageInput
		fields []string
	}{
		{"empty content", SendMessageInput{ConversationID: 5, Content: ""}, []string{"content"}},
		{"blank content", SendMessageInput{ConversationID: 5, Content: " \n\t "}, []string{"content"}},
		{"too long", SendMessageInput{ConversationID: 5, Content: strings.Repeat("é", 4097)}, []string{"content"}},
		{"missing conversation", SendMessageInput{Content: "hi"}, []string{"conversation_id"}},
		{"negative conversation", SendMessageInput{ConversationID: -3, Content: "hi"}, []string{"conversation_id"}},
		{"unknown type", SendMessageInput{ConversationID: 5, Content: "hi", Type: "poll"}, []string{"type"}},
		{"everything", SendMessageInput{}, []string{"content", "conversation_id"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, true)

			_, err := h.svc.SendMessage(context.Background(), 1, tc.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, field := range tc.fields {
				assert.Contains(t, verr.Fields, field)
			}
			assert.Len(t, verr.Fields, len(tc.fields))
		})
	}
}

func TestSendMessageAcceptsMaxLength(t *testing.T) {
	h := newHarness(t, true)
	h.conversations.On("GetConversationForUser", mock.Anything, int64(5), int64(1)).Return(ownedConversation(5), nil).Once()
	h.messages.On("AppendMessage", mock.Anything, mock.Anything).Return(models.Message{ID: 1, ConversationID: 5}, nil).Once()
	h.broadcaster.On("BroadcastMessage", int64(5), mock.Anything).Once()
	h.publisher.On("Publish", mock.Anything, "message.sent", mock.Anything).Return(nil).Once()

	_, err := h.svc.SendMessage(context.Background(), 1, SendMessageInput{ConversationID: 5, Content: strings.Repeat("é", 4096)})
	require.NoError(t, err)
}

func TestSendMessageToForeignConversation(t *testing.T) {
	h := newHarness(t, true)
	h.conversations.On("GetConversationForUser", mock.Anything, int64(8), int64(1)).
		Return(nil, repositories.ErrConversationNotFound).Once()

	_, err := h.svc.SendMessage(context.Background(), 1, SendMessageInput{ConversationID: 8, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidationErrorMessages(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.svc.SendMessage(context.Background(), 1, SendMessageInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "The content field is required.", verr.Fields["content"])
	assert.Equal(t, "The conversation id field is required.", verr.Fields["conversation_id"])
	assert.Contains(t, err.Error(), "content: The content field is required.")
}

func TestUpdateConversation(t *testing.T) {
	h := newHarness(t, true)
	pinned := true
	flags := models.ConversationFlags{IsPinned: &pinned}
	h.conversations.On("UpdateFlags", mock.Anything, int64(5), int64(1), flags).Return(nil).Once()
	h.conversations.On("UpdateFlags", mock.Anything, int64(6), int64(1), flags).Return(repositories.ErrConversationNotFound).Once()

	require.NoError(t, h.svc.UpdateConversation(context.Background(), 1, 5, flags))
	assert.ErrorIs(t, h.svc.UpdateConversation(context.Background(), 1, 6, flags), ErrNotFound)

	var verr *ValidationError
	assert.ErrorAs(t, h.svc.UpdateConversation(context.Background(), 1, 5, models.ConversationFlags{}), &verr)
}

func TestApplyReceipt(t *testing.T) {
	at := fixedNow.Add(time.Minute)
	updated := models.Message{ID: 3, ConversationID: 5, Status: models.StatusRead}

	t.Run("applied", func(t *testing.T) {
		h := newHarness(t, true)
		h.messages.On("ApplyStatus", mock.Anything, "msg_1", models.StatusRead, at).Return(updated, true, nil).Once()
		h.broadcaster.On("BroadcastStatus", int64(5), updated).Once()
		h.publisher.On("Publish", mock.Anything, "message.status", mock.Anything).Return(nil).Once()

		msg, applied, err := h.svc.ApplyReceipt(context.Background(), Receipt{ExternalMessageID: "msg_1", Status: models.StatusRead, OccurredAt: at})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, updated, msg)
	})

	t.Run("stale receipt is ignored", func(t *testing.T) {
		h := newHarness(t, true)
		h.messages.On("ApplyStatus", mock.Anything, "msg_1", models.StatusDelivered, at).Return(updated, false, nil).Once()

		_, applied, err := h.svc.ApplyReceipt(context.Background(), Receipt{ExternalMessageID: "msg_1", Status: models.StatusDelivered, OccurredAt: at})
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("missing time defaults to now", func(t *testing.T) {
		h := newHarness(t, true)
		h.messages.On("ApplyStatus", mock.Anything, "msg_1", models.StatusFailed, fixedNow).Return(models.Message{}, false, nil).Once()

		_, _, err := h.svc.ApplyReceipt(context.Background(), Receipt{ExternalMessageID: "msg_1", Status: models.StatusFailed})
		require.NoError(t, err)
	})

	t.Run("unknown message", func(t *testing.T) {
		h := newHarness(t, true)
		h.messages.On("ApplyStatus", mock.Anything, "nope", models.StatusRead, at).Return(nil, false, repositories.ErrMessageNotFound).Once()

		_, _, err := h.svc.ApplyReceipt(context.Background(), Receipt{ExternalMessageID: "nope", Status: models.StatusRead, OccurredAt: at})
		assert.ErrorIs(t, err, ErrUnknownMessage)
	})

	t.Run("invalid", func(t *testing.T) {
		h := newHarness(t, true)
		for _, r := range []Receipt{
			{Status: models.StatusRead},
			{ExternalMessageID: "msg_1", Status: "seen"},
			{ExternalMessageID: "msg_1", Status: models.StatusSent},
		} {
			_, _, err := h.svc.ApplyReceipt(context.Background(), r)
			assert.ErrorIs(t, err, ErrInvalidReceipt)
		}
	})
}
