package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-dashboard/internal/models"
	"chat-dashboard/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateConversation(ctx context.Context, userID int64, contactID int64) (models.Conversation, error) {
	args := m.Called(ctx, userID, contactID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, filter)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversationForUser(ctx context.Context, conversationID int64, userID int64) (models.ConversationWithContact, error) {
	args := m.Called(ctx, conversationID, userID)
	var conv models.ConversationWithContact
	if val := args.Get(0); val != nil {
		conv = val.(models.ConversationWithContact)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID int64, userID int64, at time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateFlags(ctx context.Context, conversationID int64, userID int64, flags models.ConversationFlags) error {
	args := m.Called(ctx, conversationID, userID, flags)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageByExternalID(ctx context.Context, externalID string) (models.Message, error) {
	args := m.Called(ctx, externalID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ApplyStatus(ctx context.Context, externalID string, next models.MessageStatus, at time.Time) (models.Message, bool, error) {
	args := m.Called(ctx, externalID, next, at)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastMessage(conversationID int64, msg models.Message) {
	m.Called(conversationID, msg)
}

func (m *BroadcasterMock) BroadcastStatus(conversationID int64, msg models.Message) {
	m.Called(conversationID, msg)
}

func (m *BroadcasterMock) BroadcastRead(conversationID int64, marked int64) {
	m.Called(conversationID, marked)
}

var (
	_ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
	_ repositories.MessageRepository      = (*MessageRepositoryMock)(nil)
)
