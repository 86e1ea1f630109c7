package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stands in for the broker publisher shared by the chat
// service, the websocket hub and the audit emitter.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

// Close succeeds unless an expectation says otherwise.
func (m *PublisherMock) Close() error {
	for _, call := range m.ExpectedCalls {
		if call.Method == "Close" {
			return m.Called().Error(0)
		}
	}
	return nil
}

// Events returns the payloads published under routingKey, in call order.
func (m *PublisherMock) Events(routingKey string) []any {
	var events []any
	for _, call := range m.Calls {
		if call.Method == "Publish" && call.Arguments.String(1) == routingKey {
			events = append(events, call.Arguments.Get(2))
		}
	}
	return events
}
