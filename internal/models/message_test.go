package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestPreviewTruncatesLongText(t *testing.T) {
	content := strings.Repeat("a", 60)
	msg := Message{Type: TypeText, Content: &content}

	preview := msg.Preview(DefaultPreviewLength)

	assert.Equal(t, strings.Repeat("a", 50)+"…", preview)
}

func TestPreviewKeepsShortText(t *testing.T) {
	msg := Message{Type: TypeText, Content: strPtr("Hello")}
	assert.Equal(t, "Hello", msg.Preview(50))
}

func TestPreviewExactLengthIsNotTruncated(t *testing.T) {
	content := strings.Repeat("b", 50)
	msg := Message{Type: TypeText, Content: &content}
	assert.Equal(t, content, msg.Preview(50))
}

func TestPreviewCountsCharactersNotBytes(t *testing.T) {
	content := strings.Repeat("é", 55)
	msg := Message{Type: TypeText, Content: &content}
	assert.Equal(t, strings.Repeat("é", 50)+"…", msg.Preview(50))
}

func TestPreviewLabels(t *testing.T) {
	cases := map[MessageType]string{
		TypeImage:           "Image",
		TypeAudio:           "Audio",
		TypeVideo:           "Video",
		TypeDocument:        "Document",
		TypeSticker:         "Sticker",
		TypeLocation:        "Location",
		MessageType("poll"): "Message",
	}
	for typ, label := range cases {
		assert.Equal(t, label, Message{Type: typ}.Preview(50), string(typ))
	}
}

func TestPreviewTextWithoutContentFallsBackToLabel(t *testing.T) {
	assert.Equal(t, "Message", Message{Type: TypeText}.Preview(50))
	assert.Equal(t, "Message", Message{Type: TypeText, Content: strPtr("")}.Preview(50))
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to MessageStatus }{
		{StatusSent, StatusDelivered},
		{StatusSent, StatusRead},
		{StatusDelivered, StatusRead},
		{StatusSent, StatusFailed},
		{StatusDelivered, StatusFailed},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	rejected := []struct{ from, to MessageStatus }{
		{StatusDelivered, StatusSent},
		{StatusRead, StatusDelivered},
		{StatusRead, StatusFailed},
		{StatusFailed, StatusDelivered},
		{StatusSent, StatusSent},
		{StatusSent, MessageStatus("queued")},
	}
	for _, tc := range rejected {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestMessageTypeValid(t *testing.T) {
	for _, typ := range MessageTypes {
		assert.True(t, typ.Valid())
	}
	assert.False(t, MessageType("gif").Valid())
}

func TestDirectionHelpers(t *testing.T) {
	assert.True(t, Message{Direction: DirectionOutbound}.IsFromUser())
	assert.True(t, Message{Direction: DirectionInbound}.IsFromContact())
	assert.False(t, Message{Direction: DirectionInbound}.IsFromUser())
}

func TestContactDisplayName(t *testing.T) {
	assert.Equal(t, "Lisa Chen", Contact{Name: strPtr("Lisa Chen"), PhoneNumber: "+6281234567893"}.DisplayName())
	assert.Equal(t, "+6281234567895", Contact{PhoneNumber: "+6281234567895"}.DisplayName())
	assert.Equal(t, "+6281234567895", Contact{Name: strPtr(""), PhoneNumber: "+6281234567895"}.DisplayName())
}
