package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"chat-dashboard/internal/chat"
)

var messageFieldTypes = map[string]string{
	"conversation_id": "The conversation id must be an integer.",
	"content":         "The content must be a string.",
	"type":            "The type must be a string.",
}

// messageBindError attributes a decoding failure of a message body to the
// field holding the wrongly typed value. It returns nil when the body is
// unreadable as a whole.
func messageBindError(err error) *chat.ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if msg, ok := messageFieldTypes[typeErr.Field]; ok {
			return &chat.ValidationError{Fields: map[string]string{typeErr.Field: msg}}
		}
		return nil
	}
	// form values only fail to parse on the one numeric field
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return &chat.ValidationError{Fields: map[string]string{"conversation_id": messageFieldTypes["conversation_id"]}}
	}
	return nil
}
