package chat

import "github.com/cockroachdb/errors"

var (
	// ErrEmptyInput is returned when the user message is empty.
	ErrEmptyInput = errors.New("chat: empty input")
	// ErrEmptyResponse is returned when the model returns no content and no tool calls.
	ErrEmptyResponse = errors.New("chat: empty response from the model")
	// ErrTooManyToolCalls is returned when the model keeps calling tools over the limit.
	ErrTooManyToolCalls = errors.New("chat: the tool calls limit is exceeded")
	// ErrMessagesLimit is returned when the conversation exceeds the messages limit.
	ErrMessagesLimit = errors.New("chat: the messages count exceeded limit")
)
