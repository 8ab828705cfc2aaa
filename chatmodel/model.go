package chatmodel

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidChatContext is returned when the context has no chat,
	// or the chat ID is malformed.
	ErrInvalidChatContext = errors.New("invalid chat context")
	// ErrFailedUnmarshalInput is returned when the chat request can not be decoded.
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
)

// FewShotExample is an example of a question and the expected answer,
// added to the prompt before the chat history.
type FewShotExample struct {
	Prompt     string `json:"prompt" yaml:"prompt"`
	Completion string `json:"completion" yaml:"completion"`
}

// FewShotExamples is a list of examples.
type FewShotExamples []FewShotExample

// Request is the request to chat with the librarian.
type Request struct {
	// ChatID is the ID of the conversation, empty to start a new one.
	ChatID string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	// Message is the user's question.
	Message string `json:"message" yaml:"message" validate:"required"`
}

// Response is the librarian's reply.
type Response struct {
	ChatID string `json:"chat_id" yaml:"chat_id"`
	Reply  string `json:"reply" yaml:"reply"`
}
