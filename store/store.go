// Package store provides the chat history of the librarian assistant,
// keyed by the chat ID of the ChatContext.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "store")

// ErrChatNotFound is returned when the chat has no stored info.
var ErrChatNotFound = errors.New("chat not found")

// DefaultHistoryLimit is the number of messages kept per chat.
const DefaultHistoryLimit = 50

// MessageStore is the history of a chat.
// The chat is identified by the ChatContext in ctx.
type MessageStore interface {
	Messages(ctx context.Context) []llms.Message
	Add(ctx context.Context, msgs ...llms.Message) error
	Reset(ctx context.Context) error
}

// ChatInfo describes a stored chat.
type ChatInfo struct {
	ChatID    string    `json:"chat_id" yaml:"chat_id"`
	Title     string    `json:"title" yaml:"title"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Count     int64     `json:"count" yaml:"count"`
}

// MessageStoreManager is a MessageStore that can enumerate chats.
type MessageStoreManager interface {
	MessageStore
	// ListChats returns IDs of the stored chats
	ListChats(ctx context.Context) ([]string, error)
	// GetChatInfo returns info of the chat by ID, or of the chat in ctx when id is empty.
	GetChatInfo(ctx context.Context, id string) (*ChatInfo, error)
}

// titleOf returns the chat title from the first human message.
func titleOf(msgs []llms.Message) string {
	for _, m := range msgs {
		if m.Role == llms.RoleHuman {
			title := m.GetContent()
			if len(title) > 64 {
				title = title[:64]
			}
			return title
		}
	}
	return ""
}
