package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/x/values"
)

type memoryChat struct {
	info     ChatInfo
	messages []llms.Message
}

type inMemory struct {
	mu      sync.RWMutex
	limit   int
	storage map[string]*memoryChat
}

// NewMemoryStore returns a store that keeps up to limit messages per chat,
// DefaultHistoryLimit is used when limit is zero.
func NewMemoryStore(limit int) MessageStoreManager {
	return &inMemory{
		limit:   values.NumbersCoalesce(limit, DefaultHistoryLimit),
		storage: map[string]*memoryChat{},
	}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	chatID := chatmodel.GetChatID(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.storage[chatID]; c != nil {
		return slices.Clone(c.messages)
	}
	return nil
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	chatID, err := chatmodel.MustChatID(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.storage[chatID]
	if c == nil {
		c = &memoryChat{
			info: ChatInfo{
				ChatID:    chatID,
				Title:     titleOf(msgs),
				CreatedAt: now,
			},
		}
		m.storage[chatID] = c
	}
	c.messages = append(c.messages, msgs...)
	if over := len(c.messages) - m.limit; over > 0 {
		c.messages = slices.Clone(c.messages[over:])
	}
	c.info.UpdatedAt = now
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	chatID, err := chatmodel.MustChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, chatID)
	return nil
}

func (m *inMemory) ListChats(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]string, 0, len(m.storage))
	for id := range m.storage {
		list = append(list, id)
	}
	sort.Strings(list)
	return list, nil
}

func (m *inMemory) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	if id == "" {
		var err error
		if id, err = chatmodel.MustChatID(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.storage[id]
	if c == nil {
		return nil, errors.WithStack(ErrChatNotFound)
	}
	info := c.info
	info.Count = int64(len(c.messages))
	return &info, nil
}
