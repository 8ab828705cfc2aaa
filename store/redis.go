package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store keeps the chat history in Redis lists.
// The keys namespace is organized as follows:
// - `/<prefix>/chatstore/messages/<chatID>` list of JSON encoded messages
// - `/<prefix>/chatstore/info/<chatID>` JSON encoded ChatInfo
// - `/<prefix>/chatstore/chats` set of chat IDs
// Messages and info expire after TTL of inactivity.

// RedisOptions configure the Redis store.
type RedisOptions struct {
	// Prefix is the key namespace
	Prefix string
	// HistoryLimit is the number of messages kept per chat
	HistoryLimit int
	// TTL is the expiration of an inactive chat, no expiration if zero
	TTL time.Duration
}

type redisStore struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	ttl    time.Duration
}

// NewRedisStore returns a Redis backed store.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) MessageStoreManager {
	return &redisStore{
		client: client,
		prefix: values.StringsCoalesce(opts.Prefix, "librarian"),
		limit:  int64(values.NumbersCoalesce(opts.HistoryLimit, DefaultHistoryLimit)),
		ttl:    opts.TTL,
	}
}

func (m *redisStore) messagesKey(chatID string) string {
	return path.Join("/", m.prefix, "chatstore", "messages", chatID)
}

func (m *redisStore) infoKey(chatID string) string {
	return path.Join("/", m.prefix, "chatstore", "info", chatID)
}

func (m *redisStore) chatsKey() string {
	return path.Join("/", m.prefix, "chatstore", "chats")
}

func (m *redisStore) Messages(ctx context.Context) []llms.Message {
	chatID := chatmodel.GetChatID(ctx)
	if chatID == "" {
		return nil
	}

	data, err := m.client.LRange(ctx, m.messagesKey(chatID), 0, -1).Result()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "LRange", "chat_id", chatID, "err", err.Error())
		return nil
	}

	messages := make([]llms.Message, 0, len(data))
	for _, item := range data {
		var msg llms.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal", "chat_id", chatID, "err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func (m *redisStore) Add(ctx context.Context, msgs ...llms.Message) error {
	chatID, err := chatmodel.MustChatID(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	items := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal message")
		}
		items = append(items, data)
	}

	info, err := m.getChatInfo(ctx, chatID)
	if err != nil {
		return err
	}
	isNew := info == nil
	now := time.Now().UTC()
	if isNew {
		info = &ChatInfo{
			ChatID:    chatID,
			Title:     titleOf(msgs),
			CreatedAt: now,
		}
	}
	info.UpdatedAt = now
	infoData, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "failed to marshal chat info")
	}

	key := m.messagesKey(chatID)
	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, items...)
	pipe.LTrim(ctx, key, -m.limit, -1)
	pipe.Set(ctx, m.infoKey(chatID), infoData, m.ttl)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if isNew {
		pipe.SAdd(ctx, m.chatsKey(), chatID)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store messages in Redis")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context) error {
	chatID, err := chatmodel.MustChatID(ctx)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.messagesKey(chatID), m.infoKey(chatID))
	pipe.SRem(ctx, m.chatsKey(), chatID)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to reset chat in Redis")
	}
	return nil
}

// ListChats returns IDs of the chats, expired chats are removed from the set.
func (m *redisStore) ListChats(ctx context.Context) ([]string, error) {
	ids, err := m.client.SMembers(ctx, m.chatsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "failed to list chats from Redis")
	}

	var list []string
	for _, id := range ids {
		n, err := m.client.Exists(ctx, m.infoKey(id)).Result()
		if err != nil {
			return nil, errors.Wrap(err, "failed to check chat in Redis")
		}
		if n == 0 {
			_ = m.client.SRem(ctx, m.chatsKey(), id).Err()
			continue
		}
		list = append(list, id)
	}
	return list, nil
}

func (m *redisStore) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	if id == "" {
		var err error
		if id, err = chatmodel.MustChatID(ctx); err != nil {
			return nil, err
		}
	}

	info, err := m.getChatInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.WithStack(ErrChatNotFound)
	}
	info.Count, err = m.client.LLen(ctx, m.messagesKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to count messages in Redis")
	}
	return info, nil
}

// getChatInfo returns nil if the chat does not exist.
func (m *redisStore) getChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	data, err := m.client.Get(ctx, m.infoKey(chatID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get chat info from Redis")
	}

	info := new(ChatInfo)
	if err = json.Unmarshal([]byte(data), info); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal chat info")
	}
	return info, nil
}
