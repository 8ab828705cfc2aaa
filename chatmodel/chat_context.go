package chatmodel

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ChatContext is the context of a chat conversation with the librarian.
// It carries the chat ID used to key the message history,
// and the run ID unique per Assistant call.
type ChatContext interface {
	GetChatID() string
	// RunID returns the ID of the current run
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	lock     sync.RWMutex
	chatID   string
	runID    string
	metadata sync.Map
	appData  any
}

// NewChatContext returns a new ChatContext,
// if chatID is empty, a new ID is generated.
func NewChatContext(chatID string, appData any) ChatContext {
	return &chatContext{
		chatID:  values.StringsCoalesce(chatID, NewChatID()),
		runID:   NewChatID(),
		appData: appData,
	}
}

func (c *chatContext) GetChatID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.chatID
}

func (c *chatContext) setChatID(chatID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.chatID = chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.GetChatID()
	}
	return ""
}

// MustChatID returns the chat ID from the context,
// or ErrInvalidChatContext if the context has no chat.
func MustChatID(ctx context.Context) (string, error) {
	id := GetChatID(ctx)
	if id == "" {
		return "", errors.WithStack(ErrInvalidChatContext)
	}
	return id, nil
}

var chatIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-\.]{1,64}$`)

// ValidChatID returns true if the ID can be used as a chat ID.
func ValidChatID(id string) bool {
	return chatIDRegex.MatchString(id)
}

// EnsureChatContext returns a context with a ChatContext for chatID.
// An existing ChatContext is reused when it has the same chat ID,
// otherwise a new one is created. An empty chatID starts a new chat.
func EnsureChatContext(ctx context.Context, chatID string) (context.Context, error) {
	if chatID != "" && !ValidChatID(chatID) {
		return ctx, errors.Wrapf(ErrInvalidChatContext, "invalid chat ID %q", chatID)
	}
	if cc := GetChatContext(ctx); cc != nil && (chatID == "" || cc.GetChatID() == chatID) {
		return ctx, nil
	}
	return WithChatContext(ctx, NewChatContext(chatID, nil)), nil
}

// SetChatID sets the chat ID on the ChatContext of ctx.
func SetChatID(ctx context.Context, chatID string) (context.Context, error) {
	if !ValidChatID(chatID) {
		return ctx, errors.Wrapf(ErrInvalidChatContext, "invalid chat ID %q", chatID)
	}
	cc, ok := GetChatContext(ctx).(*chatContext)
	if !ok {
		return ctx, errors.WithStack(ErrInvalidChatContext)
	}
	cc.setChatID(chatID)
	return ctx, nil
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
