package chat

import (
	"maps"
	"time"

	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/store"
)

const (
	// DefaultMaxToolCalls is the number of tool calls allowed per run.
	DefaultMaxToolCalls = 8
	// DefaultMaxMessages is the number of messages allowed in a model request.
	DefaultMaxMessages = 50
)

// Option is a function that modifies the Assistant Config.
type Option func(*Config)

// Config of the Assistant.
type Config struct {
	// Store keeps the chat history, no history if nil.
	Store store.MessageStore
	// Callback receives the chat events.
	Callback Callback
	// MaxToolCalls is the number of tool calls allowed per run.
	MaxToolCalls int
	// MaxMessages is the number of messages allowed in a model request.
	MaxMessages int
	// SystemPrompt is a Jinja2 template of the system prompt.
	SystemPrompt string
	// PromptInput is passed to the system prompt template.
	PromptInput map[string]any
	// Examples are added before the chat history.
	Examples chatmodel.FewShotExamples
	// CallOptions are passed to the model.
	CallOptions []llms.CallOption
	// Now returns the current time for the prompt.
	Now func() time.Time
}

// NewConfig returns a Config with defaults.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxToolCalls: DefaultMaxToolCalls,
		MaxMessages:  DefaultMaxMessages,
		SystemPrompt: DefaultSystemPrompt,
		PromptInput:  map[string]any{},
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithStore sets the chat history store.
func WithStore(st store.MessageStore) Option {
	return func(o *Config) {
		o.Store = st
	}
}

// WithCallback sets the handler of chat events.
func WithCallback(cb Callback) Option {
	return func(o *Config) {
		o.Callback = cb
	}
}

// WithMaxToolCalls sets the number of tool calls allowed per run.
// Non-positive values keep the default.
func WithMaxToolCalls(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxToolCalls = n
		}
	}
}

// WithMaxMessages sets the number of messages allowed in a model request.
// Non-positive values keep the default.
func WithMaxMessages(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxMessages = n
		}
	}
}

// WithSystemPrompt sets the Jinja2 template of the system prompt.
func WithSystemPrompt(tmpl string) Option {
	return func(o *Config) {
		if tmpl != "" {
			o.SystemPrompt = tmpl
		}
	}
}

// WithPromptInput adds values for the system prompt template.
func WithPromptInput(input map[string]any) Option {
	return func(o *Config) {
		maps.Copy(o.PromptInput, input)
	}
}

// WithExamples sets the few-shot examples.
func WithExamples(examples chatmodel.FewShotExamples) Option {
	return func(o *Config) {
		o.Examples = examples
	}
}

// WithCallOptions adds options for the model calls.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(o *Config) {
		o.CallOptions = append(o.CallOptions, opts...)
	}
}

// WithClock sets the time source of the prompt.
func WithClock(now func() time.Time) Option {
	return func(o *Config) {
		o.Now = now
	}
}
