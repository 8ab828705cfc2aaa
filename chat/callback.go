package chat

import (
	"context"

	"github.com/effective-security/librarian/pkg/llms"
)

// Callback receives events of the chat loop.
// Tool events are reported by the tools.Registry callback.
type Callback interface {
	OnChatStart(ctx context.Context, input string)
	OnChatEnd(ctx context.Context, input string, reply string)
	OnChatError(ctx context.Context, input string, err error)
	OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message)
	OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)
}
