package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/tools"
)

// TimeNowFn is the clock of Stats.
var TimeNowFn = time.Now

// RunStats are the counters of a chat.
type RunStats struct {
	ChatID string `json:"chat_id" yaml:"chat_id"`

	Duration        time.Duration `json:"duration" yaml:"duration"`
	Runs            uint32        `json:"runs" yaml:"runs"`
	RunsFailed      uint32        `json:"runs_failed" yaml:"runs_failed"`
	LLMCalls        uint32        `json:"llm_calls" yaml:"llm_calls"`
	TotalMessages   uint32        `json:"total_messages" yaml:"total_messages"`
	LLMBytesOut     uint64        `json:"llm_bytes_out" yaml:"llm_bytes_out"`
	LLMInputTokens  uint64        `json:"llm_input_tokens" yaml:"llm_input_tokens"`
	LLMOutputTokens uint64        `json:"llm_output_tokens" yaml:"llm_output_tokens"`
	ToolCalls       uint32        `json:"tool_calls" yaml:"tool_calls"`
	ToolCallsFailed uint32        `json:"tool_calls_failed" yaml:"tool_calls_failed"`
	ToolNotFound    uint32        `json:"tool_not_found" yaml:"tool_not_found"`
}

type statsEntry struct {
	RunStats
	started time.Time
}

// Stats collects RunStats per chat ID.
// Events without a ChatContext are counted under an empty chat ID.
type Stats struct {
	lock sync.Mutex
	runs map[string]*statsEntry
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{
		runs: make(map[string]*statsEntry),
	}
}

var _ Handler = (*Stats)(nil)

// Get returns the stats of the chat.
func (l *Stats) Get(chatID string) RunStats {
	l.lock.Lock()
	defer l.lock.Unlock()
	if e := l.runs[chatID]; e != nil {
		return e.RunStats
	}
	return RunStats{ChatID: chatID}
}

// Reset removes the stats of the chat.
func (l *Stats) Reset(chatID string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.runs, chatID)
}

func (l *Stats) update(ctx context.Context, fn func(e *statsEntry)) {
	chatID := chatmodel.GetChatID(ctx)

	l.lock.Lock()
	defer l.lock.Unlock()
	e := l.runs[chatID]
	if e == nil {
		e = &statsEntry{RunStats: RunStats{ChatID: chatID}}
		l.runs[chatID] = e
	}
	fn(e)
}

func (l *Stats) OnChatStart(ctx context.Context, input string) {
	l.update(ctx, func(e *statsEntry) {
		e.Runs++
		e.started = TimeNowFn()
	})
}

func (l *Stats) OnChatEnd(ctx context.Context, input string, reply string) {
	l.update(ctx, func(e *statsEntry) {
		e.Duration += TimeNowFn().Sub(e.started)
	})
}

func (l *Stats) OnChatError(ctx context.Context, input string, err error) {
	l.update(ctx, func(e *statsEntry) {
		e.RunsFailed++
		e.Duration += TimeNowFn().Sub(e.started)
	})
}

func (l *Stats) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.update(ctx, func(e *statsEntry) {
		e.LLMCalls++
		e.TotalMessages += uint32(len(payload))
		e.LLMBytesOut += llmutils.CountMessagesContentSize(payload)
	})
}

func (l *Stats) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	in, out := llmutils.CountTokens(resp)
	l.update(ctx, func(e *statsEntry) {
		e.LLMInputTokens += uint64(in)
		e.LLMOutputTokens += uint64(out)
	})
}

func (l *Stats) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.update(ctx, func(e *statsEntry) {
		e.ToolCalls++
	})
}

func (l *Stats) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
}

func (l *Stats) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.update(ctx, func(e *statsEntry) {
		e.ToolCallsFailed++
	})
}

func (l *Stats) OnToolNotFound(ctx context.Context, name string, input string) {
	l.update(ctx, func(e *statsEntry) {
		e.ToolNotFound++
	})
}
