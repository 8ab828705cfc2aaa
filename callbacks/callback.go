// Package callbacks provides handlers of the chat and tool events.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/librarian/chat"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Handler receives both chat and tool events.
type Handler interface {
	chat.Callback
	tools.Callback
}

// Mode is the verbosity of the Printer.
type Mode int

const (
	// ModeDefault prints the event names and inputs
	ModeDefault Mode = iota
	// ModeVerbose also prints outputs and the model payload
	ModeVerbose
)

// Fanout sends the events to all handlers.
type Fanout struct {
	callbacks []Handler
}

// NewFanout returns a Fanout for the handlers.
func NewFanout(callbacks ...Handler) *Fanout {
	return &Fanout{callbacks: callbacks}
}

var _ Handler = (*Fanout)(nil)

func (l *Fanout) OnChatStart(ctx context.Context, input string) {
	for _, callback := range l.callbacks {
		callback.OnChatStart(ctx, input)
	}
}

func (l *Fanout) OnChatEnd(ctx context.Context, input string, reply string) {
	for _, callback := range l.callbacks {
		callback.OnChatEnd(ctx, input, reply)
	}
}

func (l *Fanout) OnChatError(ctx context.Context, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnChatError(ctx, input, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, llm, payload)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, llm, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, name string, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, name, input)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

var _ Handler = (*Noop)(nil)

func (l *Noop) OnChatStart(ctx context.Context, input string) {}
func (l *Noop) OnChatEnd(ctx context.Context, input string, reply string) {
}
func (l *Noop) OnChatError(ctx context.Context, input string, err error) {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, name string, input string) {}
func (l *Noop) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
}
func (l *Noop) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

var _ Handler = (*Printer)(nil)

func (l *Printer) OnChatStart(ctx context.Context, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat Start: %s\n", chatmodel.GetChatID(ctx))
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnChatEnd(ctx context.Context, input string, reply string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat End: %s\n", chatmodel.GetChatID(ctx))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Reply: %s\n", reply)
	}
}

func (l *Printer) OnChatError(ctx context.Context, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat Error: %s: %s\n", chatmodel.GetChatID(ctx), err.Error())
}

func (l *Printer) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s, %d messages\n", llm.GetName(), len(payload))
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, payload)
	}
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	in, out := llmutils.CountTokens(resp)
	fmt.Fprintf(l.Out, "LLM Call End: %s, %d input tokens, %d output tokens\n", llm.GetName(), in, out)
	if l.Mode == ModeVerbose && resp != nil {
		for _, choice := range resp.Choices {
			if len(choice.ToolCalls) > 0 {
				fmt.Fprintf(l.Out, "Tool Calls: %s\n", llmutils.ToJSONIndent(choice.ToolCalls))
			}
		}
	}
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool.Name())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool.Name(), err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, name string, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", name)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

var _ Handler = (*PackageLogger)(nil)

func (l *PackageLogger) OnChatStart(ctx context.Context, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chat_start",
		"input", slices.StringUpto(input, 64),
	)
}

func (l *PackageLogger) OnChatEnd(ctx context.Context, input string, reply string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chat_end",
		"reply", slices.StringUpto(reply, 64),
	)
}

func (l *PackageLogger) OnChatError(ctx context.Context, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "chat_error",
		"input", slices.StringUpto(input, 64),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"model", llm.GetName(),
		"messages", len(payload),
		"bytes", llmutils.CountMessagesContentSize(payload),
		"question", slices.StringUpto(llmutils.FindLastUserQuestion(payload), 64),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	in, out := llmutils.CountTokens(resp)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"model", llm.GetName(),
		"input_tokens", in,
		"output_tokens", out,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 64),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"input", input,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, name string, input string) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "tool_not_found",
		"tool", name,
	)
}
