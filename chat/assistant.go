package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/encoding"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/pkg/llmutils"
	"github.com/effective-security/librarian/pkg/metricskey"
	"github.com/effective-security/librarian/pkg/prompts"
	"github.com/effective-security/librarian/tools"
	xslices "github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "chat")

// Assistant answers questions about the library by calling the catalog tools.
type Assistant struct {
	llm      llms.Model
	registry *tools.Registry
	cfg      *Config
	prompt   *prompts.Template
	native   bool
}

// New returns an Assistant for the model and the tools registry.
// Models without function calling are instructed to reply with JSON tool calls.
func New(model llms.Model, registry *tools.Registry, opts ...Option) (*Assistant, error) {
	if model == nil {
		return nil, errors.New("chat: model is required")
	}
	if registry == nil {
		return nil, errors.New("chat: tools registry is required")
	}

	cfg := NewConfig(opts...)
	prompt, err := prompts.New(prompts.TemplateFormatJinja2, cfg.SystemPrompt)
	if err != nil {
		return nil, errors.WithMessage(err, "chat: invalid system prompt")
	}

	return &Assistant{
		llm:      model,
		registry: registry,
		cfg:      cfg,
		prompt:   prompt,
		native:   model.GetProviderType().Supports(llms.CapabilityFunctionCalling),
	}, nil
}

// Model returns the chat model.
func (a *Assistant) Model() llms.Model {
	return a.llm
}

// SystemPrompt renders the system prompt.
func (a *Assistant) SystemPrompt() (string, error) {
	input := map[string]any{}
	for k, v := range a.cfg.PromptInput {
		input[k] = v
	}
	input["today"] = a.cfg.Now().Format("2006-01-02")
	input["tools"] = strings.TrimSpace(llmutils.BackticksYAML(a.registry.Descriptions()))
	input["text_tool_calls"] = !a.native
	if !a.native {
		enc, err := encoding.PredefinedSchemaEncoder(encoding.ModeJSON, &TextToolCall{})
		if err != nil {
			return "", err
		}
		input["tool_call_format"] = strings.TrimSpace(llmutils.BackticksJSON(ToolCallFormat))
		input["tool_call_schema"] = strings.TrimSpace(enc.GetFormatInstructions())
	}

	text, err := a.prompt.Render(input)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Chat answers the request in the conversation of req.ChatID,
// a new conversation is started when the ID is empty.
func (a *Assistant) Chat(ctx context.Context, req *chatmodel.Request) (*chatmodel.Response, error) {
	ctx, err := chatmodel.EnsureChatContext(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	reply, err := a.Run(ctx, req.Message)
	if err != nil {
		return nil, err
	}
	return &chatmodel.Response{
		ChatID: chatmodel.GetChatID(ctx),
		Reply:  reply,
	}, nil
}

// Run answers the input, the ctx must have a ChatContext.
func (a *Assistant) Run(ctx context.Context, input string) (string, error) {
	modelName := a.llm.GetName()
	defer metricskey.PerfChatRun.MeasureSince(time.Now(), modelName)

	cb := a.cfg.Callback
	if cb != nil {
		cb.OnChatStart(ctx, input)
	}

	reply, err := a.run(ctx, input)
	if err != nil {
		metricskey.StatsChatRunsFailed.IncrCounter(1, modelName)
		logger.ContextKV(ctx, xlog.ERROR,
			"chat_id", chatmodel.GetChatID(ctx),
			"model", modelName,
			"err", err.Error(),
		)
		if cb != nil {
			cb.OnChatError(ctx, input, err)
		}
		return "", err
	}

	metricskey.StatsChatRunsSucceeded.IncrCounter(1, modelName)
	if cb != nil {
		cb.OnChatEnd(ctx, input, reply)
	}
	return reply, nil
}

func (a *Assistant) run(ctx context.Context, input string) (string, error) {
	chatID, err := chatmodel.MustChatID(ctx)
	if err != nil {
		return "", err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.WithStack(ErrEmptyInput)
	}

	systemPrompt, err := a.SystemPrompt()
	if err != nil {
		return "", errors.WithMessage(err, "failed to format system prompt")
	}

	history := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, systemPrompt),
	}
	for _, example := range a.cfg.Examples {
		history = append(history,
			llms.MessageFromTextParts(llms.RoleHuman, example.Prompt),
			llms.MessageFromTextParts(llms.RoleAI, example.Completion),
		)
	}
	if a.cfg.Store != nil {
		prev := a.cfg.Store.Messages(ctx)
		logger.ContextKV(ctx, xlog.DEBUG,
			"chat_id", chatID,
			"message_history", len(prev))
		history = append(history, prev...)
	}

	userMessage := llms.MessageFromTextParts(llms.RoleHuman, input)
	history = append(history, userMessage)

	callOpts := slices.Clone(a.cfg.CallOptions)
	if a.native {
		callOpts = append(callOpts, llms.WithTools(a.registry.LLMTools()))
	}

	modelName := a.llm.GetName()
	totalToolCalls := 0
	for {
		if len(history) > a.cfg.MaxMessages {
			return "", errors.Wrapf(ErrMessagesLimit, "%d messages", len(history))
		}

		resp, err := a.generate(ctx, history, callOpts)
		if err != nil {
			return "", err
		}

		choice := resp.Choices[0]
		calls := choice.ToolCalls
		textCalls := false
		if len(calls) == 0 && !a.native {
			calls = llmutils.ParseToolCalls(choice.Content)
			textCalls = len(calls) > 0
		}

		if len(calls) == 0 {
			reply := strings.TrimSpace(llmutils.RemoveAllComments(choice.Content))
			if reply == "" {
				return "", errors.WithStack(ErrEmptyResponse)
			}

			if a.cfg.Store != nil {
				err = a.cfg.Store.Add(ctx, userMessage, llms.MessageFromTextParts(llms.RoleAI, reply))
				if err != nil {
					logger.ContextKV(ctx, xlog.ERROR,
						"chat_id", chatID,
						"reason", "store",
						"err", err.Error())
				}
			}

			logger.ContextKV(ctx, xlog.DEBUG,
				"chat_id", chatID,
				"model", modelName,
				"tool_calls", totalToolCalls,
				"human", xslices.StringUpto(input, 64),
				"ai", xslices.StringUpto(reply, 64),
			)
			return reply, nil
		}

		totalToolCalls += len(calls)
		if totalToolCalls > a.cfg.MaxToolCalls {
			return "", errors.Wrapf(ErrTooManyToolCalls, "%d calls", totalToolCalls)
		}

		for i := range calls {
			if calls[i].FunctionCall == nil {
				calls[i].FunctionCall = &llms.FunctionCall{}
			}
			if calls[i].ID == "" {
				calls[i].ID = fmt.Sprintf("%s_%d", calls[i].FunctionCall.Name, i)
			}
			calls[i].Type = values.StringsCoalesce(calls[i].Type, "function")
		}

		results := a.callTools(ctx, calls)

		if textCalls {
			history = append(history,
				llms.MessageFromTextParts(llms.RoleAI, choice.Content),
				llms.MessageFromTextParts(llms.RoleHuman, formatToolResults(calls, results)),
			)
			continue
		}

		history = append(history, llms.MessageFromToolCalls(llms.RoleAI, calls...))
		for i, call := range calls {
			history = append(history, llms.MessageFromToolResponse(call.ID, call.FunctionCall.Name, results[i]))
		}
	}
}

// generate calls the model and returns a response with at least one choice.
func (a *Assistant) generate(ctx context.Context, history []llms.Message, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	modelName := a.llm.GetName()
	cb := a.cfg.Callback
	if cb != nil {
		cb.OnLLMCallStart(ctx, a.llm, history)
	}

	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(history)), modelName)

	started := time.Now()
	resp, err := a.llm.GenerateContent(ctx, history, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, modelName)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to generate content from LLM")
	}

	if cb != nil {
		cb.OnLLMCallEnd(ctx, a.llm, resp)
	}

	tokensIn, tokensOut := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), modelName)

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, errors.WithStack(ErrEmptyResponse)
	}
	return resp, nil
}

// callTools dispatches the calls in order, results never fail.
// Calls run sequentially as catalog changes depend on the order.
func (a *Assistant) callTools(ctx context.Context, calls []llms.ToolCall) []string {
	results := make([]string, len(calls))
	for i, call := range calls {
		name := call.FunctionCall.Name
		args := strings.TrimSpace(call.FunctionCall.Arguments)
		if args == "" {
			args = "{}"
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"chat_id", chatmodel.GetChatID(ctx),
			"tool_call_id", call.ID,
			"tool", name,
		)
		results[i] = a.registry.Call(ctx, name, args)
	}
	return results
}

func formatToolResults(calls []llms.ToolCall, results []string) string {
	var buf strings.Builder
	buf.WriteString("Tool results:\n")
	for i, call := range calls {
		fmt.Fprintf(&buf, "\n[%s] %s:\n%s\n", call.ID, call.FunctionCall.Name, results[i])
	}
	return buf.String()
}
