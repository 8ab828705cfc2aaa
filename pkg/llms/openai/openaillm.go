package openai

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// ErrEmptyResponse is returned when the API returns no choices.
var ErrEmptyResponse = openaiclient.ErrEmptyResponse

// LLM is a chat model served by the OpenAI Chat Completions API,
// Azure OpenAI or a compatible server.
type LLM struct {
	client   *openaiclient.Client
	provider llms.ProviderType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		provider: llms.ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(o)
	}

	var clientProvider openaiclient.ProviderType
	switch o.provider {
	case llms.ProviderOpenAI:
		clientProvider = openaiclient.ProviderOpenAI
		if o.token == "" {
			return nil, errors.New("openai: missing token")
		}
	case llms.ProviderAzure:
		clientProvider = openaiclient.ProviderAzure
		if o.baseURL == "" || o.model == "" {
			return nil, errors.New("openai: base URL and model are required for Azure")
		}
	case llms.ProviderOpenAICompatible:
		clientProvider = openaiclient.ProviderCompatible
		if o.baseURL == "" {
			return nil, errors.New("openai: base URL is required for a compatible server")
		}
	default:
		return nil, errors.Newf("openai: unsupported provider %q", o.provider)
	}

	c := openaiclient.New(clientProvider,
		o.model,
		o.token,
		o.baseURL,
		o.organization,
		values.StringsCoalesce(o.apiVersion, DefaultAPIVersion),
		o.httpClient)

	return &LLM{
		client:   c,
		provider: o.provider,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return values.StringsCoalesce(o.client.Model, openaiclient.DefaultChatModel)
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	chatMsgs := make([]*openaiclient.ChatMessage, 0, len(messages))
	for _, mc := range messages {
		msg, err := toChatMessage(mc)
		if err != nil {
			return nil, err
		}
		chatMsgs = append(chatMsgs, msg)
	}

	req := &openaiclient.ChatRequest{
		Model:               opts.Model,
		Messages:            chatMsgs,
		Temperature:         opts.Temperature,
		Stop:                opts.StopWords,
		MaxCompletionTokens: opts.MaxTokens,
		Metadata:            opts.Metadata,
	}
	if len(opts.Tools) > 0 {
		if !o.provider.Supports(llms.CapabilityFunctionCalling) {
			return nil, errors.Newf("openai: provider %s does not support function calling", o.provider)
		}
		for _, tool := range opts.Tools {
			t, err := toolFromTool(tool)
			if err != nil {
				return nil, errors.Wrap(err, "failed to convert llms tool to openai tool")
			}
			req.Tools = append(req.Tools, t)
		}
		req.ToolChoice = opts.ToolChoice
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: fmt.Sprint(c.FinishReason),
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(openaiclient.ToolTypeFunction),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func toChatMessage(mc llms.Message) (*openaiclient.ChatMessage, error) {
	msg := &openaiclient.ChatMessage{}
	switch mc.Role {
	case llms.RoleSystem:
		msg.Role = RoleSystem
	case llms.RoleAI:
		msg.Role = RoleAssistant
		for _, tc := range mc.ToolCalls() {
			if tc.FunctionCall == nil {
				continue
			}
			msg.ToolCalls = append(msg.ToolCalls, openaiclient.ToolCall{
				ID:   tc.ID,
				Type: openaiclient.ToolTypeFunction,
				Function: openaiclient.ToolFunction{
					Name:      tc.FunctionCall.Name,
					Arguments: tc.FunctionCall.Arguments,
				},
			})
		}
	case llms.RoleHuman:
		msg.Role = RoleUser
	case llms.RoleTool:
		msg.Role = RoleTool
		if len(mc.Parts) != 1 {
			return nil, errors.Errorf("expected exactly one part for role %v, got %v", mc.Role, len(mc.Parts))
		}
		p, ok := mc.Parts[0].(llms.ToolCallResponse)
		if !ok {
			return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
		}
		msg.ToolCallID = p.ToolCallID
		msg.Content = p.Content
		return msg, nil
	default:
		return nil, errors.Errorf("role %v not supported", mc.Role)
	}
	msg.Content = mc.GetContent()
	return msg, nil
}

// toolFromTool converts an llms.Tool to a Tool.
func toolFromTool(t llms.Tool) (openaiclient.Tool, error) {
	if t.Type != string(openaiclient.ToolTypeFunction) || t.Function == nil {
		return openaiclient.Tool{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	return openaiclient.Tool{
		Type: openaiclient.ToolTypeFunction,
		Function: openaiclient.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		},
	}, nil
}
