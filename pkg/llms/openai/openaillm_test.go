package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/pkg/llms/openai"
	"github.com/effective-security/librarian/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionWithTool = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "logprobs": null,
    "message": {
      "role": "assistant",
      "content": null,
      "refusal": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "borrow_book", "arguments": "{\"book_id\":1,\"patron_id\":2}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 120, "completion_tokens": 20, "total_tokens": 140}
}`

const completionText = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "logprobs": null,
    "message": {"role": "assistant", "content": "The book is due 2024-03-15.", "refusal": null}
  }],
  "usage": {"prompt_tokens": 150, "completion_tokens": 10, "total_tokens": 160}
}`

type captured struct {
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.header = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &c.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestNew_Validation(t *testing.T) {
	_, err := openai.New()
	assert.EqualError(t, err, "openai: missing token")
	_, err = openai.New(openai.WithProvider(llms.ProviderAzure), openai.WithToken("k"))
	assert.EqualError(t, err, "openai: base URL and model are required for Azure")
	_, err = openai.New(openai.WithProvider(llms.ProviderOpenAICompatible))
	assert.EqualError(t, err, "openai: base URL is required for a compatible server")
	_, err = openai.New(openai.WithProvider(llms.ProviderAnthropic))
	assert.EqualError(t, err, `openai: unsupported provider "ANTHROPIC"`)

	llm, err := openai.New(openai.WithToken("k"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", llm.GetName())
	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())
}

func TestGenerateContent_ToolCall(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, completionWithTool)

	llm, err := openai.New(
		openai.WithToken("sk-test"),
		openai.WithBaseURL(srv.URL+"/v1/"),
		openai.WithModel("gpt-4o-mini"),
		openai.WithOrganization("org-1"),
	)
	require.NoError(t, err)

	params, err := schema.FromAny(map[string]any{
		"type":       "object",
		"properties": map[string]any{"book_id": map[string]any{"type": "integer"}},
		"required":   []string{"book_id"},
	})
	require.NoError(t, err)

	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are a librarian."),
		llms.MessageFromTextParts(llms.RoleHuman, "Lend book 1 to patron 2"),
	}
	resp, err := llm.GenerateContent(context.Background(), msgs,
		llms.WithTools([]llms.Tool{{
			Type:     "function",
			Function: &llms.FunctionDefinition{Name: "borrow_book", Description: "Borrow a book", Parameters: params},
		}}),
		llms.WithToolChoice("auto"),
		llms.WithMaxTokens(256),
	)
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, "Bearer sk-test", c.header.Get("Authorization"))
	assert.Equal(t, "org-1", c.header.Get("OpenAI-Organization"))
	assert.Equal(t, "gpt-4o-mini", c.body["model"])
	assert.Equal(t, "auto", c.body["tool_choice"])
	assert.EqualValues(t, 256, c.body["max_completion_tokens"])

	sent := c.body["messages"].([]any)
	require.Len(t, sent, 2)
	assert.Equal(t, "system", sent[0].(map[string]any)["role"])
	assert.Equal(t, "user", sent[1].(map[string]any)["role"])

	tools := c.body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "borrow_book", fn["name"])

	require.Len(t, resp.Choices, 1)
	choice := resp.Choices[0]
	assert.Equal(t, "tool_calls", choice.StopReason)
	require.Len(t, choice.ToolCalls, 1)
	assert.Equal(t, "call_1", choice.ToolCalls[0].ID)
	assert.Equal(t, "borrow_book", choice.ToolCalls[0].FunctionCall.Name)
	assert.JSONEq(t, `{"book_id":1,"patron_id":2}`, choice.ToolCalls[0].FunctionCall.Arguments)
	assert.EqualValues(t, 120, choice.GenerationInfo["InputTokens"])
	assert.EqualValues(t, 20, choice.GenerationInfo["OutputTokens"])
}

func TestGenerateContent_ToolHistory(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, completionText)

	llm, err := openai.New(openai.WithToken("sk-test"), openai.WithBaseURL(srv.URL))
	require.NoError(t, err)

	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "Lend book 1 to patron 2"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "borrow_book", Arguments: `{"book_id":1,"patron_id":2}`},
		}),
		llms.MessageFromToolResponse("call_1", "borrow_book", "Book borrowed successfully! Due date: 2024-03-15"),
	}
	resp, err := llm.GenerateContent(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "The book is due 2024-03-15.", resp.Choices[0].Content)
	assert.Empty(t, resp.Choices[0].ToolCalls)

	sent := c.body["messages"].([]any)
	require.Len(t, sent, 3)
	ai := sent[1].(map[string]any)
	assert.Equal(t, "assistant", ai["role"])
	require.Len(t, ai["tool_calls"], 1)
	tool := sent[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	assert.Equal(t, "Book borrowed successfully! Due date: 2024-03-15", tool["content"])

	_, hasTools := c.body["tools"]
	assert.False(t, hasTools)
}

func TestGenerateContent_Azure(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, completionText)

	llm, err := openai.New(
		openai.WithProvider(llms.ProviderAzure),
		openai.WithToken("azure-key"),
		openai.WithBaseURL(srv.URL),
		openai.WithModel("librarian-deploy"),
		openai.WithAPIVersion("2024-06-01"),
		openai.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	assert.Equal(t, llms.ProviderAzure, llm.GetProviderType())

	_, err = llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "/openai/deployments/librarian-deploy/chat/completions", c.path)
	assert.Equal(t, "api-version=2024-06-01", c.query)
	assert.Equal(t, "azure-key", c.header.Get("api-key"))
	assert.Empty(t, c.header.Get("Authorization"))
}

func TestGenerateContent_Compatible(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, completionText)

	llm, err := openai.New(
		openai.WithProvider(llms.ProviderOpenAICompatible),
		openai.WithBaseURL(srv.URL),
		openai.WithModel("llama3"),
	)
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")},
		llms.WithTools([]llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "list_books"}}}),
	)
	assert.EqualError(t, err, "openai: provider OPENAI_COMPATIBLE does not support function calling")

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Choices)
}

func TestGenerateContent_Errors(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	llm, err := openai.New(openai.WithToken("bad"), openai.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	assert.EqualError(t, err, "API returned unexpected status code: 401: Incorrect API key provided")

	srv, _ = newServer(t, http.StatusOK, `{"id":"x","choices":[]}`)
	llm, err = openai.New(openai.WithToken("k"), openai.WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	assert.ErrorIs(t, err, openai.ErrEmptyResponse)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{{Role: "bogus"}})
	assert.EqualError(t, err, "role bogus not supported")

	_, err = llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleTool, "not a response"),
	})
	assert.EqualError(t, err, "expected part of type ToolCallResponse for role tool, got llms.TextContent")
}
