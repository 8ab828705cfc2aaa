package chat_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/chat"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/mocks/mockllms"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/store"
	"github.com/effective-security/librarian/tools/catalogtools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var today = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newCatalog() *catalog.Store {
	s := catalog.New(catalog.WithClock(func() time.Time { return today }))
	catalog.SeedSample(s)
	return s
}

func newModel(t *testing.T, provider llms.ProviderType) *mockllms.MockModel {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("test-model").AnyTimes()
	m.EXPECT().GetProviderType().Return(provider).AnyTimes()
	return m
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: text,
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
				},
			},
		},
	}
}

func toolResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{ToolCalls: calls},
		},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func chatContext(id string) context.Context {
	return chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext(id, nil))
}

// recorder captures the messages sent to the model.
type recorder struct {
	lock  sync.Mutex
	calls [][]llms.Message
}

func (r *recorder) respond(responses ...*llms.ContentResponse) func(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
		r.lock.Lock()
		defer r.lock.Unlock()
		idx := len(r.calls)
		r.calls = append(r.calls, append([]llms.Message(nil), msgs...))
		if idx >= len(responses) {
			return responses[len(responses)-1], nil
		}
		return responses[idx], nil
	}
}

func TestNew(t *testing.T) {
	reg := catalogtools.NewRegistry(newCatalog())
	m := newModel(t, llms.ProviderOpenAI)

	_, err := chat.New(nil, reg)
	assert.EqualError(t, err, "chat: model is required")
	_, err = chat.New(m, nil)
	assert.EqualError(t, err, "chat: tools registry is required")
	_, err = chat.New(m, reg, chat.WithSystemPrompt("{% if %}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat: invalid system prompt")

	a, err := chat.New(m, reg)
	require.NoError(t, err)
	assert.Equal(t, m, a.Model())
}

func TestSystemPrompt(t *testing.T) {
	reg := catalogtools.NewRegistry(newCatalog())
	clock := chat.WithClock(func() time.Time { return today })

	native, err := chat.New(newModel(t, llms.ProviderAnthropic), reg, clock,
		chat.WithPromptInput(map[string]any{"loan_days": 21}))
	require.NoError(t, err)
	prompt, err := native.SystemPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "Today is 2024-03-01.")
	assert.Contains(t, prompt, "The default loan period is 21 days.")
	assert.Contains(t, prompt, "name: borrow_book")
	assert.Contains(t, prompt, "name: get_patron_info")
	assert.Contains(t, prompt, "```yaml\n")
	assert.NotContains(t, prompt, "# TOOL CALLS")
	assert.NotContains(t, prompt, "Respond with JSON")

	text, err := chat.New(newModel(t, llms.ProviderOpenAICompatible), reg, clock)
	require.NoError(t, err)
	prompt, err = text.SystemPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "# TOOL CALLS")
	assert.Contains(t, prompt, "```json\n"+chat.ToolCallFormat+"\n```")
	assert.Contains(t, prompt, "Respond with JSON in the following JSON schema:")
	assert.Contains(t, prompt, "Name of the tool to call")
	assert.NotContains(t, prompt, "default loan period")

	custom, err := chat.New(newModel(t, llms.ProviderOpenAI), reg, clock,
		chat.WithSystemPrompt("Librarian on {{ today }}"))
	require.NoError(t, err)
	prompt, err = custom.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Librarian on 2024-03-01", prompt)
}

func TestRun_NativeToolCalls(t *testing.T) {
	cat := newCatalog()
	reg := catalogtools.NewRegistry(cat)
	st := store.NewMemoryStore(0)
	m := newModel(t, llms.ProviderOpenAI)

	rec := &recorder{}
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(rec.respond(
			toolResponse(
				toolCall("call_1", "borrow_book", `{"book_id": 1, "patron_id": 2}`),
				toolCall("", "get_all_books", ""),
			),
			textResponse("The Great Gatsby is now borrowed by Jane Smith."),
		)).Times(2)

	a, err := chat.New(m, reg, chat.WithStore(st))
	require.NoError(t, err)

	ctx := chatContext("native")
	reply, err := a.Run(ctx, "  Lend the Gatsby to Jane  ")
	require.NoError(t, err)
	assert.Equal(t, "The Great Gatsby is now borrowed by Jane Smith.", reply)

	book, err := cat.GetBook(1)
	require.NoError(t, err)
	assert.False(t, book.Available)

	require.Len(t, rec.calls, 2)
	first := rec.calls[0]
	require.Len(t, first, 2)
	assert.Equal(t, llms.RoleSystem, first[0].Role)
	assert.Equal(t, "Lend the Gatsby to Jane", first[1].GetContent())

	second := rec.calls[1]
	require.Len(t, second, 5)
	calls := second[2].ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "get_all_books_1", calls[1].ID)
	assert.Equal(t, llms.RoleTool, second[3].Role)
	assert.Equal(t, "Book borrowed successfully! Due date: 2024-03-15", second[3].GetContent())
	assert.Equal(t, llms.RoleTool, second[4].Role)
	assert.Contains(t, second[4].GetContent(), "ID: 1 | The Great Gatsby by F. Scott Fitzgerald | ISBN: 978-0743273565 | Borrowed by Patron #2")
	resp, ok := second[4].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "get_all_books_1", resp.ToolCallID)

	history := st.Messages(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, llms.RoleHuman, history[0].Role)
	assert.Equal(t, "Lend the Gatsby to Jane", history[0].GetContent())
	assert.Equal(t, llms.RoleAI, history[1].Role)
	assert.Equal(t, reply, history[1].GetContent())
}

func TestRun_TextToolCalls(t *testing.T) {
	cat := newCatalog()
	reg := catalogtools.NewRegistry(cat)
	m := newModel(t, llms.ProviderOpenAICompatible)

	rec := &recorder{}
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).
		DoAndReturn(rec.respond(
			textResponse("```json\n"+`{"tool": "return_book", "arguments": {"book_id": 3}}`+"\n```"),
			textResponse("<!-- checked return_book -->\nBook 3 was not borrowed.<!-- done -->"),
		)).Times(2)

	a, err := chat.New(m, reg)
	require.NoError(t, err)

	reply, err := a.Run(chatContext("text"), "Return 1984")
	require.NoError(t, err)
	assert.Equal(t, "Book 3 was not borrowed.", reply)

	require.Len(t, rec.calls, 2)
	second := rec.calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, llms.RoleAI, second[2].Role)
	assert.Empty(t, second[2].ToolCalls())
	assert.Equal(t, llms.RoleHuman, second[3].Role)
	results := second[3].GetContent()
	assert.True(t, strings.HasPrefix(results, "Tool results:"))
	assert.Contains(t, results, "[call_1] return_book:\nFailed to return book: ")
}

func TestRun_UnknownTool(t *testing.T) {
	reg := catalogtools.NewRegistry(newCatalog())
	m := newModel(t, llms.ProviderAnthropic)

	rec := &recorder{}
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(rec.respond(
			toolResponse(toolCall("t1", "delete_everything", "{}")),
			textResponse("I can not do that."),
		)).Times(2)

	a, err := chat.New(m, reg)
	require.NoError(t, err)
	reply, err := a.Run(chatContext("unknown"), "Delete the library")
	require.NoError(t, err)
	assert.Equal(t, "I can not do that.", reply)
	assert.Equal(t, "Unknown tool: delete_everything", rec.calls[1][3].GetContent())
}

func TestRun_Limits(t *testing.T) {
	loop := toolResponse(toolCall("c", "list_books", "{}"))

	t.Run("tool_calls", func(t *testing.T) {
		m := newModel(t, llms.ProviderOpenAI)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(loop, nil).Times(3)

		a, err := chat.New(m, catalogtools.NewRegistry(newCatalog()), chat.WithMaxToolCalls(2))
		require.NoError(t, err)
		_, err = a.Run(chatContext("loop"), "list")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chat.ErrTooManyToolCalls))
		assert.EqualError(t, err, "3 calls: chat: the tool calls limit is exceeded")
	})

	t.Run("messages", func(t *testing.T) {
		m := newModel(t, llms.ProviderOpenAI)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(loop, nil).Times(1)

		a, err := chat.New(m, catalogtools.NewRegistry(newCatalog()), chat.WithMaxMessages(3))
		require.NoError(t, err)
		_, err = a.Run(chatContext("msgs"), "list")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chat.ErrMessagesLimit))
	})
}

func TestRun_Errors(t *testing.T) {
	reg := catalogtools.NewRegistry(newCatalog())

	t.Run("no_chat", func(t *testing.T) {
		a, err := chat.New(newModel(t, llms.ProviderOpenAI), reg)
		require.NoError(t, err)
		_, err = a.Run(context.Background(), "hello")
		assert.True(t, errors.Is(err, chatmodel.ErrInvalidChatContext))
	})

	t.Run("empty_input", func(t *testing.T) {
		a, err := chat.New(newModel(t, llms.ProviderOpenAI), reg)
		require.NoError(t, err)
		_, err = a.Run(chatContext("empty"), " \n")
		assert.True(t, errors.Is(err, chat.ErrEmptyInput))
	})

	t.Run("llm", func(t *testing.T) {
		m := newModel(t, llms.ProviderOpenAI)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("rate limited"))
		a, err := chat.New(m, reg)
		require.NoError(t, err)
		_, err = a.Run(chatContext("llm"), "hello")
		assert.EqualError(t, err, "failed to generate content from LLM: rate limited")
	})

	t.Run("no_choices", func(t *testing.T) {
		m := newModel(t, llms.ProviderOpenAI)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{}, nil)
		a, err := chat.New(m, reg)
		require.NoError(t, err)
		_, err = a.Run(chatContext("none"), "hello")
		assert.True(t, errors.Is(err, chat.ErrEmptyResponse))
	})

	t.Run("blank_reply", func(t *testing.T) {
		m := newModel(t, llms.ProviderOpenAI)
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textResponse("  "), nil)
		a, err := chat.New(m, reg)
		require.NoError(t, err)
		_, err = a.Run(chatContext("blank"), "hello")
		assert.True(t, errors.Is(err, chat.ErrEmptyResponse))
	})
}

func TestChat_History(t *testing.T) {
	reg := catalogtools.NewRegistry(newCatalog())
	st := store.NewMemoryStore(0)
	m := newModel(t, llms.ProviderOpenAI)

	rec := &recorder{}
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(rec.respond(
			textResponse("Hello, how can I help?"),
			textResponse("We have 3 books."),
		)).Times(2)

	examples := chatmodel.FewShotExamples{
		{Prompt: "Hi", Completion: "Hello!"},
	}
	a, err := chat.New(m, reg, chat.WithStore(st), chat.WithExamples(examples))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = a.Chat(ctx, &chatmodel.Request{ChatID: "bad id", Message: "Hi"})
	assert.True(t, errors.Is(err, chatmodel.ErrInvalidChatContext))

	resp, err := a.Chat(ctx, &chatmodel.Request{Message: "Hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ChatID)
	assert.Equal(t, "Hello, how can I help?", resp.Reply)

	resp2, err := a.Chat(ctx, &chatmodel.Request{ChatID: resp.ChatID, Message: "How many books?"})
	require.NoError(t, err)
	assert.Equal(t, resp.ChatID, resp2.ChatID)
	assert.Equal(t, "We have 3 books.", resp2.Reply)

	second := rec.calls[1]
	// system, example pair, stored pair, question
	require.Len(t, second, 6)
	assert.Equal(t, "Hi", second[1].GetContent())
	assert.Equal(t, "Hello!", second[2].GetContent())
	assert.Equal(t, "Hello", second[3].GetContent())
	assert.Equal(t, "Hello, how can I help?", second[4].GetContent())
	assert.Equal(t, "How many books?", second[5].GetContent())
}

type fakeCallback struct {
	events []string
}

func (f *fakeCallback) OnChatStart(_ context.Context, input string) {
	f.events = append(f.events, "start:"+input)
}

func (f *fakeCallback) OnChatEnd(_ context.Context, _ string, reply string) {
	f.events = append(f.events, "end:"+reply)
}

func (f *fakeCallback) OnChatError(_ context.Context, _ string, err error) {
	f.events = append(f.events, "error:"+err.Error())
}

func (f *fakeCallback) OnLLMCallStart(_ context.Context, llm llms.Model, payload []llms.Message) {
	f.events = append(f.events, "llm_start:"+llm.GetName())
}

func (f *fakeCallback) OnLLMCallEnd(_ context.Context, llm llms.Model, _ *llms.ContentResponse) {
	f.events = append(f.events, "llm_end:"+llm.GetName())
}

func TestRun_Callback(t *testing.T) {
	reg := catalogtools.NewRegistry(newCatalog())
	m := newModel(t, llms.ProviderOpenAI)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("Hi!"), nil)

	cb := &fakeCallback{}
	a, err := chat.New(m, reg, chat.WithCallback(cb))
	require.NoError(t, err)

	_, err = a.Run(chatContext("cb"), "Hello")
	require.NoError(t, err)
	_, err = a.Run(chatContext("cb"), "")
	require.Error(t, err)

	assert.Equal(t, []string{
		"start:Hello",
		"llm_start:test-model",
		"llm_end:test-model",
		"end:Hi!",
		"start:",
		"error:chat: empty input",
	}, cb.events)
}
