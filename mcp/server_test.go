package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/mcp"
	"github.com/effective-security/librarian/tools/catalogtools"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer() *mcp.Server {
	st := catalog.New(catalog.WithClock(func() time.Time {
		return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	}))
	catalog.SeedSample(st)
	return mcp.NewServer(catalogtools.NewRegistry(st), "librarian", "test")
}

func handle(t *testing.T, s *mcp.Server, msg string) map[string]any {
	t.Helper()
	resp := s.Handle(context.Background(), json.RawMessage(msg))
	require.NotNil(t, resp, msg)
	bs, err := json.Marshal(resp)
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal(bs, &res))
	return res
}

func toolText(t *testing.T, res map[string]any) string {
	t.Helper()
	require.Nil(t, res["error"])
	result := res["result"].(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	return content[0].(map[string]any)["text"].(string)
}

func TestHandle(t *testing.T) {
	s := newServer()

	res := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`)
	result := res["result"].(map[string]any)
	assert.NotEmpty(t, result["protocolVersion"])
	assert.Equal(t, "librarian", result["serverInfo"].(map[string]any)["name"])
	assert.Equal(t, "test", result["serverInfo"].(map[string]any)["version"])
	assert.NotNil(t, result["capabilities"].(map[string]any)["tools"])

	assert.Nil(t, s.Handle(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))

	res = handle(t, s, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	assert.Equal(t, "a", res["id"])
	list := res["result"].(map[string]any)["tools"].([]any)
	require.Len(t, list, 9)
	var names []string
	for _, item := range list {
		tool := item.(map[string]any)
		names = append(names, tool["name"].(string))
		assert.NotEmpty(t, tool["description"])
		assert.Equal(t, "object", tool["inputSchema"].(map[string]any)["type"])
		if tool["name"] == catalogtools.BorrowBook {
			assert.Equal(t, []any{"book_id", "patron_id"}, tool["inputSchema"].(map[string]any)["required"])
		}
	}
	assert.ElementsMatch(t, []string{
		"add_book", "add_patron", "borrow_book", "return_book", "list_books",
		"list_patrons", "get_overdue_loans", "get_book_info", "get_patron_info",
	}, names)

	res = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"borrow_book","arguments":{"book_id":1,"patron_id":2}}}`)
	assert.Equal(t, "Book borrowed successfully! Due date: 2024-03-15", toolText(t, res))

	res = handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"list_books"}}`)
	assert.Contains(t, toolText(t, res), "ID: 1 | The Great Gatsby by F. Scott Fitzgerald | ISBN: 978-0743273565 | Borrowed by Patron #2")

	res = handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"borrow_book","arguments":{"book_id":1,"patron_id":1}}}`)
	assert.Equal(t, "Failed to borrow book: book is not available", toolText(t, res))

	res = handle(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"get_book_info","arguments":{"book_id":"x"}}}`)
	assert.Equal(t, `Error executing get_book_info: argument book_id must be an integer, got "x"`, toolText(t, res))

	res = handle(t, s, `{"jsonrpc":"2.0","id":6,"method":"ping"}`)
	assert.Nil(t, res["error"])
	assert.NotNil(t, res["result"])
}

func TestHandleErrors(t *testing.T) {
	s := newServer()

	res := handle(t, s, `not json`)
	require.NotNil(t, res["error"])
	assert.Equal(t, float64(mcpgo.PARSE_ERROR), res["error"].(map[string]any)["code"])

	res = handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"books/list"}`)
	require.NotNil(t, res["error"])
	assert.Equal(t, float64(mcpgo.METHOD_NOT_FOUND), res["error"].(map[string]any)["code"])

	// only canonical tool names are advertised and callable over MCP
	for _, name := range []string{"renew_book", "get_books"} {
		res = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"`+name+`","arguments":{}}}`)
		assert.NotNil(t, res["error"], name)
		assert.Nil(t, res["result"], name)
	}
}

func TestServeHTTP(t *testing.T) {
	s := newServer()

	post := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json, text/event-stream")
		w := httptest.NewRecorder()
		s.ServeHTTP(w, r)
		return w
	}

	w := post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = post(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"get_patron_info","arguments":{"patron_id":1}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), `ID: 1 | Name: John Doe | Email: john@example.com | Phone: 123-456-7890 | Active Loans: 0`)
}

func TestServeStdio(t *testing.T) {
	s := newServer()
	in := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_book_info","arguments":{"book_id":42}}}` + "\n"

	var out bytes.Buffer
	require.NoError(t, s.ServeStdio(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, out.String(), `"protocolVersion"`)
	assert.Contains(t, out.String(), `Book with ID 42 not found`)
}
