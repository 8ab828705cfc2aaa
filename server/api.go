package server

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/encoding"
	"github.com/effective-security/xlog"
)

// ChatList is the response of the chats list.
type ChatList struct {
	Chats []string `json:"chats"`
}

func (a *App) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.Definitions())
}

// handleCallTool dispatches the JSON object of the body to the tool,
// the result is returned with 200 even when the tool reports a failure.
func (a *App) handleCallTool(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	input := string(bytes.TrimSpace(body))
	if input == "" {
		input = "{}"
	}

	result := a.registry.Call(r.Context(), r.PathValue("name"), input)
	writeJSON(w, http.StatusOK, ToolResult{Result: result})
}

func (a *App) handleCatalog(w http.ResponseWriter, r *http.Request) {
	mode, err := encoding.ParseMode(r.URL.Query().Get("format"))
	if err != nil {
		writeMappedError(w, err)
		return
	}

	bs, err := encoding.Marshal(mode, a.catalog.Snapshot())
	if err != nil {
		writeMappedError(w, err)
		return
	}

	w.Header().Set("Content-Type", encoding.ContentType(mode))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bs)
}

func (a *App) handlePatronLoans(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeMappedError(w, invalidRequestError("invalid patron ID: %q", r.PathValue("id")))
		return
	}
	if _, err = a.catalog.GetPatron(id); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.catalog.LoansForPatron(id))
}

func (a *App) handleChat(w http.ResponseWriter, r *http.Request) {
	if a.assistant == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "chat is not configured")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	req := new(chatmodel.Request)
	if err = encoding.Unmarshal(encoding.ModeJSON, body, req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if !errors.As(err, &maxBytesErr) {
			err = errors.Mark(err, chatmodel.ErrFailedUnmarshalInput)
		}
		writeMappedError(w, err)
		return
	}

	res, err := a.assistant.Chat(r.Context(), req)
	if err != nil {
		logger.ContextKV(r.Context(), xlog.ERROR,
			"chat_id", req.ChatID,
			"err", err.Error(),
		)
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleListChats(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "chat history is not configured")
		return
	}
	ids, err := a.history.ListChats(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatList{Chats: ids})
}

func (a *App) handleGetChat(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "chat history is not configured")
		return
	}
	id := r.PathValue("id")
	if !chatmodel.ValidChatID(id) {
		writeMappedError(w, errors.Wrapf(chatmodel.ErrInvalidChatContext, "invalid chat ID %q", id))
		return
	}
	info, err := a.history.GetChatInfo(r.Context(), id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *App) handleResetChat(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "chat history is not configured")
		return
	}
	ctx, err := chatmodel.EnsureChatContext(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if err = a.history.Reset(ctx); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
