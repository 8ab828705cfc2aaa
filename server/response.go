package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/chat"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/encoding"
	"github.com/effective-security/librarian/store"
)

const (
	codeInvalidRequest = "invalid_request"
	codeNotFound       = "not_found"
	codeNotImplemented = "not_implemented"
	codeTooLarge       = "request_too_large"
	codeRuntime        = "runtime_error"
)

var errInvalidRequest = errors.New("invalid request")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

// ToolResult is the response of a tool call.
type ToolResult struct {
	Result string `json:"result" yaml:"result"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	writeError(w, status, code, err.Error())
}

func mapError(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, codeTooLarge
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, encoding.ErrUnsupportedMode),
		errors.Is(err, chatmodel.ErrInvalidChatContext),
		errors.Is(err, chatmodel.ErrFailedUnmarshalInput),
		errors.Is(err, chat.ErrEmptyInput):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, store.ErrChatNotFound):
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeRuntime
	}
}

func invalidRequestError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), errInvalidRequest)
}

// readBody returns the request body, limited by the middleware.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return body, nil
}
