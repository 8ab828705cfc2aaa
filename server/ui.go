package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/effective-security/librarian/tools/catalogtools"
	"github.com/effective-security/xlog"
)

// Form validation messages
const (
	MsgFillAllFields   = "Please fill in all fields"
	MsgInvalidIDs      = "Please enter valid numeric IDs"
	MsgInvalidBookID   = "Please enter a valid numeric book ID"
	MsgInvalidLoanDays = "Please enter a valid number of days"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageTemplate = template.Must(
	template.New("index.html").
		Funcs(sprig.FuncMap()).
		ParseFS(templatesFS, "templates/index.html"),
)

// page is the data of the UI page.
type page struct {
	// Form is the form the Message belongs to
	Form     string
	Message  string
	LoanDays int
	Books    string
	Patrons  string
	Overdue  string
	Stats    pageStats
}

type pageStats struct {
	Books   int
	Patrons int
	Active  int
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, r, "", "")
}

func (a *App) handleAddBookForm(w http.ResponseWriter, r *http.Request) {
	title, author, isbn, ok := formValues(r, "title", "author", "isbn")
	if !ok {
		a.renderPage(w, r, "book", MsgFillAllFields)
		return
	}
	result := a.registry.Dispatch(r.Context(), catalogtools.AddBook, map[string]any{
		"title":  title,
		"author": author,
		"isbn":   isbn,
	})
	a.renderPage(w, r, "book", result)
}

func (a *App) handleAddPatronForm(w http.ResponseWriter, r *http.Request) {
	name, email, phone, ok := formValues(r, "name", "email", "phone")
	if !ok {
		a.renderPage(w, r, "patron", MsgFillAllFields)
		return
	}
	result := a.registry.Dispatch(r.Context(), catalogtools.AddPatron, map[string]any{
		"name":  name,
		"email": email,
		"phone": phone,
	})
	a.renderPage(w, r, "patron", result)
}

func (a *App) handleBorrowForm(w http.ResponseWriter, r *http.Request) {
	bookID, err1 := strconv.Atoi(strings.TrimSpace(r.PostFormValue("book_id")))
	patronID, err2 := strconv.Atoi(strings.TrimSpace(r.PostFormValue("patron_id")))
	if err1 != nil || err2 != nil {
		a.renderPage(w, r, "borrow", MsgInvalidIDs)
		return
	}

	days := a.catalog.DefaultLoanDays()
	if s := strings.TrimSpace(r.PostFormValue("days")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			a.renderPage(w, r, "borrow", MsgInvalidLoanDays)
			return
		}
		days = n
	}

	result := a.registry.Dispatch(r.Context(), catalogtools.BorrowBook, map[string]any{
		"book_id":   bookID,
		"patron_id": patronID,
		"days":      days,
	})
	a.renderPage(w, r, "borrow", result)
}

func (a *App) handleReturnForm(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("book_id")))
	if err != nil {
		a.renderPage(w, r, "return", MsgInvalidBookID)
		return
	}
	result := a.registry.Dispatch(r.Context(), catalogtools.ReturnBook, map[string]any{
		"book_id": bookID,
	})
	a.renderPage(w, r, "return", result)
}

func (a *App) renderPage(w http.ResponseWriter, r *http.Request, form, message string) {
	ctx := r.Context()
	books, patrons, active := a.catalog.Stats()
	data := page{
		Form:     form,
		Message:  message,
		LoanDays: a.catalog.DefaultLoanDays(),
		Books:    a.registry.Call(ctx, catalogtools.ListBooks, "{}"),
		Patrons:  a.registry.Call(ctx, catalogtools.ListPatrons, "{}"),
		Overdue:  a.registry.Call(ctx, catalogtools.GetOverdueLoans, "{}"),
		Stats: pageStats{
			Books:   books,
			Patrons: patrons,
			Active:  active,
		},
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "template", "err", err.Error())
		writePlain(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// formValues returns the trimmed values of the form fields,
// ok is false if any of them is empty.
func formValues(r *http.Request, a, b, c string) (string, string, string, bool) {
	va := strings.TrimSpace(r.PostFormValue(a))
	vb := strings.TrimSpace(r.PostFormValue(b))
	vc := strings.TrimSpace(r.PostFormValue(c))
	return va, vb, vc, va != "" && vb != "" && vc != ""
}
