// Package catalogtools exposes the catalog store and the loan lifecycle
// as tools for chat models, the web UI and the CLI.
package catalogtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/tools"
)

// Tool names
const (
	AddBook         = "add_book"
	AddPatron       = "add_patron"
	BorrowBook      = "borrow_book"
	ReturnBook      = "return_book"
	ListBooks       = "list_books"
	ListPatrons     = "list_patrons"
	GetOverdueLoans = "get_overdue_loans"
	GetBookInfo     = "get_book_info"
	GetPatronInfo   = "get_patron_info"
)

type AddBookRequest struct {
	Title  string `json:"title" yaml:"title" jsonschema:"title=Title,description=Book title"`
	Author string `json:"author" yaml:"author" jsonschema:"title=Author,description=Author name"`
	ISBN   string `json:"isbn" yaml:"isbn" jsonschema:"title=ISBN,description=ISBN number"`
}

type AddPatronRequest struct {
	Name  string `json:"name" yaml:"name" jsonschema:"title=Name,description=Patron name"`
	Email string `json:"email" yaml:"email" jsonschema:"title=Email,description=Email address"`
	Phone string `json:"phone" yaml:"phone" jsonschema:"title=Phone,description=Phone number"`
}

type BorrowBookRequest struct {
	BookID   int `json:"book_id" yaml:"book_id" jsonschema:"title=Book ID,description=ID of the book to borrow"`
	PatronID int `json:"patron_id" yaml:"patron_id" jsonschema:"title=Patron ID,description=ID of the patron borrowing"`
	// Days is the loan period, nil means the default loan period of the store.
	Days *int `json:"days,omitempty" yaml:"days,omitempty" jsonschema:"title=Days,description=Number of days for the loan, the library loan period when omitted"`
}

type ReturnBookRequest struct {
	BookID int `json:"book_id" yaml:"book_id" jsonschema:"title=Book ID,description=ID of the book to return"`
}

type GetBookInfoRequest struct {
	BookID int `json:"book_id" yaml:"book_id" jsonschema:"title=Book ID,description=ID of the book"`
}

type GetPatronInfoRequest struct {
	PatronID int `json:"patron_id" yaml:"patron_id" jsonschema:"title=Patron ID,description=ID of the patron"`
}

// EmptyRequest is the request of tools without arguments.
type EmptyRequest struct{}

// BookAdded is the result of add_book.
type BookAdded struct {
	Book *catalog.Book `json:"book"`
}

func (r *BookAdded) String() string {
	return fmt.Sprintf("Book added successfully! ID: %d, Title: %s", r.Book.ID, r.Book.Title)
}

// PatronAdded is the result of add_patron.
type PatronAdded struct {
	Patron *catalog.Patron `json:"patron"`
}

func (r *PatronAdded) String() string {
	return fmt.Sprintf("Patron added successfully! ID: %d, Name: %s", r.Patron.ID, r.Patron.Name)
}

// BookBorrowed is the result of borrow_book.
type BookBorrowed struct {
	Loan *catalog.Loan `json:"loan"`
}

func (r *BookBorrowed) String() string {
	return "Book borrowed successfully! Due date: " + r.Loan.DueDate.Format(catalog.DateFormat)
}

// BookReturned is the result of return_book.
type BookReturned struct {
	Loan *catalog.Loan `json:"loan"`
}

func (r *BookReturned) String() string {
	return "Book returned successfully!"
}

// BookList is the result of list_books.
type BookList struct {
	Books []*catalog.Book `json:"books"`
}

func (r *BookList) String() string {
	if len(r.Books) == 0 {
		return "No books in the library"
	}
	lines := make([]string, 0, len(r.Books))
	for _, b := range r.Books {
		lines = append(lines, fmt.Sprintf("ID: %d | %s by %s | ISBN: %s | %s", b.ID, b.Title, b.Author, b.ISBN, b.Status()))
	}
	return strings.Join(lines, "\n")
}

// PatronList is the result of list_patrons.
type PatronList struct {
	Patrons []*catalog.Patron `json:"patrons"`
}

func (r *PatronList) String() string {
	if len(r.Patrons) == 0 {
		return "No patrons registered"
	}
	lines := make([]string, 0, len(r.Patrons))
	for _, p := range r.Patrons {
		lines = append(lines, fmt.Sprintf("ID: %d | %s | Email: %s | Phone: %s", p.ID, p.Name, p.Email, p.Phone))
	}
	return strings.Join(lines, "\n")
}

// OverdueLoan is an overdue loan with its book and patron.
type OverdueLoan struct {
	Loan   *catalog.Loan   `json:"loan"`
	Book   *catalog.Book   `json:"book"`
	Patron *catalog.Patron `json:"patron"`
}

// OverdueList is the result of get_overdue_loans.
type OverdueList struct {
	Loans []*OverdueLoan `json:"loans"`
}

func (r *OverdueList) String() string {
	if len(r.Loans) == 0 {
		return "No overdue books"
	}
	lines := make([]string, 0, len(r.Loans))
	for _, l := range r.Loans {
		lines = append(lines, fmt.Sprintf("Book: %s (ID: %d) | Patron: %s (ID: %d) | Due date: %s",
			l.Book.Title, l.Book.ID, l.Patron.Name, l.Patron.ID, l.Loan.DueDate.Format(catalog.DateFormat)))
	}
	return strings.Join(lines, "\n")
}

// BookInfo is the result of get_book_info.
type BookInfo struct {
	Book *catalog.Book `json:"book"`
}

func (r *BookInfo) String() string {
	b := r.Book
	return fmt.Sprintf("ID: %d | Title: %s | Author: %s | ISBN: %s | Status: %s", b.ID, b.Title, b.Author, b.ISBN, b.Status())
}

// PatronInfo is the result of get_patron_info.
type PatronInfo struct {
	Patron      *catalog.Patron `json:"patron"`
	ActiveLoans int             `json:"active_loans"`
}

func (r *PatronInfo) String() string {
	p := r.Patron
	return fmt.Sprintf("ID: %d | Name: %s | Email: %s | Phone: %s | Active Loans: %d", p.ID, p.Name, p.Email, p.Phone, r.ActiveLoans)
}

// Tools implements the catalog tools over a store.
type Tools struct {
	store *catalog.Store
}

// New returns the catalog tools in their canonical order.
func New(store *catalog.Store) []tools.ITool {
	t := &Tools{store: store}
	return []tools.ITool{
		tools.MustFunc(AddBook, "Add a new book to the library", t.AddBook),
		tools.MustFunc(AddPatron, "Add a new patron to the library", t.AddPatron),
		tools.MustFunc(BorrowBook, "Borrow a book for a patron", t.BorrowBook).
			WithFailure(failed[BorrowBookRequest]("Failed to borrow book")),
		tools.MustFunc(ReturnBook, "Return a borrowed book to the library", t.ReturnBook).
			WithFailure(failed[ReturnBookRequest]("Failed to return book")),
		tools.MustFunc(ListBooks, "List all books in the library with their status", t.ListBooks),
		tools.MustFunc(ListPatrons, "List all patrons registered in the library", t.ListPatrons),
		tools.MustFunc(GetOverdueLoans, "Get all overdue loans in the library", t.GetOverdueLoans),
		tools.MustFunc(GetBookInfo, "Get detailed information about a specific book", t.GetBookInfo).
			WithFailure(func(req *GetBookInfoRequest, err error) (string, bool) {
				if errors.Is(err, catalog.ErrNotFound) {
					return fmt.Sprintf("Book with ID %d not found", req.BookID), true
				}
				return "", false
			}),
		tools.MustFunc(GetPatronInfo, "Get detailed information about a specific patron", t.GetPatronInfo).
			WithFailure(func(req *GetPatronInfoRequest, err error) (string, bool) {
				if errors.Is(err, catalog.ErrNotFound) {
					return fmt.Sprintf("Patron with ID %d not found", req.PatronID), true
				}
				return "", false
			}),
	}
}

// NewRegistry returns a Registry with the catalog tools.
func NewRegistry(store *catalog.Store, opts ...tools.Option) *tools.Registry {
	r := tools.NewRegistry(opts...)
	// names are constant and unique
	_ = r.Register(New(store)...)
	return r
}

// failed renders lifecycle guard failures as "<prefix>: <reason>".
func failed[I any](prefix string) tools.FailureFunc[I] {
	return func(_ *I, err error) (string, bool) {
		if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrInvalidState) {
			return prefix + ": " + err.Error(), true
		}
		return "", false
	}
}

func (t *Tools) AddBook(_ context.Context, req *AddBookRequest) (*BookAdded, error) {
	return &BookAdded{Book: t.store.AddBook(req.Title, req.Author, req.ISBN)}, nil
}

func (t *Tools) AddPatron(_ context.Context, req *AddPatronRequest) (*PatronAdded, error) {
	return &PatronAdded{Patron: t.store.AddPatron(req.Name, req.Email, req.Phone)}, nil
}

func (t *Tools) BorrowBook(_ context.Context, req *BorrowBookRequest) (*BookBorrowed, error) {
	days := t.store.DefaultLoanDays()
	if req.Days != nil {
		days = *req.Days
	}
	loan, err := t.store.Borrow(req.BookID, req.PatronID, days)
	if err != nil {
		return nil, err
	}
	return &BookBorrowed{Loan: loan}, nil
}

func (t *Tools) ReturnBook(_ context.Context, req *ReturnBookRequest) (*BookReturned, error) {
	loan, err := t.store.Return(req.BookID)
	if err != nil {
		return nil, err
	}
	return &BookReturned{Loan: loan}, nil
}

func (t *Tools) ListBooks(_ context.Context, _ *EmptyRequest) (*BookList, error) {
	return &BookList{Books: t.store.Books()}, nil
}

func (t *Tools) ListPatrons(_ context.Context, _ *EmptyRequest) (*PatronList, error) {
	return &PatronList{Patrons: t.store.Patrons()}, nil
}

func (t *Tools) GetOverdueLoans(_ context.Context, _ *EmptyRequest) (*OverdueList, error) {
	res := &OverdueList{}
	for _, loan := range t.store.OverdueLoans() {
		book, err := t.store.GetBook(loan.BookID)
		if err != nil {
			return nil, err
		}
		patron, err := t.store.GetPatron(loan.PatronID)
		if err != nil {
			return nil, err
		}
		res.Loans = append(res.Loans, &OverdueLoan{Loan: loan, Book: book, Patron: patron})
	}
	return res, nil
}

func (t *Tools) GetBookInfo(_ context.Context, req *GetBookInfoRequest) (*BookInfo, error) {
	book, err := t.store.GetBook(req.BookID)
	if err != nil {
		return nil, err
	}
	return &BookInfo{Book: book}, nil
}

func (t *Tools) GetPatronInfo(_ context.Context, req *GetPatronInfoRequest) (*PatronInfo, error) {
	patron, err := t.store.GetPatron(req.PatronID)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, l := range t.store.LoansForPatron(req.PatronID) {
		if l.Active() {
			active++
		}
	}
	return &PatronInfo{Patron: patron, ActiveLoans: active}, nil
}
