package catalogtools_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/tools"
	"github.com/effective-security/librarian/tools/catalogtools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T) (*tools.Registry, *catalog.Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
	store := catalog.New(catalog.WithClock(c.Now))
	return catalogtools.NewRegistry(store), store, c
}

func TestDefinitions(t *testing.T) {
	r, _, _ := newRegistry(t)

	exp := []struct {
		name     string
		desc     string
		required []string
		props    []string
	}{
		{catalogtools.AddBook, "Add a new book to the library", []string{"title", "author", "isbn"}, []string{"title", "author", "isbn"}},
		{catalogtools.AddPatron, "Add a new patron to the library", []string{"name", "email", "phone"}, []string{"name", "email", "phone"}},
		{catalogtools.BorrowBook, "Borrow a book for a patron", []string{"book_id", "patron_id"}, []string{"book_id", "patron_id", "days"}},
		{catalogtools.ReturnBook, "Return a borrowed book to the library", []string{"book_id"}, []string{"book_id"}},
		{catalogtools.ListBooks, "List all books in the library with their status", nil, nil},
		{catalogtools.ListPatrons, "List all patrons registered in the library", nil, nil},
		{catalogtools.GetOverdueLoans, "Get all overdue loans in the library", nil, nil},
		{catalogtools.GetBookInfo, "Get detailed information about a specific book", []string{"book_id"}, []string{"book_id"}},
		{catalogtools.GetPatronInfo, "Get detailed information about a specific patron", []string{"patron_id"}, []string{"patron_id"}},
	}

	defs := r.Definitions()
	require.Len(t, defs, len(exp))
	for i, e := range exp {
		d := defs[i]
		assert.Equal(t, e.name, d.Name)
		assert.Equal(t, e.desc, d.Description)
		require.NotNil(t, d.InputSchema, e.name)
		assert.Equal(t, "object", d.InputSchema.Type)
		if len(e.required) == 0 {
			assert.Empty(t, d.InputSchema.Required, e.name)
		} else {
			assert.Equal(t, e.required, d.InputSchema.Required, e.name)
		}

		var props []string
		for pair := d.InputSchema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			props = append(props, pair.Key)
		}
		assert.Equal(t, e.props, props, e.name)
	}

	days, ok := defs[2].InputSchema.Properties.Get("days")
	require.True(t, ok)
	assert.Equal(t, "integer", days.Type)
	assert.Equal(t, "Number of days for the loan, the library loan period when omitted", days.Description)
	assert.Nil(t, days.Default)
}

func TestScenario_LoanLifecycle(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry(t)

	assert.Equal(t, "No books in the library", r.Dispatch(ctx, "list_books", nil))
	assert.Equal(t, "No patrons registered", r.Dispatch(ctx, "list_patrons", nil))
	assert.Equal(t, "No overdue books", r.Dispatch(ctx, "get_overdue_loans", nil))

	assert.Equal(t, "Book added successfully! ID: 1, Title: 1984",
		r.Dispatch(ctx, "add_book", map[string]any{"title": "1984", "author": "Orwell", "isbn": "978-1"}))
	assert.Equal(t, "Patron added successfully! ID: 1, Name: Ann",
		r.Dispatch(ctx, "add_patron", map[string]any{"name": "Ann", "email": "a@x.com", "phone": "555"}))

	assert.Equal(t, "Book borrowed successfully! Due date: 2024-03-15",
		r.Dispatch(ctx, "borrow_book", map[string]any{"book_id": 1, "patron_id": 1, "days": 14}))

	loans := store.Loans()
	require.Len(t, loans, 1)
	assert.Equal(t, loans[0].LoanDate.Add(14*24*time.Hour), loans[0].DueDate)

	assert.Equal(t, "ID: 1 | 1984 by Orwell | ISBN: 978-1 | Borrowed by Patron #1", r.Dispatch(ctx, "list_books", nil))
	assert.Equal(t, "ID: 1 | Title: 1984 | Author: Orwell | ISBN: 978-1 | Status: Borrowed by Patron #1",
		r.Dispatch(ctx, "get_book_info", map[string]any{"book_id": 1}))
	assert.Equal(t, "ID: 1 | Name: Ann | Email: a@x.com | Phone: 555 | Active Loans: 1",
		r.Dispatch(ctx, "get_patron_info", map[string]any{"patron_id": 1}))

	assert.Equal(t, "Failed to borrow book: book is not available",
		r.Dispatch(ctx, "borrow_book", map[string]any{"book_id": 1, "patron_id": 1}))

	assert.Equal(t, "Book returned successfully!", r.Dispatch(ctx, "return_book", map[string]any{"book_id": 1}))
	assert.Equal(t, "Failed to return book: book is not borrowed", r.Dispatch(ctx, "return_book", map[string]any{"book_id": 1}))

	assert.Equal(t, "ID: 1 | 1984 by Orwell | ISBN: 978-1 | Available", r.Dispatch(ctx, "list_books", nil))
	assert.Equal(t, "ID: 1 | Name: Ann | Email: a@x.com | Phone: 555 | Active Loans: 0",
		r.Dispatch(ctx, "get_patron_info", map[string]any{"patron_id": 1}))
	assert.Equal(t, "ID: 1 | Ann | Email: a@x.com | Phone: 555", r.Dispatch(ctx, "list_patrons", nil))
}

func TestScenario_DefaultDaysAndOverdue(t *testing.T) {
	ctx := context.Background()
	r, store, c := newRegistry(t)
	catalog.SeedSample(store)

	assert.Equal(t, "Book borrowed successfully! Due date: 2024-03-15",
		r.Call(ctx, "borrow_book", `{"book_id": 1, "patron_id": 2}`))
	assert.Equal(t, "Book borrowed successfully! Due date: 2024-03-04",
		r.Call(ctx, "borrow_book", `{"book_id": "3", "patron_id": "1", "days": 3}`))

	assert.Equal(t, "No overdue books", r.Dispatch(ctx, "get_overdue_loans", nil))

	// due date equal to now is not overdue
	c.Advance(3 * 24 * time.Hour)
	assert.Equal(t, "No overdue books", r.Dispatch(ctx, "get_overdue_loans", nil))

	c.Advance(time.Second)
	assert.Equal(t, "Book: 1984 (ID: 3) | Patron: John Doe (ID: 1) | Due date: 2024-03-04",
		r.Dispatch(ctx, "get_overdue_loans", nil))

	c.Advance(30 * 24 * time.Hour)
	assert.Equal(t, "Book: The Great Gatsby (ID: 1) | Patron: Jane Smith (ID: 2) | Due date: 2024-03-15\n"+
		"Book: 1984 (ID: 3) | Patron: John Doe (ID: 1) | Due date: 2024-03-04",
		r.Dispatch(ctx, "get_overdue_loans", nil))

	assert.Equal(t, "Book returned successfully!", r.Dispatch(ctx, "return_book", map[string]any{"book_id": 3}))
	assert.Equal(t, "Book: The Great Gatsby (ID: 1) | Patron: Jane Smith (ID: 2) | Due date: 2024-03-15",
		r.Dispatch(ctx, "get_overdue_loans", nil))
}

func TestScenario_Aliases(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry(t)
	catalog.SeedSample(store)

	books := r.Dispatch(ctx, "list_books", nil)
	assert.Equal(t, "ID: 1 | The Great Gatsby by F. Scott Fitzgerald | ISBN: 978-0743273565 | Available\n"+
		"ID: 2 | To Kill a Mockingbird by Harper Lee | ISBN: 978-0446310789 | Available\n"+
		"ID: 3 | 1984 by George Orwell | ISBN: 978-0451524935 | Available", books)
	assert.Equal(t, books, r.Dispatch(ctx, "get_all_books", nil))
	assert.Equal(t, books, r.Dispatch(ctx, "get_books", nil))

	patrons := r.Dispatch(ctx, "list_patrons", nil)
	assert.Equal(t, patrons, r.Dispatch(ctx, "get_all_patrons", nil))
	assert.Equal(t, patrons, r.Dispatch(ctx, "get_patrons", nil))
}

func TestScenario_Failures(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry(t)
	catalog.SeedSample(store)

	tcases := []struct {
		name string
		tool string
		args map[string]any
		exp  string
	}{
		{"unknown tool", "delete_book", map[string]any{"book_id": 1}, "Unknown tool: delete_book"},
		{"missing book", "borrow_book", map[string]any{"book_id": 999, "patron_id": 1}, "Failed to borrow book: book not found"},
		{"missing patron", "borrow_book", map[string]any{"book_id": 1, "patron_id": 999}, "Failed to borrow book: patron not found"},
		{"return missing book", "return_book", map[string]any{"book_id": 42}, "Failed to return book: book not found"},
		{"return available", "return_book", map[string]any{"book_id": 2}, "Failed to return book: book is not borrowed"},
		{"book info not found", "get_book_info", map[string]any{"book_id": 999}, "Book with ID 999 not found"},
		{"patron info not found", "get_patron_info", map[string]any{"patron_id": 0}, "Patron with ID 0 not found"},
		{"missing args", "borrow_book", map[string]any{"book_id": 1}, "Error executing borrow_book: missing required arguments: patron_id"},
		{"wrong type", "get_book_info", map[string]any{"book_id": "one"}, `Error executing get_book_info: argument book_id must be an integer, got "one"`},
		{"missing title", "add_book", map[string]any{"author": "A", "isbn": "1"}, "Error executing add_book: missing required arguments: title"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, r.Dispatch(ctx, tc.tool, tc.args))
		})
	}

	assert.Empty(t, store.Loans())
	books, patrons, active := store.Stats()
	assert.Equal(t, 3, books)
	assert.Equal(t, 2, patrons)
	assert.Equal(t, 0, active)

	assert.Equal(t, "Error executing add_book: arguments must be a JSON object", r.Call(ctx, "add_book", `"1984"`))
}

func TestReadOnlyTools(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newRegistry(t)
	catalog.SeedSample(store)
	_, err := store.Borrow(1, 1, 14)
	require.NoError(t, err)

	before := store.Snapshot()
	for _, name := range []string{"list_books", "list_patrons", "get_overdue_loans", "get_book_info", "get_patron_info"} {
		_ = r.Dispatch(ctx, name, map[string]any{"book_id": 1, "patron_id": 1})
	}
	assert.Equal(t, before, store.Snapshot())
}

func TestTypedAPI(t *testing.T) {
	ctx := context.Background()
	store := catalog.New()
	list := catalogtools.New(store)
	require.Len(t, list, 9)

	addBook, ok := list[0].(tools.Tool[catalogtools.AddBookRequest, catalogtools.BookAdded])
	require.True(t, ok)
	res, err := addBook.Run(ctx, &catalogtools.AddBookRequest{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0441013593"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Book.ID)
	assert.True(t, res.Book.Available)

	borrow, ok := list[2].(tools.Tool[catalogtools.BorrowBookRequest, catalogtools.BookBorrowed])
	require.True(t, ok)
	_, err = borrow.Run(ctx, &catalogtools.BorrowBookRequest{BookID: 1, PatronID: 1})
	assert.ErrorIs(t, err, catalog.ErrPatronNotFound)
}

func TestBorrow_LoanPeriod(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
	store := catalog.New(catalog.WithClock(c.Now), catalog.WithDefaultLoanDays(21))
	catalog.SeedSample(store)
	r := catalogtools.NewRegistry(store)

	tcases := []struct {
		name string
		book int
		args string
		exp  string
	}{
		{"default from store", 1, `{"book_id": 1, "patron_id": 1}`, "Book borrowed successfully! Due date: 2024-03-22"},
		{"null days", 2, `{"book_id": 2, "patron_id": 1, "days": null}`, "Book borrowed successfully! Due date: 2024-03-22"},
		{"explicit days", 3, `{"book_id": 3, "patron_id": 2, "days": 3}`, "Book borrowed successfully! Due date: 2024-03-04"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, r.Call(ctx, "borrow_book", tc.args))
		})
	}
	assert.Equal(t, "No overdue books", r.Dispatch(ctx, "get_overdue_loans", nil))

	assert.Equal(t, "Book returned successfully!", r.Dispatch(ctx, "return_book", map[string]any{"book_id": 1}))
	assert.Equal(t, "Book borrowed successfully! Due date: 2571-09-30",
		r.Call(ctx, "borrow_book", `{"book_id": 1, "patron_id": 1, "days": 200000}`))
	assert.Equal(t, "No overdue books", r.Dispatch(ctx, "get_overdue_loans", nil))

	assert.Equal(t, "Book returned successfully!", r.Dispatch(ctx, "return_book", map[string]any{"book_id": 1}))
	assert.Equal(t, "Failed to borrow book: loan period is out of range",
		r.Call(ctx, "borrow_book", `{"book_id": 1, "patron_id": 1, "days": 5000000}`))
	assert.Equal(t, "Error executing get_book_info: argument book_id must be an integer, got 1e30",
		r.Call(ctx, "get_book_info", `{"book_id": 1e30}`))
}
