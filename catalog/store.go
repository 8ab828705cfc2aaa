package catalog

import (
	"slices"
	"sync"
	"time"

	"github.com/effective-security/librarian/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "catalog")

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source used for loan and due dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultLoanDays sets the loan period returned by DefaultLoanDays.
func WithDefaultLoanDays(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.loanDays = days
		}
	}
}

// Store keeps books, patrons and loans in memory.
// Records are never deleted, so an ID is the position in its slice plus one.
type Store struct {
	lock sync.RWMutex

	books   []*Book
	patrons []*Patron
	loans   []*Loan

	now      func() time.Time
	loanDays int
}

// New returns an empty Store
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		loanDays: DefaultLoanDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultLoanDays returns the configured loan period.
func (s *Store) DefaultLoanDays() int {
	return s.loanDays
}

// Now returns the current time of the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// AddBook registers a new available book and returns it.
func (s *Store) AddBook(title, author, isbn string) *Book {
	s.lock.Lock()
	defer s.lock.Unlock()

	b := &Book{
		ID:        len(s.books) + 1,
		Title:     title,
		Author:    author,
		ISBN:      isbn,
		Available: true,
	}
	s.books = append(s.books, b)
	metricskey.StatsCatalogRecordsAdded.IncrCounter(1, "book")

	logger.KV(xlog.DEBUG, "status", "book_added", "id", b.ID, "isbn", isbn)
	return b.clone()
}

// AddPatron registers a new patron and returns it.
func (s *Store) AddPatron(name, email, phone string) *Patron {
	s.lock.Lock()
	defer s.lock.Unlock()

	p := &Patron{
		ID:    len(s.patrons) + 1,
		Name:  name,
		Email: email,
		Phone: phone,
	}
	s.patrons = append(s.patrons, p)
	metricskey.StatsCatalogRecordsAdded.IncrCounter(1, "patron")

	logger.KV(xlog.DEBUG, "status", "patron_added", "id", p.ID)
	return p.clone()
}

// GetBook returns the book by ID, or ErrBookNotFound.
func (s *Store) GetBook(id int) (*Book, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	b := s.book(id)
	if b == nil {
		return nil, ErrBookNotFound
	}
	return b.clone(), nil
}

// GetPatron returns the patron by ID, or ErrPatronNotFound.
func (s *Store) GetPatron(id int) (*Patron, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	p := s.patron(id)
	if p == nil {
		return nil, ErrPatronNotFound
	}
	return p.clone(), nil
}

// Books returns all books in creation order.
func (s *Store) Books() []*Book {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return cloneAll(s.books, (*Book).clone)
}

// Patrons returns all patrons in creation order.
func (s *Store) Patrons() []*Patron {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return cloneAll(s.patrons, (*Patron).clone)
}

// Loans returns all loans, active and returned, in creation order.
func (s *Store) Loans() []*Loan {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return cloneAll(s.loans, (*Loan).clone)
}

// Snapshot returns a copy of the whole catalog.
func (s *Store) Snapshot() *Catalog {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return &Catalog{
		Books:   cloneAll(s.books, (*Book).clone),
		Patrons: cloneAll(s.patrons, (*Patron).clone),
		Loans:   cloneAll(s.loans, (*Loan).clone),
	}
}

// Stats returns the number of books, patrons and active loans.
func (s *Store) Stats() (books, patrons, active int) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, l := range s.loans {
		if l.Active() {
			active++
		}
	}
	return len(s.books), len(s.patrons), active
}

func (s *Store) book(id int) *Book {
	if id < 1 || id > len(s.books) {
		return nil
	}
	return s.books[id-1]
}

func (s *Store) patron(id int) *Patron {
	if id < 1 || id > len(s.patrons) {
		return nil
	}
	return s.patrons[id-1]
}

func cloneAll[T any](list []*T, clone func(*T) *T) []*T {
	res := make([]*T, 0, len(list))
	for _, item := range list {
		res = append(res, clone(item))
	}
	return slices.Clip(res)
}
