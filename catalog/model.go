package catalog

import (
	"strconv"
	"time"
)

// DefaultLoanDays is the loan period used when none is configured.
const DefaultLoanDays = 14

// MaxLoanDays is the largest loan period in days, either sign.
const MaxLoanDays = 999_999_999

// DateFormat is the layout used to print due dates.
const DateFormat = "2006-01-02"

// Book is a single catalog item.
type Book struct {
	ID        int    `json:"id" yaml:"id" toml:"id"`
	Title     string `json:"title" yaml:"title" toml:"title"`
	Author    string `json:"author" yaml:"author" toml:"author"`
	ISBN      string `json:"isbn" yaml:"isbn" toml:"isbn"`
	Available bool   `json:"available" yaml:"available" toml:"available"`
	// BorrowedBy is the patron holding the book, nil when Available.
	BorrowedBy *int `json:"borrowed_by,omitempty" yaml:"borrowed_by,omitempty" toml:"borrowed_by,omitempty"`
}

// Status returns "Available" or "Borrowed by Patron #N".
func (b *Book) Status() string {
	if b.Available || b.BorrowedBy == nil {
		return "Available"
	}
	return "Borrowed by Patron #" + strconv.Itoa(*b.BorrowedBy)
}

func (b *Book) clone() *Book {
	c := *b
	if b.BorrowedBy != nil {
		id := *b.BorrowedBy
		c.BorrowedBy = &id
	}
	return &c
}

// Patron is a registered library user.
type Patron struct {
	ID    int    `json:"id" yaml:"id" toml:"id"`
	Name  string `json:"name" yaml:"name" toml:"name"`
	Email string `json:"email" yaml:"email" toml:"email"`
	Phone string `json:"phone" yaml:"phone" toml:"phone"`
}

func (p *Patron) clone() *Patron {
	c := *p
	return &c
}

// Loan records a book lent to a patron.
type Loan struct {
	ID       int       `json:"id" yaml:"id" toml:"id"`
	BookID   int       `json:"book_id" yaml:"book_id" toml:"book_id"`
	PatronID int       `json:"patron_id" yaml:"patron_id" toml:"patron_id"`
	LoanDate time.Time `json:"loan_date" yaml:"loan_date" toml:"loan_date"`
	DueDate  time.Time `json:"due_date" yaml:"due_date" toml:"due_date"`
	// ReturnDate is nil while the loan is active.
	ReturnDate *time.Time `json:"return_date,omitempty" yaml:"return_date,omitempty" toml:"return_date,omitempty"`
}

// Active returns true if the book has not been returned yet.
func (l *Loan) Active() bool {
	return l.ReturnDate == nil
}

// IsOverdue returns true if the loan is active and its due date is strictly before now.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Active() && l.DueDate.Before(now)
}

func (l *Loan) clone() *Loan {
	c := *l
	if l.ReturnDate != nil {
		t := *l.ReturnDate
		c.ReturnDate = &t
	}
	return &c
}

// Catalog is a point in time copy of the store content.
type Catalog struct {
	Books   []*Book   `json:"books" yaml:"books" toml:"books"`
	Patrons []*Patron `json:"patrons" yaml:"patrons" toml:"patrons"`
	Loans   []*Loan   `json:"loans" yaml:"loans" toml:"loans"`
}
