package catalog

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is the base error for a missing book or patron.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is the base error for a loan transition that is not allowed.
	ErrInvalidState = errors.New("invalid state")

	// ErrBookNotFound is returned when the book ID does not exist.
	ErrBookNotFound = errors.Mark(errors.New("book not found"), ErrNotFound)
	// ErrPatronNotFound is returned when the patron ID does not exist.
	ErrPatronNotFound = errors.Mark(errors.New("patron not found"), ErrNotFound)
	// ErrBookUnavailable is returned when borrowing a book that is already lent.
	ErrBookUnavailable = errors.Mark(errors.New("book is not available"), ErrInvalidState)
	// ErrBookNotBorrowed is returned when returning a book without an active loan.
	ErrBookNotBorrowed = errors.Mark(errors.New("book is not borrowed"), ErrInvalidState)
	// ErrLoanPeriodOutOfRange is returned when the due date of a loan can not be represented.
	ErrLoanPeriodOutOfRange = errors.Mark(errors.New("loan period is out of range"), ErrInvalidState)
)
