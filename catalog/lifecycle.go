package catalog

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// Borrow lends the book to the patron for the given number of days.
//
// It fails with ErrBookNotFound, ErrPatronNotFound, ErrBookUnavailable
// or ErrLoanPeriodOutOfRange, in that order of checking,
// and leaves the store unchanged on failure.
func (s *Store) Borrow(bookID, patronID, days int) (*Loan, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	book := s.book(bookID)
	if book == nil {
		return nil, s.rejected("borrow", "book_not_found", ErrBookNotFound)
	}
	if s.patron(patronID) == nil {
		return nil, s.rejected("borrow", "patron_not_found", ErrPatronNotFound)
	}
	if !book.Available {
		return nil, s.rejected("borrow", "book_unavailable", ErrBookUnavailable)
	}

	if days < 1 {
		logger.KV(xlog.WARNING,
			"status", "non_positive_loan_period",
			"book_id", bookID,
			"patron_id", patronID,
			"days", days)
	}

	now := s.now()
	due, ok := dueDate(now, days)
	if !ok {
		logger.KV(xlog.WARNING,
			"status", "loan_period_out_of_range",
			"book_id", bookID,
			"patron_id", patronID,
			"days", days)
		return nil, s.rejected("borrow", "loan_period_out_of_range", ErrLoanPeriodOutOfRange)
	}

	loan := &Loan{
		ID:       len(s.loans) + 1,
		BookID:   bookID,
		PatronID: patronID,
		LoanDate: now,
		DueDate:  due,
	}
	s.loans = append(s.loans, loan)

	pid := patronID
	book.Available = false
	book.BorrowedBy = &pid

	metricskey.StatsLoanTransitions.IncrCounter(1, "borrow", "ok")
	logger.KV(xlog.DEBUG,
		"status", "borrowed",
		"loan_id", loan.ID,
		"book_id", bookID,
		"patron_id", patronID,
		"due", loan.DueDate.Format(DateFormat))

	return loan.clone(), nil
}

// Return closes the active loan of the book and makes it available again.
//
// It fails with ErrBookNotFound or ErrBookNotBorrowed.
func (s *Store) Return(bookID int) (*Loan, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	book := s.book(bookID)
	if book == nil {
		return nil, s.rejected("return", "book_not_found", ErrBookNotFound)
	}
	if book.Available {
		return nil, s.rejected("return", "book_not_borrowed", ErrBookNotBorrowed)
	}

	loan := s.activeLoan(bookID)
	if loan == nil {
		// a borrowed book always has an active loan
		logger.KV(xlog.ERROR, "status", "missing_active_loan", "book_id", bookID)
		return nil, s.rejected("return", "book_not_borrowed", ErrBookNotBorrowed)
	}

	now := s.now()
	loan.ReturnDate = &now
	book.Available = true
	book.BorrowedBy = nil

	metricskey.StatsLoanTransitions.IncrCounter(1, "return", "ok")
	logger.KV(xlog.DEBUG,
		"status", "returned",
		"loan_id", loan.ID,
		"book_id", bookID,
		"patron_id", loan.PatronID)

	return loan.clone(), nil
}

// LoansForPatron returns all loans of the patron, active and returned, in creation order.
func (s *Store) LoansForPatron(patronID int) []*Loan {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := []*Loan{}
	for _, l := range s.loans {
		if l.PatronID == patronID {
			res = append(res, l.clone())
		}
	}
	return res
}

// ActiveLoans returns the loans that have not been returned.
func (s *Store) ActiveLoans() []*Loan {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := []*Loan{}
	for _, l := range s.loans {
		if l.Active() {
			res = append(res, l.clone())
		}
	}
	return res
}

// OverdueLoans returns active loans with due date strictly before now.
func (s *Store) OverdueLoans() []*Loan {
	s.lock.RLock()
	defer s.lock.RUnlock()

	now := s.now()
	res := []*Loan{}
	for _, l := range s.loans {
		if l.IsOverdue(now) {
			res = append(res, l.clone())
		}
	}
	return res
}

func (s *Store) activeLoan(bookID int) *Loan {
	// the active loan is the most recent one
	for i := len(s.loans) - 1; i >= 0; i-- {
		l := s.loans[i]
		if l.BookID == bookID && l.Active() {
			return l
		}
	}
	return nil
}

// dueDate returns the date days calendar days after now,
// it fails when the date is outside of years 1 to 9999.
func dueDate(now time.Time, days int) (time.Time, bool) {
	if days > MaxLoanDays || days < -MaxLoanDays {
		return time.Time{}, false
	}
	due := now.AddDate(0, 0, days)
	if due.Year() < 1 || due.Year() > 9999 {
		return time.Time{}, false
	}
	return due, true
}

func (s *Store) rejected(action, reason string, err error) error {
	metricskey.StatsLoanTransitions.IncrCounter(1, action, reason)
	return errors.WithStack(err)
}
