package loans

import (
	"database/sql"
	"time"
)

// Loan is one row of the loan ledger. A loan with a null return_date is
// active; closing it is the only mutation that ever ends a lending.
type Loan struct {
	LoanID     int64
	LoanULID   string
	BookID     string
	MemberID   int64
	IssuedBy   int64
	ReceivedBy sql.NullInt64
	LoanDate   time.Time
	DueDate    time.Time
	ReturnDate sql.NullTime
	CreatedAt  time.Time
}

func (l *Loan) Active() bool { return !l.ReturnDate.Valid }

type LoanFilter struct {
	BookID   *string
	MemberID *int64
	Active   *bool
	From     *time.Time
	To       *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
