package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-sql-driver/mysql"

	"github.com/n-rosenthal/sala-de-leitura/internal/catalog"
)

// MySQL server error numbers surfaced as retryable lock failures.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type Store struct {
	db       *sql.DB
	dialect  goqu.DialectWrapper
	lockWait time.Duration
}

func NewStore(conn *sql.DB, lockWait time.Duration) *Store {
	return &Store{db: conn, dialect: goqu.Dialect("mysql"), lockWait: lockWait}
}

const loanColumns = `loan_id, loan_ulid, book_id, member_id, issued_by, received_by, loan_date, due_date, return_date, created_at`

func scanLoan(row interface{ Scan(dest ...any) error }) (*Loan, error) {
	var l Loan
	if err := row.Scan(
		&l.LoanID, &l.LoanULID, &l.BookID, &l.MemberID, &l.IssuedBy,
		&l.ReceivedBy, &l.LoanDate, &l.DueDate, &l.ReturnDate, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

// lockBookRow acquires the exclusive row lock that serializes every lending
// mutation of one book. The wait is bounded: blocking longer than lockWait
// fails the operation as LOCK_TIMEOUT, a retryable outcome distinct from the
// definitive ALREADY_LENT rejection.
func (s *Store) lockBookRow(ctx context.Context, tx *sql.Tx, bookID string) (catalog.Status, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	var status catalog.Status
	err := tx.QueryRowContext(lockCtx, `SELECT status FROM book WHERE id = ? FOR UPDATE`, bookID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound("book not found: " + bookID)
	}
	if err != nil {
		if isLockTimeout(err) {
			return "", ErrLockTimeout("could not lock book " + bookID + " in time; retry")
		}
		return "", err
	}
	return status, nil
}

func isLockTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock
	}
	return false
}

// countActiveLoans counts active loans for a book, optionally excluding one
// loan id. Must run while the book row lock is held to be authoritative.
func countActiveLoans(ctx context.Context, tx *sql.Tx, bookID string, excludeLoanID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM loan WHERE book_id = ? AND return_date IS NULL AND loan_id <> ?`
	var n int
	if err := tx.QueryRowContext(ctx, q, bookID, excludeLoanID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type memberRow struct {
	Active bool
	Role   string
}

func getMemberRow(ctx context.Context, tx *sql.Tx, memberID int64) (*memberRow, error) {
	const q = `SELECT active, role FROM member WHERE member_id = ?`
	var m memberRow
	err := tx.QueryRowContext(ctx, q, memberID).Scan(&m.Active, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound(fmt.Sprintf("member not found: %d", memberID))
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func checkBorrower(ctx context.Context, tx *sql.Tx, memberID int64) error {
	m, err := getMemberRow(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if !m.Active {
		return ErrValidation(fmt.Sprintf("member %d is not active", memberID))
	}
	return nil
}

func checkIssuer(ctx context.Context, tx *sql.Tx, memberID int64) error {
	m, err := getMemberRow(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if !m.Active || (m.Role != "staff" && m.Role != "admin") {
		return ErrUnauthorized(fmt.Sprintf("member %d may not issue loans", memberID))
	}
	return nil
}

// CreateLoan runs the whole lending transaction: lock the book row, verify
// status AND active-loan absence (the status is a cache, the ledger is the
// ground truth), re-validate borrower and issuer, insert the loan, flip the
// book to LENT, commit. Any error rolls everything back.
func (s *Store) CreateLoan(ctx context.Context, m *Loan) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	status, err := s.lockBookRow(ctx, tx, m.BookID)
	if err != nil {
		return err
	}
	if status != catalog.StatusAvailable {
		err = ErrAlreadyLent("book " + m.BookID + " is already lent or unavailable")
		return err
	}

	var active int
	if active, err = countActiveLoans(ctx, tx, m.BookID, 0); err != nil {
		return err
	}
	if active > 0 {
		err = ErrAlreadyLent("book " + m.BookID + " is already lent or unavailable")
		return err
	}

	if err = checkBorrower(ctx, tx, m.MemberID); err != nil {
		return err
	}
	if err = checkIssuer(ctx, tx, m.IssuedBy); err != nil {
		return err
	}

	const q = `
	INSERT INTO loan (loan_ulid, book_id, member_id, issued_by, loan_date, due_date)
	VALUES (?, ?, ?, ?, ?, ?)`
	var res sql.Result
	res, err = tx.ExecContext(ctx, q, m.LoanULID, m.BookID, m.MemberID, m.IssuedBy, m.LoanDate, m.DueDate)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.LoanID = id

	if _, err = tx.ExecContext(ctx, `UPDATE book SET status = ? WHERE id = ?`,
		string(catalog.StatusLent), m.BookID); err != nil {
		return err
	}

	return tx.Commit()
}

// ReturnLoan closes a loan and, when no other active loan remains for the
// book, flips its status back to AVAILABLE. The flip only applies while the
// cached status is loan-relevant: an administrative LOST or WITHDRAWN set
// during the loan survives the return.
func (s *Store) ReturnLoan(ctx context.Context, loanID int64, receivedBy int64, today time.Time) (*Loan, error) {
	var out *Loan
	var err error

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var bookID string
	err = tx.QueryRowContext(ctx, `SELECT book_id FROM loan WHERE loan_id = ?`, loanID).Scan(&bookID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound(fmt.Sprintf("loan not found: %d", loanID))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	status, err := s.lockBookRow(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}

	// Re-read under the lock; a concurrent return may have closed it since
	// the pre-read above.
	var loan *Loan
	loan, err = scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loan WHERE loan_id = ? FOR UPDATE`, loanID))
	if err != nil {
		return nil, err
	}
	if loan.ReturnDate.Valid {
		err = ErrAlreadyReturned(fmt.Sprintf("loan %d is already returned", loanID))
		return nil, err
	}

	if err = checkIssuer(ctx, tx, receivedBy); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE loan SET return_date = ?, received_by = ? WHERE loan_id = ?`,
		today, receivedBy, loanID); err != nil {
		return nil, err
	}

	// Recompute instead of assuming: historically duplicated active loans
	// must keep the book LENT until the last one is closed.
	var remaining int
	if remaining, err = countActiveLoans(ctx, tx, bookID, loanID); err != nil {
		return nil, err
	}
	if remaining == 0 && status.LoanRelevant() {
		if _, err = tx.ExecContext(ctx, `UPDATE book SET status = ? WHERE id = ?`,
			string(catalog.StatusAvailable), bookID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	loan.ReturnDate = sql.NullTime{Time: today, Valid: true}
	loan.ReceivedBy = sql.NullInt64{Int64: receivedBy, Valid: true}
	out = loan
	return out, nil
}

// RenewLoan advances the due date. No book lock is needed because the book
// status is unaffected; the loan row lock serializes competing renewals.
func (s *Store) RenewLoan(ctx context.Context, loanID int64, extensionDays int, today time.Time) (*Loan, error) {
	var err error

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var loan *Loan
	loan, err = scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loan WHERE loan_id = ? FOR UPDATE`, loanID))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound(fmt.Sprintf("loan not found: %d", loanID))
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if loan.ReturnDate.Valid {
		err = ErrAlreadyReturned(fmt.Sprintf("loan %d is already returned and cannot be renewed", loanID))
		return nil, err
	}

	base := loan.DueDate
	if base.IsZero() {
		base = today
	}
	newDue := base.AddDate(0, 0, extensionDays)

	if _, err = tx.ExecContext(ctx, `UPDATE loan SET due_date = ? WHERE loan_id = ?`, newDue, loanID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	loan.DueDate = newDue
	return loan, nil
}

// ---- Queries ----

func (s *Store) GetByID(ctx context.Context, loanID int64) (*Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loan WHERE loan_id = ?`, loanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound(fmt.Sprintf("loan not found: %d", loanID))
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loan WHERE loan_ulid = ?`, ulid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("loan not found: " + ulid)
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ActiveForBook returns the active loan of a book, or NOT_FOUND.
func (s *Store) ActiveForBook(ctx context.Context, bookID string) (*Loan, error) {
	loan, err := scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loan WHERE book_id = ? AND return_date IS NULL ORDER BY loan_date DESC LIMIT 1`,
		bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("no active loan for book " + bookID)
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// MemberIDForAccount resolves the domain member bound to an identity account.
func (s *Store) MemberIDForAccount(ctx context.Context, accountID string) (int64, error) {
	const q = `SELECT member_id FROM member WHERE account_id = ?`
	var id int64
	err := s.db.QueryRowContext(ctx, q, accountID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnauthorized("account is not linked to a member")
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) List(ctx context.Context, f LoanFilter, p Page) ([]Loan, int64, error) {
	base := s.dialect.From("loan")

	where := []goqu.Expression{}
	if f.BookID != nil {
		where = append(where, goqu.C("book_id").Eq(*f.BookID))
	}
	if f.MemberID != nil {
		where = append(where, goqu.C("member_id").Eq(*f.MemberID))
	}
	if f.Active != nil {
		if *f.Active {
			where = append(where, goqu.C("return_date").IsNull())
		} else {
			where = append(where, goqu.C("return_date").IsNotNull())
		}
	}
	if f.From != nil {
		where = append(where, goqu.C("loan_date").Gte(*f.From))
	}
	if f.To != nil {
		where = append(where, goqu.C("loan_date").Lt(*f.To))
	}
	if len(where) > 0 {
		base = base.Where(where...)
	}

	order := goqu.C("loan_date").Desc()
	if strings.EqualFold(p.Order, "asc") {
		order = goqu.C("loan_date").Asc()
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	query, args, err := base.
		Select("loan_id", "loan_ulid", "book_id", "member_id", "issued_by",
			"received_by", "loan_date", "due_date", "return_date", "created_at").
		Order(order).
		Limit(uint(p.Limit)).
		Offset(uint(p.Offset)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}
