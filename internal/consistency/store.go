package consistency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/n-rosenthal/sala-de-leitura/internal/catalog"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/db"
)

type Store struct {
	db       *sqlx.DB
	lockWait time.Duration
}

func NewStore(conn *sql.DB, lockWait time.Duration) *Store {
	return &Store{db: sqlx.NewDb(conn, "mysql"), lockWait: lockWait}
}

// The scan joins each loan-relevant book against its open loans in a single
// pass. Books in administrative statuses are out of scope: WITHDRAWN or LOST
// with open loans is a catalog decision, not drift.
const scanQuery = `
SELECT b.id AS book_id,
       b.title AS title,
       b.status AS status,
       COUNT(l.loan_id) AS active_loans
FROM book b
LEFT JOIN loan l ON l.book_id = b.id AND l.return_date IS NULL
WHERE b.status IN ('AVAILABLE', 'LENT')
GROUP BY b.id, b.title, b.status
HAVING (b.status = 'AVAILABLE' AND COUNT(l.loan_id) > 0)
    OR (b.status = 'LENT' AND COUNT(l.loan_id) = 0)`

func (s *Store) FindDrifts(ctx context.Context) ([]Drift, error) {
	var rows []Drift
	if err := s.db.SelectContext(ctx, &rows, scanQuery); err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].CachedStatus == string(catalog.StatusAvailable) {
			rows[i].Kind = KindAvailableWithActiveLoans
			rows[i].Suggestion = "set status to LENT"
		} else {
			rows[i].Kind = KindLentWithoutActiveLoans
			rows[i].Suggestion = "set status to AVAILABLE"
		}
	}
	return rows, nil
}

// CountChecked reports how many books the scan considers.
func (s *Store) CountChecked(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM book WHERE status IN ('AVAILABLE', 'LENT')`)
	return n, err
}

// RepairBook re-verifies one book under its row lock and corrects the status
// from the ledger. The re-check matters: the drift may have healed between
// the scan and this call, in which case nothing is written.
func (s *Store) RepairBook(ctx context.Context, bookID string) (*RepairedBook, error) {
	var out *RepairedBook

	err := db.RunInTx(ctx, s.db.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
		defer cancel()

		var status string
		err := tx.QueryRowContext(lockCtx, `SELECT status FROM book WHERE id = ? FOR UPDATE`, bookID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			// Book deleted since the scan.
			return nil
		}
		if err != nil {
			return err
		}

		if status != string(catalog.StatusAvailable) && status != string(catalog.StatusLent) {
			// Administrative status set since the scan; leave it alone.
			return nil
		}

		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM loan WHERE book_id = ? AND return_date IS NULL`, bookID).Scan(&active); err != nil {
			return err
		}

		want := string(catalog.StatusAvailable)
		if active > 0 {
			want = string(catalog.StatusLent)
		}
		if want == status {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE book SET status = ? WHERE id = ?`, want, bookID); err != nil {
			return err
		}
		out = &RepairedBook{BookID: bookID, FromStatus: status, ToStatus: want}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
