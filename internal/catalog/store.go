package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const bookColumns = `id, title, author, year, status, created_at, updated_at`

func scanBook(row interface{ Scan(dest ...any) error }) (*Book, error) {
	var b Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Year, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM book WHERE id = ?`, b.ID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrConflict("book id already exists: " + b.ID)
	}

	const q = `INSERT INTO book (id, title, author, year, status) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, b.ID, b.Title, b.Author, b.Year, string(b.Status))
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*Book, error) {
	q := `SELECT ` + bookColumns + ` FROM book WHERE id = ?`
	b, err := scanBook(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("book not found: " + id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) Update(ctx context.Context, id string, in UpdateBookRequest) (*Book, error) {
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *in.Author)
	}
	if in.Year != nil {
		sets = append(sets, "year = ?")
		args = append(args, *in.Year)
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	q := fmt.Sprintf(`UPDATE book SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		// MySQL reports 0 affected rows for a no-op update too, so confirm
		// existence before deciding this is a miss.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
	}
	return s.GetByID(ctx, id)
}

func (s *Store) List(ctx context.Context, f BookFilter, p Page) ([]Book, int64, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + bookColumns + ` FROM book WHERE 1=1`)

	args := []any{}
	if f.Status != nil {
		sb.WriteString(` AND status = ?`)
		args = append(args, string(*f.Status))
	}
	if f.Search != "" {
		sb.WriteString(` AND (title LIKE ? OR author LIKE ?)`)
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}

	orderBy := "title"
	switch strings.ToLower(p.OrderBy) {
	case "author":
		orderBy = "author"
	case "year":
		orderBy = "year"
	}
	order := "ASC"
	if strings.EqualFold(p.Order, "desc") {
		order = "DESC"
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY %s %s`, orderBy, order))

	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cb := strings.Builder{}
	cb.WriteString(`SELECT COUNT(*) FROM book WHERE 1=1`)
	cargs := []any{}
	if f.Status != nil {
		cb.WriteString(` AND status = ?`)
		cargs = append(cargs, string(*f.Status))
	}
	if f.Search != "" {
		cb.WriteString(` AND (title LIKE ? OR author LIKE ?)`)
		like := "%" + f.Search + "%"
		cargs = append(cargs, like, like)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cb.String(), cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// ChangeStatus applies an administrative transition under the same book row
// lock the loan ledger takes, so it cannot interleave with a CreateLoan.
// Returns the previous status.
func (s *Store) ChangeStatus(ctx context.Context, id string, to Status) (Status, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var from Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM book WHERE id = ? FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound("book not found: " + id)
		return "", err
	}
	if err != nil {
		return "", err
	}

	if to == StatusAvailable {
		var active int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM loan WHERE book_id = ? AND return_date IS NULL`, id).Scan(&active)
		if err != nil {
			return "", err
		}
		if active > 0 {
			err = ErrConflict("book has an active loan; it must be returned first")
			return "", err
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE book SET status = ? WHERE id = ?`, string(to), id); err != nil {
		return "", err
	}

	err = tx.Commit()
	if err != nil {
		return "", err
	}
	return from, nil
}
