package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn}
}

const memberColumns = `member_id, account_id, name, birthday, active, role, created_at`

func scanMember(row interface{ Scan(dest ...any) error }) (*Member, error) {
	var m Member
	if err := row.Scan(&m.MemberID, &m.AccountID, &m.Name, &m.Birthday, &m.Active, &m.Role, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) Insert(ctx context.Context, m *Member) error {
	const q = `INSERT INTO member (account_id, name, birthday, active, role) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, m.AccountID, m.Name, m.Birthday, m.Active, m.Role)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.MemberID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, memberID int64) (*Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM member WHERE member_id = ?`, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound(fmt.Sprintf("member not found: %d", memberID))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) GetByAccountID(ctx context.Context, accountID string) (*Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM member WHERE account_id = ?`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("no member linked to this account")
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Update applies only the provided fields.
func (s *Store) Update(ctx context.Context, memberID int64, name *string, birthday *time.Time, role *string, active *bool) (*Member, error) {
	var sets []string
	var args []any

	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *name)
	}
	if birthday != nil {
		sets = append(sets, "birthday = ?")
		args = append(args, *birthday)
	}
	if role != nil {
		sets = append(sets, "role = ?")
		args = append(args, *role)
	}
	if active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *active)
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, memberID)
	}

	args = append(args, memberID)
	query := "UPDATE member SET " + strings.Join(sets, ", ") + " WHERE member_id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Zero rows can mean a no-op update; confirm existence.
		return s.GetByID(ctx, memberID)
	}
	return s.GetByID(ctx, memberID)
}

func (s *Store) List(ctx context.Context, f MemberFilter, p Page) ([]Member, int64, error) {
	var where []string
	var args []any

	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, *f.Active)
	}
	if f.Role != nil {
		where = append(where, "role = ?")
		args = append(args, *f.Role)
	}
	if f.Search != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	var b strings.Builder
	b.WriteString("SELECT " + memberColumns + " FROM member")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY name ")
	if strings.EqualFold(p.Order, "desc") {
		b.WriteString("DESC")
	} else {
		b.WriteString("ASC")
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	listArgs := append(append([]any{}, args...), p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, b.String(), listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	count := "SELECT COUNT(*) FROM member"
	if len(where) > 0 {
		count += " WHERE " + strings.Join(where, " AND ")
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, count, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// HasActiveLoans reports whether the member currently holds any open loan.
func (s *Store) HasActiveLoans(ctx context.Context, memberID int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM loan WHERE member_id = ? AND return_date IS NULL`
	var n int
	if err := s.db.QueryRowContext(ctx, q, memberID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
