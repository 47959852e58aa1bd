package auth

import (
	"context"
	"database/sql"
	"errors"
)

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	IsDisabled   bool
	CreatedAt    string
}

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	SetDisabled(ctx context.Context, id string, disabled bool) (int64, error)
	RoleForAccount(ctx context.Context, accountID string) (string, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) AccountStore {
	return &Store{db: conn}
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT id, username, password_hash, is_disabled, created_at
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*Account, error) {
	const q = `
SELECT id, username, password_hash, is_disabled, created_at
FROM auth_accounts
WHERE username = ?
LIMIT 1
`
	return s.scanOne(s.db.QueryRowContext(ctx, q, username))
}

func (s *Store) scanOne(row *sql.Row) (*Account, error) {
	var a Account
	var isDisabledInt int
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &isDisabledInt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if isDisabledInt != 0 {
		a.IsDisabled = true
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, username, password_hash, is_disabled)
VALUES (?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.Username, a.PasswordHash, a.IsDisabled)
	return err
}

func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) (int64, error) {
	const q = `UPDATE auth_accounts SET is_disabled = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, disabled, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RoleForAccount resolves the domain role of the member linked to an identity
// account. Accounts with no member row get the plain member role.
func (s *Store) RoleForAccount(ctx context.Context, accountID string) (string, error) {
	const q = `SELECT role FROM member WHERE account_id = ? LIMIT 1`
	var role string
	err := s.db.QueryRowContext(ctx, q, accountID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "member", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}
