package audit

import (
	"context"
	"database/sql"
)

// Service is the MySQL-backed Recorder plus the read side used by /logs and
// the operator CLI.
type Service struct {
	store *Store
}

func NewService(conn *sql.DB) *Service {
	return &Service{store: NewStore(conn)}
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	return s.store.Insert(ctx, e)
}

func (s *Service) List(ctx context.Context, f LogFilter, p Page) ([]Log, int64, error) {
	return s.store.List(ctx, f, p)
}
