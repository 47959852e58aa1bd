package catalog

import (
	"context"
	"database/sql"
	"log"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
)

// BookStore is the persistence surface the service needs; the MySQL Store is
// the production implementation.
type BookStore interface {
	Insert(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id string) (*Book, error)
	Update(ctx context.Context, id string, in UpdateBookRequest) (*Book, error)
	List(ctx context.Context, f BookFilter, p Page) ([]Book, int64, error)
	ChangeStatus(ctx context.Context, id string, to Status) (Status, error)
}

type Service struct {
	store    BookStore
	recorder audit.Recorder
}

func NewService(conn *sql.DB, recorder audit.Recorder) *Service {
	return &Service{store: NewStore(conn), recorder: recorder}
}

func newServiceWithStore(store BookStore, recorder audit.Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// Actor identifies who performs a mutation, for audit purposes.
type Actor struct {
	AccountID string
	Client    audit.ClientContext
}

func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest, actor Actor) (*Book, error) {
	if len(req.ID) > 10 {
		return nil, ErrInvalid("book id must be at most 10 characters")
	}
	if req.Year <= 0 {
		return nil, ErrInvalid("year must be > 0")
	}

	b := &Book{
		ID:     req.ID,
		Title:  req.Title,
		Author: req.Author,
		Year:   req.Year,
		Status: StatusAvailable,
	}
	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}

	created, err := s.store.GetByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionCreate, created.ID, "book created", nil)
	return created, nil
}

func (s *Service) GetBook(ctx context.Context, id string) (*Book, error) {
	if id == "" {
		return nil, ErrInvalid("book id is required")
	}
	return s.store.GetByID(ctx, id)
}

func (s *Service) UpdateBook(ctx context.Context, id string, req UpdateBookRequest, actor Actor) (*Book, error) {
	if id == "" {
		return nil, ErrInvalid("book id is required")
	}
	if req.Year != nil && *req.Year <= 0 {
		return nil, ErrInvalid("year must be > 0")
	}

	before, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	diff := audit.Diff(
		map[string]any{"title": before.Title, "author": before.Author, "year": before.Year},
		map[string]any{"title": updated.Title, "author": updated.Author, "year": updated.Year},
		"title", "author", "year",
	)
	s.record(ctx, actor, audit.ActionUpdate, id, "book updated", diff)
	return updated, nil
}

func (s *Service) ListBooks(ctx context.Context, f BookFilter, p Page) (ListResult, error) {
	if f.Status != nil && !f.Status.Valid() {
		return ListResult{}, ErrInvalid("unknown status filter")
	}
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Book{}
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}

// ChangeStatus is catalog maintenance: WITHDRAWN, DONATED, LOST, or back to
// AVAILABLE. LENT is never settable here; it only exists as a consequence of
// lending.
func (s *Service) ChangeStatus(ctx context.Context, id string, req ChangeStatusRequest, actor Actor) (*Book, error) {
	if id == "" {
		return nil, ErrInvalid("book id is required")
	}
	if !req.Status.Valid() {
		return nil, ErrInvalid("unknown status: " + string(req.Status))
	}
	if req.Status == StatusLent {
		return nil, ErrInvalid("LENT is derived from the loan ledger and cannot be set directly")
	}

	from, err := s.store.ChangeStatus(ctx, id, req.Status)
	if err != nil {
		return nil, err
	}

	msg := "book status changed"
	if req.Reason != "" {
		msg = msg + ": " + req.Reason
	}
	diff := audit.Diff(
		map[string]any{"status": string(from)},
		map[string]any{"status": string(req.Status)},
		"status",
	)
	s.record(ctx, actor, audit.ActionUpdate, id, msg, diff)

	return s.store.GetByID(ctx, id)
}

func (s *Service) record(ctx context.Context, actor Actor, action audit.Action, bookID, msg string, diff map[string]audit.Change) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, audit.Entry{
		ActorID:      actor.AccountID,
		Action:       action,
		ResourceType: "book",
		ResourceID:   bookID,
		Success:      true,
		Message:      msg,
		Diff:         diff,
		Client:       actor.Client,
	}); err != nil {
		log.Printf("[WARN] audit record failed: %v", err)
	}
}
