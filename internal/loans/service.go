package loans

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
)

// Clock abstracts wall time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// IDGen issues the public loan identifiers.
type IDGen interface {
	NewULID() string
}

type ulidGen struct {
	entropy *ulid.MonotonicEntropy
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)}
}

func (g *ulidGen) NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// LoanStore is the persistence contract of the ledger. The implementation
// owns transaction boundaries and locking.
type LoanStore interface {
	CreateLoan(ctx context.Context, l *Loan) error
	ReturnLoan(ctx context.Context, loanID int64, receivedBy int64, today time.Time) (*Loan, error)
	RenewLoan(ctx context.Context, loanID int64, extensionDays int, today time.Time) (*Loan, error)
	GetByID(ctx context.Context, loanID int64) (*Loan, error)
	GetByULID(ctx context.Context, ulid string) (*Loan, error)
	ActiveForBook(ctx context.Context, bookID string) (*Loan, error)
	MemberIDForAccount(ctx context.Context, accountID string) (int64, error)
	List(ctx context.Context, f LoanFilter, p Page) ([]Loan, int64, error)
}

type Config struct {
	LoanDays  int
	RenewDays int
}

type Service struct {
	store    LoanStore
	recorder audit.Recorder
	clock    Clock
	id       IDGen
	cfg      Config
}

func NewService(conn *sql.DB, recorder audit.Recorder, lockWait time.Duration, cfg Config) *Service {
	return newServiceWithStore(NewStore(conn, lockWait), recorder, cfg)
}

func newServiceWithStore(store LoanStore, recorder audit.Recorder, cfg Config) *Service {
	if cfg.LoanDays <= 0 {
		cfg.LoanDays = 7
	}
	if cfg.RenewDays <= 0 {
		cfg.RenewDays = 7
	}
	return &Service{
		store:    store,
		recorder: recorder,
		clock:    realClock{},
		id:       newULIDGen(),
		cfg:      cfg,
	}
}

// Actor identifies who performs a mutation for audit and authorization.
type Actor struct {
	AccountID string
	Client    audit.ClientContext
}

func (s *Service) today() time.Time {
	now := s.clock.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateLoan validates the request, resolves the issuing member from the
// session account, and delegates the conflict checks to the store's locking
// transaction. Exactly one of N concurrent requests for the same book wins.
func (s *Service) CreateLoan(ctx context.Context, actor Actor, req CreateLoanRequest) (*LoanResponse, error) {
	if req.BookID == "" {
		return nil, ErrValidation("book_id is required")
	}
	if req.MemberID <= 0 {
		return nil, ErrValidation("member_id is required")
	}
	days := s.cfg.LoanDays
	if req.Days != nil {
		if *req.Days <= 0 {
			return nil, ErrValidation("days must be positive")
		}
		days = *req.Days
	}

	issuerID, err := s.store.MemberIDForAccount(ctx, actor.AccountID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	loan := &Loan{
		LoanULID: s.id.NewULID(),
		BookID:   req.BookID,
		MemberID: req.MemberID,
		IssuedBy: issuerID,
		LoanDate: today,
		DueDate:  today.AddDate(0, 0, days),
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		Action:       audit.ActionEmprestimo,
		ActorID:      actor.AccountID,
		ResourceType: "loan",
		ResourceID:   loan.LoanULID,
		Success:      true,
		Message:      fmt.Sprintf("book %s lent to member %d until %s", loan.BookID, loan.MemberID, loan.DueDate.Format(dateLayout)),
		Client:       actor.Client,
	})

	resp := toResponse(loan)
	return &resp, nil
}

// ReturnLoan closes the loan identified by id or ULID.
func (s *Service) ReturnLoan(ctx context.Context, actor Actor, key string) (*LoanResponse, error) {
	loan, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	receiverID, err := s.store.MemberIDForAccount(ctx, actor.AccountID)
	if err != nil {
		return nil, err
	}

	returned, err := s.store.ReturnLoan(ctx, loan.LoanID, receiverID, s.today())
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		Action:       audit.ActionDevolucao,
		ActorID:      actor.AccountID,
		ResourceType: "loan",
		ResourceID:   returned.LoanULID,
		Success:      true,
		Message:      fmt.Sprintf("book %s returned by member %d", returned.BookID, returned.MemberID),
		Client:       actor.Client,
	})

	resp := toResponse(returned)
	return &resp, nil
}

// RenewLoan extends an active loan's due date.
func (s *Service) RenewLoan(ctx context.Context, actor Actor, key string, req RenewLoanRequest) (*LoanResponse, error) {
	days := s.cfg.RenewDays
	if req.Days != nil {
		if *req.Days <= 0 {
			return nil, ErrValidation("days must be positive")
		}
		days = *req.Days
	}

	loan, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	renewed, err := s.store.RenewLoan(ctx, loan.LoanID, days, s.today())
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		Action:       audit.ActionRenovacao,
		ActorID:      actor.AccountID,
		ResourceType: "loan",
		ResourceID:   renewed.LoanULID,
		Success:      true,
		Message:      fmt.Sprintf("loan of book %s renewed until %s", renewed.BookID, renewed.DueDate.Format(dateLayout)),
		Client:       actor.Client,
	})

	resp := toResponse(renewed)
	return &resp, nil
}

func (s *Service) GetLoan(ctx context.Context, key string) (*LoanResponse, error) {
	loan, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := toResponse(loan)
	return &resp, nil
}

func (s *Service) ActiveForBook(ctx context.Context, bookID string) (*LoanResponse, error) {
	loan, err := s.store.ActiveForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(loan)
	return &resp, nil
}

func (s *Service) MemberIDForAccount(ctx context.Context, accountID string) (int64, error) {
	return s.store.MemberIDForAccount(ctx, accountID)
}

func (s *Service) ListLoans(ctx context.Context, f LoanFilter, p Page) (*ListResult, error) {
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	out := make([]LoanResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return &ListResult{Items: out, Total: total, NextOffset: p.Offset + len(out)}, nil
}

// getByKey accepts a numeric loan id or a 26-char ULID.
func (s *Service) getByKey(ctx context.Context, key string) (*Loan, error) {
	if key == "" {
		return nil, ErrValidation("loan key is required")
	}
	if id, ok := parseNumericID(key); ok {
		return s.store.GetByID(ctx, id)
	}
	if len(key) == 26 {
		return s.store.GetByULID(ctx, key)
	}
	return nil, ErrValidation("loan key must be a numeric id or a ULID")
}

func parseNumericID(s string) (int64, bool) {
	var id int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		id = id*10 + int64(r-'0')
	}
	if s == "" {
		return 0, false
	}
	return id, true
}

// record writes an audit entry best-effort; ledger mutations never fail
// because the audit write failed.
func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, e); err != nil {
		log.Printf("[WARN] audit record failed: action=%s target=%s err=%v", e.Action, e.ResourceID, err)
	}
}
