package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
)

// MemberStore is the persistence contract of the directory.
type MemberStore interface {
	Insert(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, memberID int64) (*Member, error)
	GetByAccountID(ctx context.Context, accountID string) (*Member, error)
	Update(ctx context.Context, memberID int64, name *string, birthday *time.Time, role *string, active *bool) (*Member, error)
	List(ctx context.Context, f MemberFilter, p Page) ([]Member, int64, error)
	HasActiveLoans(ctx context.Context, memberID int64) (bool, error)
}

// Accounts is the slice of the identity service the directory needs.
type Accounts interface {
	Register(ctx context.Context, username, password string) (string, error)
	Disable(ctx context.Context, id string) error
}

type Service struct {
	store    MemberStore
	accounts Accounts
	recorder audit.Recorder
}

func NewService(conn *sql.DB, accounts Accounts, recorder audit.Recorder) *Service {
	return newServiceWithStore(NewStore(conn), accounts, recorder)
}

func newServiceWithStore(store MemberStore, accounts Accounts, recorder audit.Recorder) *Service {
	return &Service{store: store, accounts: accounts, recorder: recorder}
}

type Actor struct {
	AccountID string
	Client    audit.ClientContext
}

const dateLayout = "2006-01-02"

// CreateMember registers a member and, when credentials are given, a linked
// login account.
func (s *Service) CreateMember(ctx context.Context, actor Actor, req CreateMemberRequest) (*MemberResponse, error) {
	if req.Name == "" {
		return nil, ErrInvalid("name is required")
	}
	role := req.Role
	if role == "" {
		role = RoleMember
	}
	if !ValidRole(role) {
		return nil, ErrInvalid("role must be one of member, staff, admin")
	}
	if (req.Username == "") != (req.Password == "") {
		return nil, ErrInvalid("username and password must be given together")
	}

	m := &Member{Name: req.Name, Active: true, Role: role}

	if req.Birthday != "" {
		t, err := time.Parse(dateLayout, req.Birthday)
		if err != nil {
			return nil, ErrInvalid("birthday must be YYYY-MM-DD")
		}
		m.Birthday = sql.NullTime{Time: t, Valid: true}
	}

	if req.Username != "" {
		accountID, err := s.accounts.Register(ctx, req.Username, req.Password)
		if errors.Is(err, auth.ErrAlreadyExists) {
			return nil, ErrConflict("username already taken: " + req.Username)
		}
		if err != nil {
			return nil, err
		}
		m.AccountID = sql.NullString{String: accountID, Valid: true}
	}

	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}

	s.record(ctx, actor, audit.ActionCreate, m.MemberID, "member registered: "+m.Name, nil)

	resp := toResponse(m)
	return &resp, nil
}

func (s *Service) GetMember(ctx context.Context, memberID int64) (*MemberResponse, error) {
	m, err := s.store.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(m)
	return &resp, nil
}

// Me resolves the member bound to the calling session's account.
func (s *Service) Me(ctx context.Context, accountID string) (*MemberResponse, error) {
	m, err := s.store.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(m)
	return &resp, nil
}

// UpdateMember applies partial changes. Deactivating a member is refused
// while they hold active loans; the loans have to come back first.
func (s *Service) UpdateMember(ctx context.Context, actor Actor, memberID int64, req UpdateMemberRequest) (*MemberResponse, error) {
	before, err := s.store.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if req.Role != nil && !ValidRole(*req.Role) {
		return nil, ErrInvalid("role must be one of member, staff, admin")
	}

	var birthday *time.Time
	if req.Birthday != nil {
		t, err := time.Parse(dateLayout, *req.Birthday)
		if err != nil {
			return nil, ErrInvalid("birthday must be YYYY-MM-DD")
		}
		birthday = &t
	}

	if req.Active != nil && !*req.Active && before.Active {
		busy, err := s.store.HasActiveLoans(ctx, memberID)
		if err != nil {
			return nil, err
		}
		if busy {
			return nil, ErrConflict(fmt.Sprintf("member %d still holds active loans", memberID))
		}
	}

	after, err := s.store.Update(ctx, memberID, req.Name, birthday, req.Role, req.Active)
	if err != nil {
		return nil, err
	}

	diff := audit.Diff(
		map[string]any{"name": before.Name, "role": before.Role, "active": before.Active},
		map[string]any{"name": after.Name, "role": after.Role, "active": after.Active},
		"name", "role", "active",
	)
	s.record(ctx, actor, audit.ActionUpdate, memberID, "member updated", diff)

	resp := toResponse(after)
	return &resp, nil
}

func (s *Service) ListMembers(ctx context.Context, f MemberFilter, p Page) (*ListResult, error) {
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	out := make([]MemberResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return &ListResult{Items: out, Total: total, NextOffset: p.Offset + len(out)}, nil
}

// DeactivateMember flips the member inactive and disables their login.
func (s *Service) DeactivateMember(ctx context.Context, actor Actor, memberID int64) (*MemberResponse, error) {
	off := false
	resp, err := s.UpdateMember(ctx, actor, memberID, UpdateMemberRequest{Active: &off})
	if err != nil {
		return nil, err
	}

	m, err := s.store.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m.AccountID.Valid {
		if err := s.accounts.Disable(ctx, m.AccountID.String); err != nil && !errors.Is(err, auth.ErrNotFound) {
			return nil, err
		}
	}
	return resp, nil
}

func (s *Service) record(ctx context.Context, actor Actor, action audit.Action, memberID int64, msg string, diff map[string]audit.Change) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, audit.Entry{
		ActorID:      actor.AccountID,
		Action:       action,
		ResourceType: "member",
		ResourceID:   fmt.Sprintf("%d", memberID),
		Success:      true,
		Message:      msg,
		Diff:         diff,
		Client:       actor.Client,
	})
	if err != nil {
		log.Printf("[WARN] audit record failed: action=%s member=%d err=%v", action, memberID, err)
	}
}
