package members

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
)

type fakeMemberStore struct {
	members     map[int64]*Member
	activeLoans map[int64]int
	nextID      int64
}

func newFakeMemberStore() *fakeMemberStore {
	return &fakeMemberStore{members: map[int64]*Member{}, activeLoans: map[int64]int{}}
}

func (f *fakeMemberStore) Insert(_ context.Context, m *Member) error {
	f.nextID++
	m.MemberID = f.nextID
	cp := *m
	f.members[m.MemberID] = &cp
	return nil
}

func (f *fakeMemberStore) GetByID(_ context.Context, id int64) (*Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, ErrNotFound("member not found")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemberStore) GetByAccountID(_ context.Context, accountID string) (*Member, error) {
	for _, m := range f.members {
		if m.AccountID.Valid && m.AccountID.String == accountID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound("no member linked to this account")
}

func (f *fakeMemberStore) Update(_ context.Context, id int64, name *string, birthday *time.Time, role *string, active *bool) (*Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, ErrNotFound("member not found")
	}
	if name != nil {
		m.Name = *name
	}
	if birthday != nil {
		m.Birthday = sql.NullTime{Time: *birthday, Valid: true}
	}
	if role != nil {
		m.Role = *role
	}
	if active != nil {
		m.Active = *active
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemberStore) List(_ context.Context, flt MemberFilter, _ Page) ([]Member, int64, error) {
	var out []Member
	for _, m := range f.members {
		if flt.Active != nil && m.Active != *flt.Active {
			continue
		}
		if flt.Role != nil && m.Role != *flt.Role {
			continue
		}
		out = append(out, *m)
	}
	return out, int64(len(out)), nil
}

func (f *fakeMemberStore) HasActiveLoans(_ context.Context, id int64) (bool, error) {
	return f.activeLoans[id] > 0, nil
}

type fakeAccounts struct {
	registered map[string]string
	disabled   map[string]bool
	nextID     int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{registered: map[string]string{}, disabled: map[string]bool{}}
}

func (f *fakeAccounts) Register(_ context.Context, username, _ string) (string, error) {
	if _, ok := f.registered[username]; ok {
		return "", auth.ErrAlreadyExists
	}
	f.nextID++
	id := "acct-" + username
	f.registered[username] = id
	return id, nil
}

func (f *fakeAccounts) Disable(_ context.Context, id string) error {
	f.disabled[id] = true
	return nil
}

type memoryRecorder struct {
	entries []audit.Entry
}

func (r *memoryRecorder) Record(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestCreateMember(t *testing.T) {
	store := newFakeMemberStore()
	accounts := newFakeAccounts()
	rec := &memoryRecorder{}
	svc := newServiceWithStore(store, accounts, rec)

	resp, err := svc.CreateMember(context.Background(), Actor{AccountID: "acct-admin"}, CreateMemberRequest{
		Name: "Clarice", Birthday: "1990-12-10",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleMember, resp.Role)
	assert.True(t, resp.Active)
	assert.False(t, resp.HasLogin)
	require.NotNil(t, resp.Birthday)
	assert.Equal(t, "1990-12-10", *resp.Birthday)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.ActionCreate, rec.entries[0].Action)
}

func TestCreateMemberWithLogin(t *testing.T) {
	store := newFakeMemberStore()
	accounts := newFakeAccounts()
	svc := newServiceWithStore(store, accounts, nil)

	resp, err := svc.CreateMember(context.Background(), Actor{}, CreateMemberRequest{
		Name: "Graciliano", Role: RoleStaff, Username: "graciliano", Password: "s3cret",
	})
	require.NoError(t, err)
	assert.True(t, resp.HasLogin)
	assert.Equal(t, RoleStaff, resp.Role)

	me, err := svc.Me(context.Background(), "acct-graciliano")
	require.NoError(t, err)
	assert.Equal(t, resp.MemberID, me.MemberID)
}

func TestCreateMemberValidation(t *testing.T) {
	svc := newServiceWithStore(newFakeMemberStore(), newFakeAccounts(), nil)

	cases := []struct {
		name string
		req  CreateMemberRequest
		code Code
	}{
		{"missing name", CreateMemberRequest{}, CodeInvalidArgument},
		{"bad role", CreateMemberRequest{Name: "x", Role: "root"}, CodeInvalidArgument},
		{"bad birthday", CreateMemberRequest{Name: "x", Birthday: "10/12/1990"}, CodeInvalidArgument},
		{"username without password", CreateMemberRequest{Name: "x", Username: "x"}, CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateMember(context.Background(), Actor{}, tc.req)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
}

func TestCreateMemberDuplicateUsername(t *testing.T) {
	svc := newServiceWithStore(newFakeMemberStore(), newFakeAccounts(), nil)

	_, err := svc.CreateMember(context.Background(), Actor{}, CreateMemberRequest{
		Name: "a", Username: "shared", Password: "p",
	})
	require.NoError(t, err)

	_, err = svc.CreateMember(context.Background(), Actor{}, CreateMemberRequest{
		Name: "b", Username: "shared", Password: "p",
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeConflict, apiErr.Code)
}

func TestUpdateMemberRefusesDeactivationWithActiveLoans(t *testing.T) {
	store := newFakeMemberStore()
	svc := newServiceWithStore(store, newFakeAccounts(), nil)

	resp, err := svc.CreateMember(context.Background(), Actor{}, CreateMemberRequest{Name: "Leitora"})
	require.NoError(t, err)
	store.activeLoans[resp.MemberID] = 1

	off := false
	_, err = svc.UpdateMember(context.Background(), Actor{}, resp.MemberID, UpdateMemberRequest{Active: &off})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeConflict, apiErr.Code)

	got, err := svc.GetMember(context.Background(), resp.MemberID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestDeactivateMemberDisablesLogin(t *testing.T) {
	store := newFakeMemberStore()
	accounts := newFakeAccounts()
	rec := &memoryRecorder{}
	svc := newServiceWithStore(store, accounts, rec)

	resp, err := svc.CreateMember(context.Background(), Actor{}, CreateMemberRequest{
		Name: "Saindo", Username: "saindo", Password: "p",
	})
	require.NoError(t, err)

	got, err := svc.DeactivateMember(context.Background(), Actor{AccountID: "acct-admin"}, resp.MemberID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, accounts.disabled["acct-saindo"])
}

func TestUpdateMemberAuditsDiff(t *testing.T) {
	store := newFakeMemberStore()
	rec := &memoryRecorder{}
	svc := newServiceWithStore(store, newFakeAccounts(), rec)

	resp, err := svc.CreateMember(context.Background(), Actor{}, CreateMemberRequest{Name: "Ana"})
	require.NoError(t, err)

	role := RoleStaff
	_, err = svc.UpdateMember(context.Background(), Actor{}, resp.MemberID, UpdateMemberRequest{Role: &role})
	require.NoError(t, err)

	require.Len(t, rec.entries, 2)
	diff := rec.entries[1].Diff
	require.Contains(t, diff, "role")
	assert.Equal(t, RoleMember, diff["role"].Before)
	assert.Equal(t, RoleStaff, diff["role"].After)
}
