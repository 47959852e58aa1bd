package loans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/catalog"
)

type fakeMember struct {
	active bool
	role   string
}

// fakeStore is an in-memory LoanStore. The mutex stands in for the book row
// lock: every mutation runs under it, so concurrent callers serialize the
// same way they do against the real store.
type fakeStore struct {
	mu       sync.Mutex
	books    map[string]catalog.Status
	members  map[int64]fakeMember
	accounts map[string]int64
	loans    map[int64]*Loan
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:    map[string]catalog.Status{},
		members:  map[int64]fakeMember{},
		accounts: map[string]int64{},
		loans:    map[int64]*Loan{},
	}
}

func (f *fakeStore) activeCountLocked(bookID string, exclude int64) int {
	n := 0
	for id, l := range f.loans {
		if id != exclude && l.BookID == bookID && !l.ReturnDate.Valid {
			n++
		}
	}
	return n
}

func (f *fakeStore) CreateLoan(_ context.Context, m *Loan) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.books[m.BookID]
	if !ok {
		return ErrNotFound("book not found: " + m.BookID)
	}
	if status != catalog.StatusAvailable || f.activeCountLocked(m.BookID, 0) > 0 {
		return ErrAlreadyLent("book " + m.BookID + " is already lent or unavailable")
	}

	borrower, ok := f.members[m.MemberID]
	if !ok {
		return ErrNotFound(fmt.Sprintf("member not found: %d", m.MemberID))
	}
	if !borrower.active {
		return ErrValidation(fmt.Sprintf("member %d is not active", m.MemberID))
	}
	issuer, ok := f.members[m.IssuedBy]
	if !ok {
		return ErrNotFound(fmt.Sprintf("member not found: %d", m.IssuedBy))
	}
	if !issuer.active || (issuer.role != "staff" && issuer.role != "admin") {
		return ErrUnauthorized(fmt.Sprintf("member %d may not issue loans", m.IssuedBy))
	}

	f.nextID++
	m.LoanID = f.nextID
	cp := *m
	f.loans[m.LoanID] = &cp
	f.books[m.BookID] = catalog.StatusLent
	return nil
}

func (f *fakeStore) ReturnLoan(_ context.Context, loanID, receivedBy int64, today time.Time) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.loans[loanID]
	if !ok {
		return nil, ErrNotFound(fmt.Sprintf("loan not found: %d", loanID))
	}
	if l.ReturnDate.Valid {
		return nil, ErrAlreadyReturned(fmt.Sprintf("loan %d is already returned", loanID))
	}

	l.ReturnDate.Time, l.ReturnDate.Valid = today, true
	l.ReceivedBy.Int64, l.ReceivedBy.Valid = receivedBy, true

	if f.activeCountLocked(l.BookID, loanID) == 0 && f.books[l.BookID].LoanRelevant() {
		f.books[l.BookID] = catalog.StatusAvailable
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) RenewLoan(_ context.Context, loanID int64, days int, today time.Time) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.loans[loanID]
	if !ok {
		return nil, ErrNotFound(fmt.Sprintf("loan not found: %d", loanID))
	}
	if l.ReturnDate.Valid {
		return nil, ErrAlreadyReturned(fmt.Sprintf("loan %d is already returned and cannot be renewed", loanID))
	}
	base := l.DueDate
	if base.IsZero() {
		base = today
	}
	l.DueDate = base.AddDate(0, 0, days)
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetByID(_ context.Context, loanID int64) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[loanID]
	if !ok {
		return nil, ErrNotFound(fmt.Sprintf("loan not found: %d", loanID))
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetByULID(_ context.Context, ulid string) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.loans {
		if l.LoanULID == ulid {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound("loan not found: " + ulid)
}

func (f *fakeStore) ActiveForBook(_ context.Context, bookID string) (*Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.loans {
		if l.BookID == bookID && !l.ReturnDate.Valid {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound("no active loan for book " + bookID)
}

func (f *fakeStore) MemberIDForAccount(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.accounts[accountID]
	if !ok {
		return 0, ErrUnauthorized("account is not linked to a member")
	}
	return id, nil
}

func (f *fakeStore) List(_ context.Context, flt LoanFilter, _ Page) ([]Loan, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Loan
	for _, l := range f.loans {
		if flt.BookID != nil && l.BookID != *flt.BookID {
			continue
		}
		if flt.MemberID != nil && l.MemberID != *flt.MemberID {
			continue
		}
		if flt.Active != nil && l.Active() != *flt.Active {
			continue
		}
		out = append(out, *l)
	}
	return out, int64(len(out)), nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    bool
}

func (r *memoryRecorder) Record(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("audit sink is down")
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryRecorder) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestService(store *fakeStore, rec audit.Recorder) *Service {
	return newServiceWithStore(store, rec, Config{LoanDays: 7, RenewDays: 7})
}

func seed(store *fakeStore) {
	store.books["B001"] = catalog.StatusAvailable
	store.members[1] = fakeMember{active: true, role: "member"}
	store.members[2] = fakeMember{active: true, role: "staff"}
	store.members[3] = fakeMember{active: false, role: "member"}
	store.accounts["acct-staff"] = 2
	store.accounts["acct-member"] = 1
}

func TestCreateLoanSingleWinnerUnderContention(t *testing.T) {
	store := newFakeStore()
	seed(store)
	rec := &memoryRecorder{}
	svc := newTestService(store, rec)
	actor := Actor{AccountID: "acct-staff"}

	const n = 32
	results := make(chan error, n)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < n; i++ {
		go func() {
			start.Wait()
			_, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
			results <- err
		}()
	}
	start.Done()

	var wins, conflicts int
	for i := 0; i < n; i++ {
		err := <-results
		if err == nil {
			wins++
			continue
		}
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, CodeAlreadyLent, apiErr.Code)
		conflicts++
	}

	assert.Equal(t, 1, wins, "exactly one request must win the book")
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, catalog.StatusLent, store.books["B001"])
	assert.Len(t, rec.actions(), 1)
}

func TestLoanRoundTrip(t *testing.T) {
	store := newFakeStore()
	seed(store)
	rec := &memoryRecorder{}
	svc := newTestService(store, rec)
	actor := Actor{AccountID: "acct-staff"}

	created, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.Equal(t, int64(2), created.IssuedBy)
	assert.Equal(t, catalog.StatusLent, store.books["B001"])

	returned, err := svc.ReturnLoan(context.Background(), actor, fmt.Sprint(created.LoanID))
	require.NoError(t, err)
	assert.False(t, returned.Active)
	require.NotNil(t, returned.ReceivedBy)
	assert.Equal(t, int64(2), *returned.ReceivedBy)
	assert.Equal(t, catalog.StatusAvailable, store.books["B001"])

	_, err = svc.ReturnLoan(context.Background(), actor, fmt.Sprint(created.LoanID))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeAlreadyReturned, apiErr.Code)

	assert.Equal(t, []audit.Action{audit.ActionEmprestimo, audit.ActionDevolucao}, rec.actions())
}

func TestReturnedBookCanBeLentAgain(t *testing.T) {
	store := newFakeStore()
	seed(store)
	svc := newTestService(store, &memoryRecorder{})
	actor := Actor{AccountID: "acct-staff"}

	first, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
	require.NoError(t, err)
	_, err = svc.ReturnLoan(context.Background(), actor, first.LoanULID)
	require.NoError(t, err)

	second, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
	require.NoError(t, err)
	assert.NotEqual(t, first.LoanULID, second.LoanULID)
}

func TestRenewLoanExtendsDueDate(t *testing.T) {
	store := newFakeStore()
	seed(store)
	svc := newTestService(store, &memoryRecorder{})
	actor := Actor{AccountID: "acct-staff"}

	created, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
	require.NoError(t, err)

	renewed, err := svc.RenewLoan(context.Background(), actor, fmt.Sprint(created.LoanID), RenewLoanRequest{})
	require.NoError(t, err)

	due, err := time.Parse(dateLayout, created.DueDate)
	require.NoError(t, err)
	newDue, err := time.Parse(dateLayout, renewed.DueDate)
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 0, 7), newDue)
}

func TestRenewReturnedLoanFails(t *testing.T) {
	store := newFakeStore()
	seed(store)
	svc := newTestService(store, &memoryRecorder{})
	actor := Actor{AccountID: "acct-staff"}

	created, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
	require.NoError(t, err)
	_, err = svc.ReturnLoan(context.Background(), actor, fmt.Sprint(created.LoanID))
	require.NoError(t, err)

	_, err = svc.RenewLoan(context.Background(), actor, fmt.Sprint(created.LoanID), RenewLoanRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeAlreadyReturned, apiErr.Code)

	after, err := svc.GetLoan(context.Background(), fmt.Sprint(created.LoanID))
	require.NoError(t, err)
	assert.Equal(t, created.DueDate, after.DueDate, "a failed renewal must not move the due date")
}

func TestCreateLoanRejections(t *testing.T) {
	store := newFakeStore()
	seed(store)
	svc := newTestService(store, &memoryRecorder{})
	staff := Actor{AccountID: "acct-staff"}

	cases := []struct {
		name string
		act  Actor
		req  CreateLoanRequest
		code Code
	}{
		{"missing book", staff, CreateLoanRequest{MemberID: 1}, CodeValidationFailed},
		{"missing member", staff, CreateLoanRequest{BookID: "B001"}, CodeValidationFailed},
		{"negative days", staff, CreateLoanRequest{BookID: "B001", MemberID: 1, Days: ptr(-1)}, CodeValidationFailed},
		{"unknown book", staff, CreateLoanRequest{BookID: "NOPE", MemberID: 1}, CodeNotFound},
		{"unknown member", staff, CreateLoanRequest{BookID: "B001", MemberID: 99}, CodeNotFound},
		{"inactive member", staff, CreateLoanRequest{BookID: "B001", MemberID: 3}, CodeValidationFailed},
		{"issuer without role", Actor{AccountID: "acct-member"}, CreateLoanRequest{BookID: "B001", MemberID: 1}, CodeUnauthorized},
		{"unlinked account", Actor{AccountID: "ghost"}, CreateLoanRequest{BookID: "B001", MemberID: 1}, CodeUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateLoan(context.Background(), tc.act, tc.req)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
}

func TestAuditFailureDoesNotFailLoan(t *testing.T) {
	store := newFakeStore()
	seed(store)
	svc := newTestService(store, &memoryRecorder{fail: true})
	actor := Actor{AccountID: "acct-staff"}

	created, err := svc.CreateLoan(context.Background(), actor, CreateLoanRequest{BookID: "B001", MemberID: 1})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusLent, store.books["B001"])

	_, err = svc.ReturnLoan(context.Background(), actor, fmt.Sprint(created.LoanID))
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAvailable, store.books["B001"])
}

func TestToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrValidation("x"), http.StatusBadRequest},
		{ErrNotFound("x"), http.StatusNotFound},
		{ErrAlreadyLent("x"), http.StatusConflict},
		{ErrAlreadyReturned("x"), http.StatusConflict},
		{ErrLockTimeout("x"), http.StatusServiceUnavailable},
		{ErrUnauthorized("x"), http.StatusForbidden},
		{ErrInternal("x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToHTTPStatus(tc.err))
	}
}

func ptr[T any](v T) *T { return &v }
