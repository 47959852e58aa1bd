package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
)

type fakeCheckerStore struct {
	drifts  []Drift
	checked int64
	healed  map[string]bool
	failOn  map[string]error
	fixed   []string
}

func (f *fakeCheckerStore) FindDrifts(context.Context) ([]Drift, error) {
	out := make([]Drift, len(f.drifts))
	copy(out, f.drifts)
	return out, nil
}

func (f *fakeCheckerStore) CountChecked(context.Context) (int64, error) {
	return f.checked, nil
}

func (f *fakeCheckerStore) RepairBook(_ context.Context, bookID string) (*RepairedBook, error) {
	if err := f.failOn[bookID]; err != nil {
		return nil, err
	}
	if f.healed[bookID] {
		return nil, nil
	}
	for _, d := range f.drifts {
		if d.BookID != bookID {
			continue
		}
		f.fixed = append(f.fixed, bookID)
		to := "AVAILABLE"
		if d.Kind == KindAvailableWithActiveLoans {
			to = "LENT"
		}
		return &RepairedBook{BookID: bookID, FromStatus: d.CachedStatus, ToStatus: to}, nil
	}
	return nil, nil
}

type memoryRecorder struct {
	entries []audit.Entry
}

func (r *memoryRecorder) Record(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func driftedStore() *fakeCheckerStore {
	return &fakeCheckerStore{
		checked: 120,
		drifts: []Drift{
			{Kind: KindLentWithoutActiveLoans, BookID: "B002", BookTitle: "Água Viva", CachedStatus: "LENT", ActiveLoanCount: 0},
			{Kind: KindAvailableWithActiveLoans, BookID: "B001", BookTitle: "Macunaíma", CachedStatus: "AVAILABLE", ActiveLoanCount: 1},
			{Kind: KindLentWithoutActiveLoans, BookID: "B003", BookTitle: "angústia", CachedStatus: "LENT", ActiveLoanCount: 0},
		},
		healed: map[string]bool{},
		failOn: map[string]error{},
	}
}

func TestScanClassifiesAndCounts(t *testing.T) {
	svc := newServiceWithStore(driftedStore(), nil)

	report, err := svc.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(120), report.BooksChecked)
	assert.False(t, report.Clean())
	assert.Equal(t, 1, report.FalseFree)
	assert.Equal(t, 2, report.FalseLent)

	// Accent- and case-insensitive title order.
	var titles []string
	for _, d := range report.Drifts {
		titles = append(titles, d.BookTitle)
	}
	assert.Equal(t, []string{"Água Viva", "angústia", "Macunaíma"}, titles)
}

func TestScanCleanCatalog(t *testing.T) {
	store := &fakeCheckerStore{checked: 10, healed: map[string]bool{}, failOn: map[string]error{}}
	svc := newServiceWithStore(store, nil)

	report, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Zero(t, report.FalseFree)
	assert.Zero(t, report.FalseLent)
}

func TestRepairFixesAndAudits(t *testing.T) {
	store := driftedStore()
	rec := &memoryRecorder{}
	svc := newServiceWithStore(store, rec)

	report, err := svc.Repair(context.Background(), Actor{AccountID: "acct-admin"})
	require.NoError(t, err)

	assert.Len(t, report.Repaired, 3)
	assert.Zero(t, report.Skipped)
	require.Len(t, rec.entries, 3)
	for _, e := range rec.entries {
		assert.Equal(t, audit.ActionConsistencia, e.Action)
		assert.Equal(t, "acct-admin", e.ActorID)
		assert.Contains(t, e.Diff, "status")
	}
}

func TestRepairSkipsHealedAndFailedBooks(t *testing.T) {
	store := driftedStore()
	store.healed["B002"] = true
	store.failOn["B003"] = errors.New("lock wait timeout")
	rec := &memoryRecorder{}
	svc := newServiceWithStore(store, rec)

	report, err := svc.Repair(context.Background(), Actor{AccountID: "acct-admin"})
	require.NoError(t, err)

	require.Len(t, report.Repaired, 1)
	assert.Equal(t, "B001", report.Repaired[0].BookID)
	assert.Equal(t, "AVAILABLE", report.Repaired[0].FromStatus)
	assert.Equal(t, "LENT", report.Repaired[0].ToStatus)
	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, rec.entries, 1)
}
