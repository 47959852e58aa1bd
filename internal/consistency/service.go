package consistency

import (
	"context"
	"database/sql"
	"log"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
)

// CheckerStore is the persistence contract of the checker.
type CheckerStore interface {
	FindDrifts(ctx context.Context) ([]Drift, error)
	CountChecked(ctx context.Context) (int64, error)
	RepairBook(ctx context.Context, bookID string) (*RepairedBook, error)
}

type Service struct {
	store    CheckerStore
	recorder audit.Recorder
	coll     *collate.Collator
}

func NewService(conn *sql.DB, recorder audit.Recorder, lockWait time.Duration) *Service {
	return newServiceWithStore(NewStore(conn, lockWait), recorder)
}

func newServiceWithStore(store CheckerStore, recorder audit.Recorder) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		coll:     collate.New(language.BrazilianPortuguese),
	}
}

type Actor struct {
	AccountID string
	Client    audit.ClientContext
}

// Scan is read-only: it reports drift without touching anything, so it is
// safe to run at any time, including while loans are being processed. A book
// mutated mid-scan can show as drift; Repair re-verifies under the row lock.
func (s *Service) Scan(ctx context.Context) (*ScanReport, error) {
	checked, err := s.store.CountChecked(ctx)
	if err != nil {
		return nil, err
	}
	drifts, err := s.store.FindDrifts(ctx)
	if err != nil {
		return nil, err
	}

	// Titles sort the way the shelves are labeled.
	sort.SliceStable(drifts, func(i, j int) bool {
		if c := s.coll.CompareString(drifts[i].BookTitle, drifts[j].BookTitle); c != 0 {
			return c < 0
		}
		return drifts[i].BookID < drifts[j].BookID
	})

	report := &ScanReport{
		ScannedAt:    time.Now().UTC(),
		BooksChecked: checked,
		Drifts:       drifts,
	}
	for _, d := range drifts {
		switch d.Kind {
		case KindAvailableWithActiveLoans:
			report.FalseFree++
		case KindLentWithoutActiveLoans:
			report.FalseLent++
		}
	}
	return report, nil
}

// Repair scans and then corrects each drifted book one at a time, each under
// its own row lock and transaction. A failure on one book does not stop the
// run; it is logged and the book is skipped.
func (s *Service) Repair(ctx context.Context, actor Actor) (*RepairReport, error) {
	scan, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{ScannedAt: scan.ScannedAt, Repaired: []RepairedBook{}}
	for _, d := range scan.Drifts {
		fixed, err := s.store.RepairBook(ctx, d.BookID)
		if err != nil {
			log.Printf("[WARN] repair failed: book=%s err=%v", d.BookID, err)
			report.Skipped++
			continue
		}
		if fixed == nil {
			report.Skipped++
			continue
		}
		report.Repaired = append(report.Repaired, *fixed)
		s.record(ctx, actor, fixed)
	}
	return report, nil
}

func (s *Service) record(ctx context.Context, actor Actor, fixed *RepairedBook) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, audit.Entry{
		ActorID:      actor.AccountID,
		Action:       audit.ActionConsistencia,
		ResourceType: "book",
		ResourceID:   fixed.BookID,
		Success:      true,
		Message:      "status corrected from ledger",
		Diff: map[string]audit.Change{
			"status": {Before: fixed.FromStatus, After: fixed.ToStatus},
		},
		Client: actor.Client,
	})
	if err != nil {
		log.Printf("[WARN] audit record failed: book=%s err=%v", fixed.BookID, err)
	}
}
