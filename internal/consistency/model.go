package consistency

import "time"

// DriftKind classifies a disagreement between a book's cached status and the
// loan ledger.
type DriftKind string

const (
	// The status says the shelf copy is free, but the ledger holds at least
	// one open loan for it.
	KindAvailableWithActiveLoans DriftKind = "AVAILABLE_WITH_ACTIVE_LOANS"

	// The status says lent, but no open loan exists.
	KindLentWithoutActiveLoans DriftKind = "LENT_WITHOUT_ACTIVE_LOANS"
)

// Drift is one inconsistent book as found by a scan.
type Drift struct {
	Kind            DriftKind `json:"kind" db:"-"`
	BookID          string    `json:"book_id" db:"book_id"`
	BookTitle       string    `json:"book_title" db:"title"`
	CachedStatus    string    `json:"cached_status" db:"status"`
	ActiveLoanCount int       `json:"active_loan_count" db:"active_loans"`
	Suggestion      string    `json:"suggestion" db:"-"`
}

// ScanReport is the outcome of one full pass over the catalog.
type ScanReport struct {
	ScannedAt    time.Time `json:"scanned_at"`
	BooksChecked int64     `json:"books_checked"`
	Drifts       []Drift   `json:"drifts"`
	FalseFree    int       `json:"false_free"`
	FalseLent    int       `json:"false_lent"`
}

func (r *ScanReport) Clean() bool { return len(r.Drifts) == 0 }

// RepairedBook is one correction applied by Repair.
type RepairedBook struct {
	BookID     string `json:"book_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// RepairReport summarizes a repair run. Skipped counts books whose drift
// resolved on its own between the scan and the row lock.
type RepairReport struct {
	ScannedAt time.Time      `json:"scanned_at"`
	Repaired  []RepairedBook `json:"repaired"`
	Skipped   int            `json:"skipped"`
}
