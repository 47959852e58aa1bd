package catalog

import "time"

// Status is the cached availability flag of a book. AVAILABLE and LENT are
// derived from loan facts and owned by the loan ledger; the other three are
// administrative states set by catalog maintenance.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusLent      Status = "LENT"
	StatusWithdrawn Status = "WITHDRAWN"
	StatusDonated   Status = "DONATED"
	StatusLost      Status = "LOST"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusLent, StatusWithdrawn, StatusDonated, StatusLost:
		return true
	}
	return false
}

// LoanRelevant reports whether the status is one of the two values the loan
// ledger derives from the ledger itself.
func (s Status) LoanRelevant() bool {
	return s == StatusAvailable || s == StatusLent
}

// Administrative reports whether the status is outside the loan ledger's
// write authority.
func (s Status) Administrative() bool {
	return s.Valid() && !s.LoanRelevant()
}

type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Year      int       `json:"year"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookFilter struct {
	Status *Status
	Search string
}

type Page struct {
	Limit   int
	Offset  int
	OrderBy string
	Order   string
}
