package loans

import "time"

type CreateLoanRequest struct {
	BookID   string `json:"book_id" binding:"required"`
	MemberID int64  `json:"member_id" binding:"required"`
	Days     *int   `json:"days,omitempty"`
}

type RenewLoanRequest struct {
	Days *int `json:"days,omitempty"`
}

// LoanResponse is the wire shape of a loan; nullable DB fields become
// omitted JSON fields.
type LoanResponse struct {
	LoanID     int64      `json:"loan_id"`
	LoanULID   string     `json:"loan_ulid"`
	BookID     string     `json:"book_id"`
	MemberID   int64      `json:"member_id"`
	IssuedBy   int64      `json:"issued_by"`
	ReceivedBy *int64     `json:"received_by,omitempty"`
	LoanDate   string     `json:"loan_date"`
	DueDate    string     `json:"due_date"`
	ReturnDate *string    `json:"return_date,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
}

const dateLayout = "2006-01-02"

func toResponse(l *Loan) LoanResponse {
	r := LoanResponse{
		LoanID:    l.LoanID,
		LoanULID:  l.LoanULID,
		BookID:    l.BookID,
		MemberID:  l.MemberID,
		IssuedBy:  l.IssuedBy,
		LoanDate:  l.LoanDate.Format(dateLayout),
		DueDate:   l.DueDate.Format(dateLayout),
		Active:    l.Active(),
		CreatedAt: l.CreatedAt,
	}
	if l.ReceivedBy.Valid {
		v := l.ReceivedBy.Int64
		r.ReceivedBy = &v
	}
	if l.ReturnDate.Valid {
		v := l.ReturnDate.Time.Format(dateLayout)
		r.ReturnDate = &v
	}
	return r
}

type ListResult struct {
	Items      []LoanResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}
