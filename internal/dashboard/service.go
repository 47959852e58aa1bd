package dashboard

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// Summary is the front page of the reading room: stock, circulation and
// membership in one read.
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`

	BooksTotal     int64 `json:"books_total" db:"books_total"`
	BooksAvailable int64 `json:"books_available" db:"books_available"`
	BooksLent      int64 `json:"books_lent" db:"books_lent"`

	LoansActive  int64 `json:"loans_active" db:"loans_active"`
	LoansOverdue int64 `json:"loans_overdue" db:"loans_overdue"`

	MembersTotal  int64 `json:"members_total" db:"members_total"`
	MembersActive int64 `json:"members_active" db:"members_active"`
}

type Service struct {
	db *sqlx.DB
}

func NewService(conn *sql.DB) *Service {
	return &Service{db: sqlx.NewDb(conn, "mysql")}
}

const summaryQuery = `
SELECT
  (SELECT COUNT(*) FROM book)                                              AS books_total,
  (SELECT COUNT(*) FROM book WHERE status = 'AVAILABLE')                   AS books_available,
  (SELECT COUNT(*) FROM book WHERE status = 'LENT')                        AS books_lent,
  (SELECT COUNT(*) FROM loan WHERE return_date IS NULL)                    AS loans_active,
  (SELECT COUNT(*) FROM loan WHERE return_date IS NULL AND due_date < ?)   AS loans_overdue,
  (SELECT COUNT(*) FROM member)                                            AS members_total,
  (SELECT COUNT(*) FROM member WHERE active = 1)                           AS members_active`

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var sum Summary
	if err := s.db.GetContext(ctx, &sum, summaryQuery, today); err != nil {
		return nil, err
	}
	sum.GeneratedAt = now
	return &sum, nil
}

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	r.GET("/dashboard", func(c *gin.Context) {
		sum, err := svc.Summary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "summary failed"}})
			return
		}
		c.JSON(http.StatusOK, sum)
	})
}
