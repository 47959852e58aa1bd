package members

import (
	"database/sql"
	"time"
)

// Role values a member can carry. The role gates who may issue and receive
// loans and who may mutate the catalog.
const (
	RoleMember = "member"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

func ValidRole(r string) bool {
	return r == RoleMember || r == RoleStaff || r == RoleAdmin
}

type Member struct {
	MemberID  int64          `json:"member_id"`
	AccountID sql.NullString `json:"-"`
	Name      string         `json:"name"`
	Birthday  sql.NullTime   `json:"-"`
	Active    bool           `json:"active"`
	Role      string         `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
}

type MemberFilter struct {
	Active *bool
	Role   *string
	Search string
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
