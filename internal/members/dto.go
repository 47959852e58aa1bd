package members

import "time"

type CreateMemberRequest struct {
	Name     string `json:"name" binding:"required"`
	Birthday string `json:"birthday,omitempty"`
	Role     string `json:"role,omitempty"`

	// When both are set, a login account is created and linked.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type UpdateMemberRequest struct {
	Name     *string `json:"name,omitempty"`
	Birthday *string `json:"birthday,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type MemberResponse struct {
	MemberID  int64     `json:"member_id"`
	Name      string    `json:"name"`
	Birthday  *string   `json:"birthday,omitempty"`
	Active    bool      `json:"active"`
	Role      string    `json:"role"`
	HasLogin  bool      `json:"has_login"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(m *Member) MemberResponse {
	r := MemberResponse{
		MemberID:  m.MemberID,
		Name:      m.Name,
		Active:    m.Active,
		Role:      m.Role,
		HasLogin:  m.AccountID.Valid,
		CreatedAt: m.CreatedAt,
	}
	if m.Birthday.Valid {
		v := m.Birthday.Time.Format("2006-01-02")
		r.Birthday = &v
	}
	return r
}

type ListResult struct {
	Items      []MemberResponse `json:"items"`
	Total      int64            `json:"total"`
	NextOffset int              `json:"next_offset"`
}
