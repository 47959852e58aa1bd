package members

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

// RegisterRoutes mounts the directory endpoints. /me is the only member-level
// route; the rest is staff territory.
func RegisterRoutes(r gin.IRoutes, staff gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/members/me", h.Me)

	staff.GET("/members", h.ListMembers)
	staff.GET("/members/:member_id", h.GetMember)
	staff.POST("/members", h.CreateMember)
	staff.PATCH("/members/:member_id", h.UpdateMember)
	staff.DELETE("/members/:member_id", h.DeactivateMember)
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		AccountID: auth.AccountID(c),
		Client:    audit.ClientFromGin(c),
	}
}

func (h *Handler) Me(c *gin.Context) {
	resp, err := h.svc.Me(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateMember(c *gin.Context) {
	var req CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ErrInvalid("invalid request body: "+err.Error()))
		return
	}
	resp, err := h.svc.CreateMember(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetMember(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil {
		writeError(c, ErrInvalid("member_id must be numeric"))
		return
	}
	resp, err := h.svc.GetMember(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateMember(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil {
		writeError(c, ErrInvalid("member_id must be numeric"))
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ErrInvalid("invalid request body: "+err.Error()))
		return
	}
	resp, err := h.svc.UpdateMember(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeactivateMember(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil {
		writeError(c, ErrInvalid("member_id must be numeric"))
		return
	}
	resp, err := h.svc.DeactivateMember(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListMembers(c *gin.Context) {
	var f MemberFilter
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, ErrInvalid("active must be a boolean"))
			return
		}
		f.Active = &b
	}
	if v := c.Query("role"); v != "" {
		if !ValidRole(v) {
			writeError(c, ErrInvalid("role must be one of member, staff, admin"))
			return
		}
		f.Role = &v
	}
	f.Search = c.Query("q")

	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  c.Query("order"),
	}

	resp, err := h.svc.ListMembers(c.Request.Context(), f, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.JSON(ToHTTPStatus(err), gin.H{"error": apiErr})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": ErrInternal("internal error")})
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
