package loans

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

// RegisterRoutes mounts the loan endpoints. Reads go on r; the lending
// mutations go on staff, which the caller guards with a role check.
func RegisterRoutes(r gin.IRoutes, staff gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/loans", h.ListLoans)
	r.GET("/loans/active", h.ActiveForBook)
	r.GET("/loans/:loan_key", h.GetLoan)

	staff.POST("/loans", h.CreateLoan)
	staff.POST("/loans/:loan_key/return", h.ReturnLoan)
	staff.POST("/loans/:loan_key/renew", h.RenewLoan)
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		AccountID: auth.AccountID(c),
		Client:    audit.ClientFromGin(c),
	}
}

func (h *Handler) CreateLoan(c *gin.Context) {
	var req CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "invalid request body: "+err.Error()))
		return
	}

	resp, err := h.svc.CreateLoan(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		status, body := errorFromErr(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ReturnLoan(c *gin.Context) {
	resp, err := h.svc.ReturnLoan(c.Request.Context(), actorFrom(c), c.Param("loan_key"))
	if err != nil {
		status, body := errorFromErr(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RenewLoan(c *gin.Context) {
	var req RenewLoanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "invalid request body: "+err.Error()))
			return
		}
	}

	resp, err := h.svc.RenewLoan(c.Request.Context(), actorFrom(c), c.Param("loan_key"), req)
	if err != nil {
		status, body := errorFromErr(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetLoan(c *gin.Context) {
	resp, err := h.svc.GetLoan(c.Request.Context(), c.Param("loan_key"))
	if err != nil {
		status, body := errorFromErr(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ActiveForBook(c *gin.Context) {
	bookID := c.Query("book_id")
	if bookID == "" {
		c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "book_id query parameter is required"))
		return
	}
	resp, err := h.svc.ActiveForBook(c.Request.Context(), bookID)
	if err != nil {
		status, body := errorFromErr(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListLoans lists loans with filters. Members only see their own loans; staff
// and admins see everything.
func (h *Handler) ListLoans(c *gin.Context) {
	ctx := c.Request.Context()

	var f LoanFilter
	if v := c.Query("book_id"); v != "" {
		f.BookID = &v
	}
	if v := c.Query("member_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "member_id must be numeric"))
			return
		}
		f.MemberID = &id
	}
	if v := c.Query("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "active must be a boolean"))
			return
		}
		f.Active = &b
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "from must be YYYY-MM-DD"))
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeValidationFailed, "to must be YYYY-MM-DD"))
			return
		}
		f.To = &t
	}

	role := auth.Role(c)
	if role != "staff" && role != "admin" {
		own, err := h.svc.MemberIDForAccount(ctx, auth.AccountID(c))
		if err != nil {
			status, body := errorFromErr(err)
			c.JSON(status, body)
			return
		}
		f.MemberID = &own
	}

	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  c.Query("order"),
	}

	resp, err := h.svc.ListLoans(ctx, f, p)
	if err != nil {
		status, body := errorFromErr(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(code Code, msg string) gin.H {
	return gin.H{"error": errorDTO{Code: string(code), Message: msg}}
}

func errorFromErr(err error) (int, gin.H) {
	status := ToHTTPStatus(err)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return status, errorBody(apiErr.Code, apiErr.Message)
	}
	return status, errorBody(CodeInternal, "internal error")
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
