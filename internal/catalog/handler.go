package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the read endpoints on r and the mutating endpoints on
// staff (the caller wires the role middleware onto staff).
func RegisterRoutes(r gin.IRoutes, staff gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/books", h.ListBooks)
	r.GET("/books/:book_id", h.GetBook)

	staff.POST("/books", h.CreateBook)
	staff.PATCH("/books/:book_id", h.UpdateBook)
	staff.POST("/books/:book_id/status", h.ChangeStatus)
}

func actorFrom(c *gin.Context) Actor {
	return Actor{AccountID: auth.AccountID(c), Client: audit.ClientFromGin(c)}
}

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.CreateBook(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/books/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetBook(c *gin.Context) {
	res, err := h.svc.GetBook(c.Request.Context(), c.Param("book_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateBook(c *gin.Context) {
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.UpdateBook(c.Request.Context(), c.Param("book_id"), req, actorFrom(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing status"))
		return
	}
	res, err := h.svc.ChangeStatus(c.Request.Context(), c.Param("book_id"), req, actorFrom(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListBooks(c *gin.Context) {
	f := BookFilter{Search: c.Query("search")}
	if v := c.Query("status"); v != "" {
		st := Status(strings.ToUpper(v))
		f.Status = &st
	}
	p := Page{
		Limit:   atoiDef(c.Query("limit"), 50),
		Offset:  atoiDef(c.Query("offset"), 0),
		OrderBy: c.DefaultQuery("order_by", "title"),
		Order:   c.DefaultQuery("order", "asc"),
	}
	res, err := h.svc.ListBooks(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error APIError `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	return errorDTO{Error: APIError{Code: code, Message: msg}}
}

func errorFromErr(err error) errorDTO {
	if api, ok := err.(*APIError); ok {
		return errorDTO{Error: *api}
	}
	return errorBody(CodeInternal, err.Error())
}
