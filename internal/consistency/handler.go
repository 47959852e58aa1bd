package consistency

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func RegisterRoutes(staff gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	staff.GET("/consistency", h.Scan)
	staff.POST("/consistency/repair", h.Repair)
}

func (h *Handler) Scan(c *gin.Context) {
	report, err := h.svc.Scan(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "scan failed"}})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Repair(c *gin.Context) {
	actor := Actor{AccountID: auth.AccountID(c), Client: audit.ClientFromGin(c)}
	report, err := h.svc.Repair(c.Request.Context(), actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "repair failed"}})
		return
	}
	c.JSON(http.StatusOK, report)
}
