package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deskos-auth/internal/service"
)

// AdminHandler sirve las rutas restringidas al rol administrador.
type AdminHandler struct {
	logger    *zap.Logger
	adminServ *service.AdminService
}

func NewAdminHandler(logger *zap.Logger, adminServ *service.AdminService) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		adminServ: adminServ,
	}
}

// Stats maneja GET /api/auth/admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminServ.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("admin stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Users maneja GET /api/auth/admin/users.
func (h *AdminHandler) Users(c *gin.Context) {
	accounts, err := h.adminServ.ListAccounts(c.Request.Context())
	if err != nil {
		h.logger.Error("admin list users failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": accounts})
}

// Logs maneja GET /api/auth/admin/logs.
func (h *AdminHandler) Logs(c *gin.Context) {
	events, err := h.adminServ.RecentActivity(c.Request.Context(), 50)
	if err != nil {
		h.logger.Error("admin logs failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch logs"})
		return
	}
	if events == nil {
		events = []service.ActivityEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": events})
}
