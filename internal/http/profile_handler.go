package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deskos-auth/internal/service"
)

// ProfileHandler sirve lectura y edición del perfil autenticado.
type ProfileHandler struct {
	logger      *zap.Logger
	accountServ *service.AccountService
}

func NewProfileHandler(logger *zap.Logger, accountServ *service.AccountService) *ProfileHandler {
	return &ProfileHandler{
		logger:      logger,
		accountServ: accountServ,
	}
}

// GetProfile maneja GET /api/auth/profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	account, err := h.accountServ.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("get profile failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": account})
}

// UpdateProfile maneja PUT /api/auth/profile.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req struct {
		Name            *string `json:"name"`
		Username        string  `json:"username"`
		Email           string  `json:"email"`
		CountryCode     string  `json:"countryCode"`
		PhoneNumber     string  `json:"phoneNumber"`
		CurrentPassword string  `json:"currentPassword"`
		NewPassword     string  `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid profile update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.accountServ.UpdateProfile(c.Request.Context(), claims.UserID, service.UpdateProfileInput{
		Name:            req.Name,
		Username:        req.Username,
		Email:           req.Email,
		CountryCode:     req.CountryCode,
		PhoneNumber:     req.PhoneNumber,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "field is already in use"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "current password is incorrect"})
		default:
			h.logger.Error("update profile failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": account})
}
