package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deskos-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger      *zap.Logger
	accountServ *service.AccountService
	jwtServ     *service.JWTService
}

func NewAuthHandler(logger *zap.Logger, accountServ *service.AccountService, jwtServ *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		accountServ: accountServ,
		jwtServ:     jwtServ,
	}
}

// Signup maneja POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Name               string `json:"name"`
		Username           string `json:"username" binding:"required"`
		Email              string `json:"email" binding:"required,email"`
		CountryCode        string `json:"countryCode"`
		PhoneNumber        string `json:"phoneNumber"`
		Password           string `json:"password" binding:"required"`
		Role               string `json:"role"`
		VerificationMethod string `json:"verificationMethod"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.accountServ.Signup(c.Request.Context(), service.SignupInput{
		Name:               req.Name,
		Username:           req.Username,
		Email:              req.Email,
		CountryCode:        req.CountryCode,
		PhoneNumber:        req.PhoneNumber,
		Password:           req.Password,
		Role:               req.Role,
		VerificationMethod: req.VerificationMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "user with this email, username, or phone number already exists"})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign up"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Signup successful! Please verify your account with the OTP sent."})
}

// Login maneja POST /api/auth/login: valida credenciales y dispara el OTP de
// segundo factor. No devuelve token en este paso.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier and password are required"})
		return
	}

	account, err := h.accountServ.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Credentials valid. OTP sent to your email.",
		"email":       account.Email,
		"requiresOtp": true,
	})
}

// LoginWithPhone maneja POST /api/auth/login-with-phone.
func (h *AuthHandler) LoginWithPhone(c *gin.Context) {
	var req struct {
		CountryCode string `json:"countryCode"`
		PhoneNumber string `json:"phoneNumber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid phone login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.accountServ.LoginWithPhone(c.Request.Context(), req.CountryCode, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user with this phone number not found"})
			return
		}
		h.logger.Error("phone login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "OTP sent to your phone number",
		"phoneNumber": account.PhoneNumber,
		"requiresOtp": true,
	})
}

// VerifyOTP maneja POST /api/auth/verify-otp, compartido por los flujos de
// registro y login. La sesión se emite recién cuando el código fue consumido.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		Otp         string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.accountServ.VerifyOTP(c.Request.Context(), req.Email, req.PhoneNumber, req.Otp)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrOTPInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid otp"})
		case errors.Is(err, service.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "otp expired"})
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		}
		return
	}

	token, err := h.jwtServ.Issue(account)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Authentication successful",
		"result":  account,
		"token":   token,
	})
}

// ResendOTP maneja POST /api/auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.accountServ.ResendOTP(c.Request.Context(), req.Email, req.PhoneNumber); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("resend otp failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resend otp"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "OTP resent successfully"})
}

// ForgotPassword maneja POST /api/auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.accountServ.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("forgot password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request reset"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset link sent to email"})
}

// ResetPassword maneja POST /api/auth/reset-password/:token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.accountServ.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		if errors.Is(err, service.ErrResetTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
			return
		}
		h.logger.Error("reset password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reset password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}
