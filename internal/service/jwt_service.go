package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"deskos-auth/internal/domain"
)

// JWTService emite y valida tokens de sesión firmados.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// Claims transporta identidad y rol dentro del token de sesión.
type Claims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid       = errors.New("jwt invalid")
	ErrJWTExpired       = errors.New("jwt expired")
	ErrJWTNotConfigured = errors.New("jwt secret not configured")
)

const sessionTTL = time.Hour

// NewJWTService falla si no hay secreto: el servicio no puede operar sin él.
func NewJWTService(secret string, ttl time.Duration) (*JWTService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrJWTNotConfigured
	}
	if ttl <= 0 {
		ttl = sessionTTL
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "deskos-auth",
	}, nil
}

// Issue firma un token de sesión para la cuenta. No existe mecanismo de
// refresh: al expirar se vuelve a autenticar desde cero (contraseña + OTP).
func (s *JWTService) Issue(account domain.Account) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:      account.ID,
		Email:       account.Email,
		PhoneNumber: account.PhoneNumber,
		Role:        account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken valida firma y expiración y devuelve los claims embebidos.
func (s *JWTService) ParseToken(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
