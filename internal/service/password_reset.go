package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ForgotPassword genera un token de reseteo, persiste solo su hash con una
// expiración de 10 minutos y envía el enlace en claro por correo.
func (s *AccountService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrAccountNotFound
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}

	token, tokenHash, err := generateResetToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(resetTokenTTL)
	if err := s.accounts.SetResetToken(ctx, account.ID, tokenHash, expiresAt); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", s.clientURL, token)
	if err := s.emailSender.SendResetLink(ctx, account.Email, resetURL); err != nil {
		s.logger.Warn("reset link email failed", zap.Error(err), zap.String("email", account.Email))
	}
	s.feed.Record(fmt.Sprintf("password reset requested: %s", account.Email))
	return nil
}

// ResetPassword consume el token: la búsqueda filtra por hash y expiración en
// una sola consulta, así que un token vencido es indistinguible de uno
// inválido. Limpiar los campos lo vuelve de un solo uso.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return ErrResetTokenInvalid
	}

	account, err := s.accounts.GetByActiveResetToken(ctx, hashResetToken(token), time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrResetTokenInvalid
		}
		return err
	}

	newHash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordClearReset(ctx, account.ID, newHash); err != nil {
		return err
	}

	s.feed.Record(fmt.Sprintf("password reset completed: %s", account.Email))
	return nil
}
