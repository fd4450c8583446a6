package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"deskos-auth/internal/domain"
)

// Login valida credenciales (email o username) y, si son correctas, emite un
// OTP de correo como segundo factor. Nunca devuelve un token en este paso.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (domain.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return domain.Account{}, ErrInvalidCredentials
	}
	// Los emails se guardan en minúsculas; los usernames se respetan tal cual.
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}

	account, err := s.accounts.GetByEmailOrUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}

	if !verifyPassword(password, account.PasswordHash) {
		s.logger.Warn("failed login attempt", zap.String("identifier", identifier))
		return domain.Account{}, ErrInvalidCredentials
	}

	if err := s.issueOTP(ctx, account, domain.ChannelEmail); err != nil {
		return domain.Account{}, err
	}
	s.feed.Record(fmt.Sprintf("2fa otp sent to %s (role %s)", account.Email, account.Role))
	return account, nil
}

// LoginWithPhone emite un OTP de SMS para el teléfono completo. No hay
// verificación de contraseña en esta ruta: la posesión del teléfono sustituye
// a la contraseña, tal como en el flujo original.
func (s *AccountService) LoginWithPhone(ctx context.Context, countryCode, phoneNumber string) (domain.Account, error) {
	fullPhone := composePhone(countryCode, phoneNumber)
	if fullPhone == "" {
		return domain.Account{}, ErrAccountNotFound
	}

	account, err := s.accounts.GetByPhone(ctx, fullPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}

	if err := s.issueOTP(ctx, account, domain.ChannelPhone); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// VerifyOTP resuelve la cuenta por email o teléfono, valida el código del
// canal correspondiente y lo consume: limpia hash y expiración, marca el
// canal como verificado y persiste, todo antes de que se emita sesión alguna.
func (s *AccountService) VerifyOTP(ctx context.Context, emailAddr, phoneNumber, code string) (domain.Account, error) {
	account, channel, err := s.resolveByChannel(ctx, emailAddr, phoneNumber)
	if err != nil {
		return domain.Account{}, err
	}

	code = strings.TrimSpace(code)
	if !isValidOTPCode(code) {
		return domain.Account{}, ErrOTPInvalid
	}

	storedHash := account.EmailOtpHash
	storedExpiry := account.EmailOtpExpiresAt
	if channel == domain.ChannelPhone {
		storedHash = account.PhoneOtpHash
		storedExpiry = account.PhoneOtpExpiresAt
	}

	// El chequeo de coincidencia va primero: un código nunca emitido y uno
	// equivocado producen la misma respuesta.
	if !matchOTP(code, storedHash) {
		s.logger.Warn("invalid otp attempt", zap.String("channel", channel))
		return domain.Account{}, ErrOTPInvalid
	}
	if storedExpiry == nil || time.Now().UTC().After(*storedExpiry) {
		return domain.Account{}, ErrOTPExpired
	}

	if err := s.accounts.ConsumeOTP(ctx, account.ID, channel); err != nil {
		return domain.Account{}, err
	}
	if channel == domain.ChannelPhone {
		account.PhoneOtpHash = ""
		account.PhoneOtpExpiresAt = nil
		account.IsPhoneVerified = true
	} else {
		account.EmailOtpHash = ""
		account.EmailOtpExpiresAt = nil
		account.IsEmailVerified = true
	}

	s.feed.Record(fmt.Sprintf("authentication success: %s", accountHandle(account)))
	return account, nil
}

// ResendOTP reemite el desafío del canal, invalidando el código anterior.
func (s *AccountService) ResendOTP(ctx context.Context, emailAddr, phoneNumber string) error {
	account, channel, err := s.resolveByChannel(ctx, emailAddr, phoneNumber)
	if err != nil {
		return err
	}
	return s.issueOTP(ctx, account, channel)
}

// issueOTP persiste un nuevo desafío y luego intenta la entrega. Un fallo de
// entrega no revierte nada: la cuenta queda en estado válido y reenviable.
func (s *AccountService) issueOTP(ctx context.Context, account domain.Account, channel string) error {
	code, codeHash, expiresAt, err := generateOTP()
	if err != nil {
		return err
	}
	if err := s.accounts.SetOTP(ctx, account.ID, channel, codeHash, expiresAt); err != nil {
		return err
	}

	if channel == domain.ChannelPhone {
		if err := s.smsSender.SendOTP(ctx, account.PhoneNumber, code); err != nil {
			s.logger.Warn("otp sms failed", zap.Error(err), zap.String("phone", account.PhoneNumber))
		}
	} else {
		if err := s.emailSender.SendOTP(ctx, account.Email, code, expiresAt); err != nil {
			s.logger.Warn("otp email failed", zap.Error(err), zap.String("email", account.Email))
		}
	}
	return nil
}

func (s *AccountService) resolveByChannel(ctx context.Context, emailAddr, phoneNumber string) (domain.Account, string, error) {
	var (
		account domain.Account
		channel string
		err     error
	)
	if phoneNumber = strings.TrimSpace(phoneNumber); phoneNumber != "" {
		channel = domain.ChannelPhone
		account, err = s.accounts.GetByPhone(ctx, phoneNumber)
	} else {
		channel = domain.ChannelEmail
		account, err = s.accounts.GetByEmail(ctx, normalizeEmail(emailAddr))
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, "", ErrAccountNotFound
		}
		return domain.Account{}, "", err
	}
	return account, channel, nil
}

func accountHandle(account domain.Account) string {
	if account.Email != "" {
		return account.Email
	}
	return account.PhoneNumber
}
