package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"deskos-auth/internal/domain"
	"deskos-auth/internal/email"
	"deskos-auth/internal/repository"
	"deskos-auth/internal/sms"
)

var (
	ErrConflict           = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrOTPInvalid         = errors.New("otp invalid")
	ErrOTPExpired         = errors.New("otp expired")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
)

// AccountService coordina registro, autenticación en dos pasos y perfil para
// los dos espacios de identidad (usuarios y administradores).
type AccountService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	emailSender email.Sender
	smsSender   sms.Sender
	feed        ActivityFeed
	clientURL   string
}

func NewAccountService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	emailSender email.Sender,
	smsSender sms.Sender,
	feed ActivityFeed,
	clientURL string,
) *AccountService {
	if feed == nil {
		feed = NewMemoryActivityFeed(defaultFeedSize)
	}
	return &AccountService{
		logger:      logger,
		accounts:    accounts,
		emailSender: emailSender,
		smsSender:   smsSender,
		feed:        feed,
		clientURL:   strings.TrimRight(clientURL, "/"),
	}
}

type SignupInput struct {
	Name               string
	Username           string
	Email              string
	CountryCode        string
	PhoneNumber        string
	Password           string
	Role               string
	VerificationMethod string
}

// Signup reconcilia el registro: rechaza duplicados verificados, purga
// duplicados sin verificar y crea la cuenta con un desafío OTP pendiente en
// el canal elegido. El OTP se persiste antes de intentar la entrega.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) error {
	role := domain.RoleUser
	if strings.TrimSpace(input.Role) == domain.RoleAdmin {
		role = domain.RoleAdmin
	}

	// Primera cuenta: siempre administradora, sin importar lo pedido.
	adminCount, err := s.accounts.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if adminCount == 0 {
		s.logger.Info("no admins found, promoting signup to admin")
		role = domain.RoleAdmin
	}

	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	username := strings.TrimSpace(input.Username)
	fullPhone := composePhone(input.CountryCode, input.PhoneNumber)

	existing, err := s.accounts.FindByAnyIdentifier(ctx, emailAddr, username, fullPhone)
	switch {
	case err == nil:
		if existing.Verified() {
			return ErrConflict
		}
		// Registro abandonado: se elimina y el alta continúa como nueva.
		s.logger.Info("removing stale unverified account", zap.String("email", existing.Email))
		if err := s.accounts.Delete(ctx, existing.ID); err != nil {
			return err
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		return err
	}

	code, codeHash, expiresAt, err := generateOTP()
	if err != nil {
		return err
	}

	channel := domain.ChannelEmail
	if input.VerificationMethod == domain.ChannelPhone && fullPhone != "" {
		channel = domain.ChannelPhone
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(input.Name),
		Username:     username,
		Email:        emailAddr,
		CountryCode:  strings.TrimSpace(input.CountryCode),
		PhoneNumber:  fullPhone,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if channel == domain.ChannelPhone {
		account.PhoneOtpHash = codeHash
		account.PhoneOtpExpiresAt = &expiresAt
	} else {
		account.EmailOtpHash = codeHash
		account.EmailOtpExpiresAt = &expiresAt
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrConflict
		}
		return err
	}

	s.logger.Info("account created", zap.String("email", emailAddr), zap.String("role", role))
	s.feed.Record(fmt.Sprintf("signup: %s (role %s)", emailAddr, role))

	// La cuenta ya existe aunque la entrega falle; resend-otp es el reintento.
	if channel == domain.ChannelPhone {
		if err := s.smsSender.SendOTP(ctx, fullPhone, code); err != nil {
			s.logger.Warn("signup otp sms failed", zap.Error(err), zap.String("phone", fullPhone))
		}
	} else {
		if err := s.emailSender.SendOTP(ctx, emailAddr, code, expiresAt); err != nil {
			s.logger.Warn("signup otp email failed", zap.Error(err), zap.String("email", emailAddr))
		}
	}

	return nil
}

// GetProfile devuelve la cuenta del identificador autenticado.
func (s *AccountService) GetProfile(ctx context.Context, id string) (domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}
	return account, nil
}

type UpdateProfileInput struct {
	Name            *string
	Username        string
	Email           string
	CountryCode     string
	PhoneNumber     string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfile aplica cambios de perfil verificando unicidad de username,
// email y teléfono sobre ambos espacios de identidad, excluyendo la propia
// cuenta. Cambiar email o teléfono invalida la verificación de ese canal.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}

	if input.Name != nil {
		account.Name = strings.TrimSpace(*input.Name)
	}

	if username := strings.TrimSpace(input.Username); username != "" && username != account.Username {
		taken, err := s.accounts.UsernameInUse(ctx, username, id)
		if err != nil {
			return domain.Account{}, err
		}
		if taken {
			return domain.Account{}, ErrConflict
		}
		account.Username = username
	}

	if input.Email != "" {
		emailAddr := normalizeEmail(input.Email)
		if emailAddr != "" && emailAddr != account.Email {
			taken, err := s.accounts.EmailInUse(ctx, emailAddr, id)
			if err != nil {
				return domain.Account{}, err
			}
			if taken {
				return domain.Account{}, ErrConflict
			}
			account.Email = emailAddr
			account.IsEmailVerified = false
		}
	}

	countryCode := strings.TrimSpace(input.CountryCode)
	if countryCode == "" {
		countryCode = account.CountryCode
	}
	if phone := strings.TrimSpace(input.PhoneNumber); phone != "" {
		fullPhone := countryCode + phone
		if fullPhone != account.PhoneNumber {
			taken, err := s.accounts.PhoneInUse(ctx, fullPhone, id)
			if err != nil {
				return domain.Account{}, err
			}
			if taken {
				return domain.Account{}, ErrConflict
			}
			account.PhoneNumber = fullPhone
			account.CountryCode = countryCode
			account.IsPhoneVerified = false
		}
	} else if strings.TrimSpace(input.CountryCode) != "" {
		account.CountryCode = strings.TrimSpace(input.CountryCode)
	}

	if input.NewPassword != "" {
		if input.CurrentPassword == "" || !verifyPassword(input.CurrentPassword, account.PasswordHash) {
			return domain.Account{}, ErrInvalidCredentials
		}
		newHash, err := hashPassword(input.NewPassword)
		if err != nil {
			return domain.Account{}, err
		}
		account.PasswordHash = newHash
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Account{}, ErrConflict
		}
		return domain.Account{}, err
	}
	return account, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// composePhone concatena código de país y número; sin número no hay teléfono.
func composePhone(countryCode, phoneNumber string) string {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return ""
	}
	return strings.TrimSpace(countryCode) + phoneNumber
}
