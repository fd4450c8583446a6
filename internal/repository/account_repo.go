package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"deskos-auth/internal/domain"
)

// ErrDuplicate señala una violación de unicidad detectada por la base de datos.
var ErrDuplicate = errors.New("duplicate account field")

// AccountRepository define el contrato de persistencia para cuentas de
// usuarios y administradores (una sola tabla, discriminada por rol).
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (domain.Account, error)
	GetByEmailOrUsername(ctx context.Context, identifier string) (domain.Account, error)
	FindByAnyIdentifier(ctx context.Context, email, username, phone string) (domain.Account, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, account domain.Account) error
	SetOTP(ctx context.Context, id, channel, otpHash string, expiresAt time.Time) error
	ConsumeOTP(ctx context.Context, id, channel string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	GetByActiveResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.Account, error)
	UpdatePasswordClearReset(ctx context.Context, id, passwordHash string) error
	CountByRole(ctx context.Context, role string) (int64, error)
	UsernameInUse(ctx context.Context, username, excludeID string) (bool, error)
	EmailInUse(ctx context.Context, email, excludeID string) (bool, error)
	PhoneInUse(ctx context.Context, phone, excludeID string) (bool, error)
	ListAll(ctx context.Context) ([]domain.Account, error)
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `
	id, name, username, email, country_code, COALESCE(phone_number, ''),
	password_hash, email_otp_hash, email_otp_expires_at,
	phone_otp_hash, phone_otp_expires_at, is_email_verified, is_phone_verified,
	reset_token_hash, reset_token_expires_at, role, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Username,
		&a.Email,
		&a.CountryCode,
		&a.PhoneNumber,
		&a.PasswordHash,
		&a.EmailOtpHash,
		&a.EmailOtpExpiresAt,
		&a.PhoneOtpHash,
		&a.PhoneOtpExpiresAt,
		&a.IsEmailVerified,
		&a.IsPhoneVerified,
		&a.ResetTokenHash,
		&a.ResetTokenExpiresAt,
		&a.Role,
		&a.CreatedAt,
	)
	return a, err
}

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (
			id, name, username, email, country_code, phone_number,
			password_hash, email_otp_hash, email_otp_expires_at,
			phone_otp_hash, phone_otp_expires_at, is_email_verified, is_phone_verified,
			reset_token_hash, reset_token_expires_at, role, created_at
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Name,
		account.Username,
		account.Email,
		account.CountryCode,
		account.PhoneNumber,
		account.PasswordHash,
		account.EmailOtpHash,
		account.EmailOtpExpiresAt,
		account.PhoneOtpHash,
		account.PhoneOtpExpiresAt,
		account.IsEmailVerified,
		account.IsPhoneVerified,
		account.ResetTokenHash,
		account.ResetTokenExpiresAt,
		account.Role,
		account.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *PgAccountRepository) GetByPhone(ctx context.Context, phone string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE phone_number = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, phone))
}

func (r *PgAccountRepository) GetByEmailOrUsername(ctx context.Context, identifier string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 OR username = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, identifier))
}

func (r *PgAccountRepository) FindByAnyIdentifier(ctx context.Context, email, username, phone string) (domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1 OR username = $2 OR ($3 <> '' AND phone_number = $3)
		LIMIT 1
	`
	return scanAccount(r.pool.QueryRow(ctx, query, email, username, phone))
}

func (r *PgAccountRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (r *PgAccountRepository) Update(ctx context.Context, account domain.Account) error {
	const query = `
		UPDATE accounts SET
			name = $2, username = $3, email = $4, country_code = $5,
			phone_number = NULLIF($6, ''), password_hash = $7,
			is_email_verified = $8, is_phone_verified = $9
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Name,
		account.Username,
		account.Email,
		account.CountryCode,
		account.PhoneNumber,
		account.PasswordHash,
		account.IsEmailVerified,
		account.IsPhoneVerified,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *PgAccountRepository) SetOTP(ctx context.Context, id, channel, otpHash string, expiresAt time.Time) error {
	var query string
	switch channel {
	case domain.ChannelPhone:
		query = `UPDATE accounts SET phone_otp_hash = $2, phone_otp_expires_at = $3 WHERE id = $1`
	case domain.ChannelEmail:
		query = `UPDATE accounts SET email_otp_hash = $2, email_otp_expires_at = $3 WHERE id = $1`
	default:
		return fmt.Errorf("unknown otp channel %q", channel)
	}
	_, err := r.pool.Exec(ctx, query, id, otpHash, expiresAt)
	return err
}

func (r *PgAccountRepository) ConsumeOTP(ctx context.Context, id, channel string) error {
	var query string
	switch channel {
	case domain.ChannelPhone:
		query = `
			UPDATE accounts
			SET phone_otp_hash = '', phone_otp_expires_at = NULL, is_phone_verified = TRUE
			WHERE id = $1
		`
	case domain.ChannelEmail:
		query = `
			UPDATE accounts
			SET email_otp_hash = '', email_otp_expires_at = NULL, is_email_verified = TRUE
			WHERE id = $1
		`
	default:
		return fmt.Errorf("unknown otp channel %q", channel)
	}
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgAccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	const query = `UPDATE accounts SET reset_token_hash = $2, reset_token_expires_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, tokenHash, expiresAt)
	return err
}

// GetByActiveResetToken busca por hash y expiración en una sola consulta, de
// modo que un hash vencido es indistinguible de uno inexistente.
func (r *PgAccountRepository) GetByActiveResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE reset_token_hash = $1 AND reset_token_hash <> '' AND reset_token_expires_at > $2
	`
	return scanAccount(r.pool.QueryRow(ctx, query, tokenHash, now))
}

func (r *PgAccountRepository) UpdatePasswordClearReset(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE accounts
		SET password_hash = $2, reset_token_hash = '', reset_token_expires_at = NULL
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, passwordHash)
	return err
}

func (r *PgAccountRepository) CountByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = $1`, role).Scan(&count)
	return count, err
}

func (r *PgAccountRepository) UsernameInUse(ctx context.Context, username, excludeID string) (bool, error) {
	return r.fieldInUse(ctx, `SELECT 1 FROM accounts WHERE username = $1 AND id <> $2 LIMIT 1`, username, excludeID)
}

func (r *PgAccountRepository) EmailInUse(ctx context.Context, email, excludeID string) (bool, error) {
	return r.fieldInUse(ctx, `SELECT 1 FROM accounts WHERE email = $1 AND id <> $2 LIMIT 1`, email, excludeID)
}

func (r *PgAccountRepository) PhoneInUse(ctx context.Context, phone, excludeID string) (bool, error) {
	return r.fieldInUse(ctx, `SELECT 1 FROM accounts WHERE phone_number = $1 AND id <> $2 LIMIT 1`, phone, excludeID)
}

func (r *PgAccountRepository) fieldInUse(ctx context.Context, query, value, excludeID string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, query, value, excludeID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PgAccountRepository) ListAll(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
