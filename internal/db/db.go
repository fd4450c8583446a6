package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"deskos-auth/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Configuración razonable para ambientes iniciales.
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

// Los índices únicos son el respaldo autoritativo de unicidad entre usuarios
// y administradores; las verificaciones en el servicio son best-effort.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                     UUID PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	username               TEXT NOT NULL,
	email                  TEXT NOT NULL,
	country_code           TEXT NOT NULL DEFAULT '',
	phone_number           TEXT,
	password_hash          TEXT NOT NULL,
	email_otp_hash         TEXT NOT NULL DEFAULT '',
	email_otp_expires_at   TIMESTAMPTZ,
	phone_otp_hash         TEXT NOT NULL DEFAULT '',
	phone_otp_expires_at   TIMESTAMPTZ,
	is_email_verified      BOOLEAN NOT NULL DEFAULT FALSE,
	is_phone_verified      BOOLEAN NOT NULL DEFAULT FALSE,
	reset_token_hash       TEXT NOT NULL DEFAULT '',
	reset_token_expires_at TIMESTAMPTZ,
	role                   TEXT NOT NULL CHECK (role IN ('user', 'admin')),
	created_at             TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_key ON accounts (username);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (email);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_phone_number_key
	ON accounts (phone_number) WHERE phone_number IS NOT NULL;
`

// Migrate aplica el esquema de cuentas de forma idempotente.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
