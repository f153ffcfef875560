package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"formflow-backend/internal/metadata"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) AutoIncrementPK() string { return "BIGSERIAL PRIMARY KEY" }
func (d *PostgresDialect) ForUpdate() string       { return " FOR UPDATE" }

func (d *PostgresDialect) TimeParam(t time.Time) any { return t.UTC() }

func (d *PostgresDialect) ColumnType(t metadata.LogicalType) string {
	switch t {
	case metadata.TypeInteger:
		return "BIGINT"
	case metadata.TypeText:
		return "VARCHAR(255)"
	case metadata.TypeLongText:
		return "TEXT"
	case metadata.TypeReal:
		return "DOUBLE PRECISION"
	case metadata.TypeBoolean:
		return "BOOLEAN"
	case metadata.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return ""
	}
}

// LogicalType takes information_schema.columns.data_type values.
func (d *PostgresDialect) LogicalType(physical string) (metadata.LogicalType, bool) {
	switch physical {
	case "bigint", "integer", "smallint":
		return metadata.TypeInteger, true
	case "character varying", "character":
		return metadata.TypeText, true
	case "text":
		return metadata.TypeLongText, true
	case "double precision", "real", "numeric":
		return metadata.TypeReal, true
	case "boolean":
		return metadata.TypeBoolean, true
	case "timestamp with time zone", "timestamp without time zone":
		return metadata.TypeTimestamp, true
	default:
		return "", false
	}
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) LockTable(ctx context.Context, q Querier, table string) error {
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table)
	return err
}

func (d *PostgresDialect) ExclusiveLockSQL(table string) string {
	return "LOCK TABLE " + QuoteIdent(table) + " IN ACCESS EXCLUSIVE MODE"
}

func (d *PostgresDialect) GetColumns(ctx context.Context, q Querier, table string) ([]metadata.Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_name = $1 AND table_schema = current_schema()
		 ORDER BY ordinal_position`,
		table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []metadata.Column
	for rows.Next() {
		var c metadata.Column
		if err := rows.Scan(&c.Name, &c.Physical); err != nil {
			return nil, err
		}
		c.Type, _ = d.LogicalType(c.Physical)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// SQLSTATE codes worth retrying: serialization_failure, deadlock_detected,
// lock_not_available, query_canceled.
var pgTransientCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
	"57014": true,
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "23505":
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case pgErr.Code == "23503":
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case pgTransientCodes[pgErr.Code]:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _roles (
    id          BIGSERIAL PRIMARY KEY,
    name        VARCHAR(64) NOT NULL UNIQUE,
    capability  VARCHAR(32) NOT NULL CHECK (capability IN ('INSERT', 'UPDATE_APPROVE', 'SIGNOFF')),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _users (
    id            BIGSERIAL PRIMARY KEY,
    name          VARCHAR(255) NOT NULL,
    email         VARCHAR(255) NOT NULL UNIQUE,
    phone         VARCHAR(32) UNIQUE,
    password_hash TEXT NOT NULL,
    role_id       BIGINT REFERENCES _roles(id),
    is_admin      BOOLEAN NOT NULL DEFAULT false,
    active        BOOLEAN NOT NULL DEFAULT true,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id         BIGSERIAL PRIMARY KEY,
    user_id    BIGINT NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token      VARCHAR(64) NOT NULL UNIQUE,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON _refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS _forms (
    id          BIGSERIAL PRIMARY KEY,
    name        VARCHAR(63) NOT NULL UNIQUE,
    fields      TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    owner_id    BIGINT REFERENCES _users(id),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
