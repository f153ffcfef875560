package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"formflow-backend/internal/metadata"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

// ForUpdate is empty: the pool holds a single connection, so a transaction
// already excludes every other writer.
func (d *SQLiteDialect) ForUpdate() string { return "" }

func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func (d *SQLiteDialect) ColumnType(t metadata.LogicalType) string {
	switch t {
	case metadata.TypeInteger:
		return "INTEGER"
	case metadata.TypeText:
		return "VARCHAR(255)"
	case metadata.TypeLongText:
		return "TEXT"
	case metadata.TypeReal:
		return "REAL"
	case metadata.TypeBoolean:
		return "BOOLEAN"
	case metadata.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return ""
	}
}

// LogicalType takes declared types as reported by PRAGMA table_info.
func (d *SQLiteDialect) LogicalType(physical string) (metadata.LogicalType, bool) {
	base := strings.ToUpper(strings.TrimSpace(physical))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch base {
	case "INTEGER", "INT", "BIGINT":
		return metadata.TypeInteger, true
	case "VARCHAR":
		return metadata.TypeText, true
	case "TEXT":
		return metadata.TypeLongText, true
	case "REAL", "DOUBLE", "FLOAT":
		return metadata.TypeReal, true
	case "BOOLEAN":
		return metadata.TypeBoolean, true
	case "TIMESTAMP", "DATETIME":
		return metadata.TypeTimestamp, true
	default:
		return "", false
	}
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) LockTable(_ context.Context, _ Querier, _ string) error {
	return nil
}

func (d *SQLiteDialect) ExclusiveLockSQL(_ string) string { return "" }

func (d *SQLiteDialect) GetColumns(ctx context.Context, q Querier, table string) ([]metadata.Column, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?1) ORDER BY cid`, table)
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

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch code := sqErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}

	// Extended result codes are not always surfaced; fall back to the message.
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case strings.Contains(errStr, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case strings.Contains(errStr, "database is locked"):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _roles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        VARCHAR(64) NOT NULL UNIQUE,
    capability  VARCHAR(32) NOT NULL CHECK (capability IN ('INSERT', 'UPDATE_APPROVE', 'SIGNOFF')),
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS _users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          VARCHAR(255) NOT NULL,
    email         VARCHAR(255) NOT NULL UNIQUE,
    phone         VARCHAR(32) UNIQUE,
    password_hash TEXT NOT NULL,
    role_id       INTEGER REFERENCES _roles(id),
    is_admin      BOOLEAN NOT NULL DEFAULT 0,
    active        BOOLEAN NOT NULL DEFAULT 1,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
    token      VARCHAR(64) NOT NULL UNIQUE,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON _refresh_tokens(expires_at);

CREATE TABLE IF NOT EXISTS _forms (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        VARCHAR(63) NOT NULL UNIQUE,
    fields      TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    owner_id    INTEGER REFERENCES _users(id),
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
