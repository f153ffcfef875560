package store

import (
	"context"
	"fmt"
	"time"

	"formflow-backend/internal/metadata"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a logical field type to the DDL type. Every logical
	// type gets a distinct physical type so LogicalType can invert it.
	ColumnType(t metadata.LogicalType) string

	// LogicalType maps a physical type reported by introspection back to
	// the logical type. The second result is false for foreign types.
	LogicalType(physical string) (metadata.LogicalType, bool)

	// AutoIncrementPK returns the DDL for an auto-increment integer id column.
	AutoIncrementPK() string

	// ForUpdate returns the row-lock suffix for a SELECT, or "" when the
	// backend serializes writers by itself.
	ForUpdate() string

	// TimeParam encodes a timestamp for binding.
	TimeParam(t time.Time) any

	// SystemTablesSQL returns the DDL for the roles, users, refresh tokens
	// and forms tables.
	SystemTablesSQL() string

	// LockTable takes a transaction-scoped lock on a table name so concurrent
	// DDL for the same name is serialized. A no-op where the backend already
	// allows only one writer.
	LockTable(ctx context.Context, q Querier, table string) error

	// ExclusiveLockSQL returns a statement that blocks all other access to a
	// table until the transaction ends, or "" when not needed.
	ExclusiveLockSQL(table string) string

	// GetColumns returns the live columns of a table in ordinal order.
	// An empty result means the table does not exist.
	GetColumns(ctx context.Context, q Querier, table string) ([]metadata.Column, error)

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// QuoteIdent double-quotes an identifier. Callers only pass names that
// already passed metadata.ValidIdentifier or are fixed system names.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }
func (p *pgParamBuilder) Count() int    { return p.n }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
func (p *sqliteParamBuilder) Count() int    { return p.n }
