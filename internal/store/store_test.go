package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formflow-backend/internal/config"
	"formflow-backend/internal/metadata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	seed := config.SeedAdminConfig{Email: "admin@localhost", Password: "changeme"}
	require.NoError(t, s.Bootstrap(ctx, seed, zap.NewNop()))
	return s
}

func surveyForm() *metadata.Form {
	return &metadata.Form{
		Name: "survey",
		Fields: metadata.FieldMap{
			{Name: "name", Type: "text"},
			{Name: "age", Type: "integer"},
			{Name: "score", Type: "real"},
			{Name: "active", Type: "boolean"},
			{Name: "visited", Type: "timestamp"},
			{Name: "notes", Type: "long_text"},
		},
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Bootstrap(ctx, config.SeedAdminConfig{Email: "other@localhost", Password: "x"}, zap.NewNop()))

	roles, err := QueryRows(ctx, s.DB, "SELECT name, capability FROM _roles ORDER BY id")
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, "L1", roles[0]["name"])
	assert.Equal(t, "SIGNOFF", roles[2]["capability"])

	users, err := QueryRows(ctx, s.DB, "SELECT email, is_admin FROM _users")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin@localhost", users[0]["email"])
}

func TestResolveType(t *testing.T) {
	pg := NewDialect("postgres")
	spec, ok := ResolveType(pg, "DateTime")
	require.True(t, ok)
	assert.Equal(t, metadata.TypeTimestamp, spec.Type)
	assert.Equal(t, "TIMESTAMPTZ", spec.Physical)

	_, ok = ResolveType(pg, "uuid")
	assert.False(t, ok)
}

func TestSQLiteDialect_LogicalTypeRoundTrip(t *testing.T) {
	d := NewDialect("sqlite")
	for _, lt := range metadata.LogicalTypes {
		got, ok := d.LogicalType(d.ColumnType(lt))
		require.True(t, ok, lt)
		assert.Equal(t, lt, got)
	}
}

func TestPostgresDialect_LogicalType(t *testing.T) {
	d := NewDialect("postgres")
	cases := map[string]metadata.LogicalType{
		"bigint":                   metadata.TypeInteger,
		"character varying":        metadata.TypeText,
		"text":                     metadata.TypeLongText,
		"double precision":         metadata.TypeReal,
		"boolean":                  metadata.TypeBoolean,
		"timestamp with time zone": metadata.TypeTimestamp,
	}
	for physical, want := range cases {
		got, ok := d.LogicalType(physical)
		require.True(t, ok, physical)
		assert.Equal(t, want, got)
	}
	_, ok := d.LogicalType("jsonb")
	assert.False(t, ok)
}

func TestBuildCreateTableSQL(t *testing.T) {
	form := surveyForm()
	form.Fields = append(form.Fields, metadata.Field{Name: "blob", Type: "binary"})

	ddl := BuildCreateTableSQL(NewDialect("postgres"), form)
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "survey"`)
	assert.Contains(t, ddl, `"id" BIGSERIAL PRIMARY KEY`)
	assert.Contains(t, ddl, `"name" VARCHAR(255)`)
	assert.Contains(t, ddl, `"notes" TEXT`)
	assert.Contains(t, ddl, `"approval_status" VARCHAR(32) NOT NULL DEFAULT 'PENDING'`)
	assert.Contains(t, ddl, `"last_approved_by_role" BIGINT REFERENCES "_roles"("id")`)
	assert.NotContains(t, ddl, "blob")
}

func TestMigrator_Materialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := NewMigrator(s, nil)

	var shape *metadata.TableShape
	require.NoError(t, s.InTx(ctx, func(q Querier) error {
		var err error
		shape, err = m.Materialize(ctx, q, surveyForm())
		return err
	}))
	assert.True(t, shape.IsWorkflowTable())

	user := shape.UserColumns()
	require.Len(t, user, 6)
	assert.Equal(t, "name", user[0].Name)
	assert.Equal(t, metadata.TypeText, user[0].Type)
	assert.Equal(t, metadata.TypeBoolean, user[3].Type)
	assert.Equal(t, metadata.TypeLongText, user[5].Type)

	// second call is a no-op
	require.NoError(t, s.InTx(ctx, func(q Querier) error {
		_, err := m.Materialize(ctx, q, surveyForm())
		return err
	}))

	resolved, err := m.Resolve(ctx, s.DB, "survey")
	require.NoError(t, err)
	assert.Equal(t, shape.ColumnNames(), resolved.ColumnNames())
}

func TestMigrator_MaterializeRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := NewMigrator(s, nil)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q Querier) error {
		if _, err := m.Materialize(ctx, q, surveyForm()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Resolve(ctx, s.DB, "survey")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrator_ResolveRejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := NewMigrator(s, nil)

	_, err := Exec(ctx, s.DB, `CREATE TABLE plain (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	for _, table := range []string{"missing", "_users", "plain", "Bad Name"} {
		_, err := m.Resolve(ctx, s.DB, table)
		assert.ErrorIs(t, err, ErrNotFound, table)
	}
}

func TestMigrator_DropAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := NewMigrator(s, nil)

	require.NoError(t, s.InTx(ctx, func(q Querier) error {
		_, err := m.Materialize(ctx, q, surveyForm())
		return err
	}))
	n, err := m.CountRows(ctx, s.DB, "survey")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = m.Resolve(ctx, s.DB, "survey")
	require.NoError(t, err)

	require.NoError(t, s.InTx(ctx, func(q Querier) error {
		return m.Drop(ctx, q, "survey")
	}))
	_, err = m.Resolve(ctx, s.DB, "survey")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMigrator_DropIfEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := NewMigrator(s, nil)

	require.NoError(t, s.InTx(ctx, func(q Querier) error {
		_, err := m.Materialize(ctx, q, surveyForm())
		return err
	}))
	_, err := Exec(ctx, s.DB, `INSERT INTO survey (name, created_at, updated_at) VALUES ('a', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)

	err = s.InTx(ctx, func(q Querier) error { return m.DropIfEmpty(ctx, q, "survey") })
	require.ErrorIs(t, err, ErrTableNotEmpty)
	_, err = m.Resolve(ctx, s.DB, "survey")
	require.NoError(t, err)

	// missing tables are fine
	require.NoError(t, s.InTx(ctx, func(q Querier) error { return m.DropIfEmpty(ctx, q, "nothing_here") }))
}

func TestSQLiteMapError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := Exec(ctx, s.DB, `INSERT INTO _roles (name, capability) VALUES ('L1', 'INSERT')`)
	require.Error(t, err)
	assert.ErrorIs(t, s.Dialect.MapError(err), ErrUniqueViolation)

	_, err = Exec(ctx, s.DB, `INSERT INTO _users (name, email, password_hash, role_id) VALUES ('x', 'x@y', 'h', 999)`)
	require.Error(t, err)
	assert.ErrorIs(t, s.Dialect.MapError(err), ErrForeignKeyViolation)

	assert.NoError(t, s.Dialect.MapError(nil))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	for _, v := range []any{
		want,
		want.Format(sqliteTimeLayout),
		"2024-03-01 10:30:00",
		[]byte("2024-03-01T10:30:00Z"),
	} {
		got, ok := ParseTime(v)
		require.True(t, ok, "%v", v)
		assert.True(t, want.Equal(got), "%v", v)
	}

	_, ok := ParseTime("not a time")
	assert.False(t, ok)
	_, ok = ParseTime(42)
	assert.False(t, ok)
}
