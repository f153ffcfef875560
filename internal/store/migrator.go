package store

import (
	"context"
	"fmt"

	"formflow-backend/internal/metadata"
)

// Migrator materializes form tables and reads their live shape back.
type Migrator struct {
	store  *Store
	shapes *metadata.ShapeCache
}

func NewMigrator(store *Store, shapes *metadata.ShapeCache) *Migrator {
	if shapes == nil {
		shapes = metadata.NewShapeCache()
	}
	return &Migrator{store: store, shapes: shapes}
}

// Materialize creates the form's table if it does not exist yet and returns
// the resulting shape. Runs on q so it joins the caller's transaction.
// Concurrent calls for the same name are serialized by LockTable.
func (m *Migrator) Materialize(ctx context.Context, q Querier, form *metadata.Form) (*metadata.TableShape, error) {
	d := m.store.Dialect
	table := form.Table()

	if err := d.LockTable(ctx, q, table); err != nil {
		return nil, fmt.Errorf("lock table %s: %w", table, d.MapError(err))
	}
	if _, err := Exec(ctx, q, BuildCreateTableSQL(d, form)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, d.MapError(err))
	}
	m.shapes.Invalidate(table)

	shape, err := m.introspect(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if !shape.IsWorkflowTable() {
		return nil, fmt.Errorf("table %s exists with an incompatible layout", table)
	}
	return shape, nil
}

// Resolve returns the live shape of a form table. Names that are not form
// identifiers, missing tables, and tables without the workflow columns all
// report ErrNotFound.
func (m *Migrator) Resolve(ctx context.Context, q Querier, table string) (*metadata.TableShape, error) {
	if !metadata.ValidIdentifier(table) {
		return nil, ErrNotFound
	}
	if shape := m.shapes.Get(table); shape != nil {
		return shape, nil
	}

	shape, err := m.introspect(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if len(shape.Columns) == 0 || !shape.IsWorkflowTable() {
		return nil, ErrNotFound
	}
	m.shapes.Put(shape)
	return shape, nil
}

// Drop removes a form table.
func (m *Migrator) Drop(ctx context.Context, q Querier, table string) error {
	d := m.store.Dialect
	if err := d.LockTable(ctx, q, table); err != nil {
		return fmt.Errorf("lock table %s: %w", table, d.MapError(err))
	}
	if _, err := Exec(ctx, q, "DROP TABLE IF EXISTS "+QuoteIdent(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, d.MapError(err))
	}
	m.shapes.Invalidate(table)
	return nil
}

// DropIfEmpty drops a form table only when it holds no records; otherwise
// it returns ErrTableNotEmpty. The table is locked before counting so no
// insert can land between the check and the drop. A missing table is not
// an error.
func (m *Migrator) DropIfEmpty(ctx context.Context, q Querier, table string) error {
	d := m.store.Dialect
	cols, err := d.GetColumns(ctx, q, table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", table, d.MapError(err))
	}
	if len(cols) == 0 {
		m.shapes.Invalidate(table)
		return nil
	}

	if lock := d.ExclusiveLockSQL(table); lock != "" {
		if _, err := Exec(ctx, q, lock); err != nil {
			return fmt.Errorf("lock table %s: %w", table, d.MapError(err))
		}
	}
	n, err := m.CountRows(ctx, q, table)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s has %d records", ErrTableNotEmpty, table, n)
	}
	return m.Drop(ctx, q, table)
}

// CountRows returns the number of records in a table.
func (m *Migrator) CountRows(ctx context.Context, q Querier, table string) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, m.store.Dialect.MapError(err))
	}
	return n, nil
}

// Invalidate drops cached shapes. Call after a transaction that changed
// table layout has committed.
func (m *Migrator) Invalidate(tables ...string) {
	m.shapes.Invalidate(tables...)
}

func (m *Migrator) introspect(ctx context.Context, q Querier, table string) (*metadata.TableShape, error) {
	cols, err := m.store.Dialect.GetColumns(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", table, m.store.Dialect.MapError(err))
	}
	return &metadata.TableShape{Table: table, Columns: cols}, nil
}
