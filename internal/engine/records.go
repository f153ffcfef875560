package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"formflow-backend/internal/instrument"
	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

// InsertResult reports a successful insert.
type InsertResult struct {
	InsertedCount int64 `json:"inserted_count"`
	ID            int64 `json:"id"`
}

// MessageResult is the acknowledgment returned by update and delete.
type MessageResult struct {
	Message string `json:"message"`
}

// RecordStore performs typed CRUD against form tables addressed by name.
// Shapes always come from the live table, never from the form registry.
type RecordStore struct {
	store    *store.Store
	migrator *store.Migrator
	identity Identity
	retry    RetryPolicy
	logger   *zap.Logger
}

func NewRecordStore(s *store.Store, m *store.Migrator, identity Identity, retry RetryPolicy, logger *zap.Logger) *RecordStore {
	return &RecordStore{store: s, migrator: m, identity: identity, retry: retry, logger: logger}
}

// Insert writes one record. The server stamps the audit columns and sets
// approval_status to PENDING; callers may not supply reserved columns.
func (r *RecordStore) Insert(ctx context.Context, table string, values map[string]any, actorID int64) (*InsertResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "records", "insert")
	defer span.End()
	span.SetEntity(table, nil)

	shape, err := resolveShape(ctx, r.migrator, r.store.DB, table)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	cols, args, err := bindValues(r.store.Dialect, shape, values)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	d := r.store.Dialect
	now := d.TimeParam(time.Now())
	actor := actorParam(actorID)
	cols = append(cols,
		metadata.ColumnApprovalStatus,
		metadata.ColumnCreatedAt, metadata.ColumnUpdatedAt,
		metadata.ColumnCreatedBy, metadata.ColumnUpdatedBy,
	)
	args = append(args, string(metadata.StatusPending), now, now, actor, actor)

	pb := d.NewParamBuilder()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = store.QuoteIdent(c)
		placeholders[i] = pb.Add(args[i])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		store.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
		store.QuoteIdent(metadata.ColumnID))

	var id int64
	err = r.retry.Do(ctx, r.logger, "insert", func() error {
		return r.store.InTx(ctx, func(q store.Querier) error {
			err := q.QueryRowContext(ctx, query, pb.Params()...).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return insertRejectedError(table)
			}
			return d.MapError(err)
		})
	})
	if err != nil {
		span.SetStatus("error")
		return nil, TranslateError(err)
	}

	span.SetEntity(table, id)
	instrument.RecordWrites.WithLabelValues("insert").Inc()
	r.logger.Info("record inserted", zap.String("table", table), zap.Int64("id", id), zap.Int64("actor", actorID))
	return &InsertResult{InsertedCount: 1, ID: id}, nil
}

// Get returns one record by primary key.
func (r *RecordStore) Get(ctx context.Context, table string, id int64) (map[string]any, error) {
	shape, err := resolveShape(ctx, r.migrator, r.store.DB, table)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	err = r.retry.Do(ctx, r.logger, "get", func() error {
		var err error
		row, err = fetchRecord(ctx, r.store.DB, r.store.Dialect, shape, id, false)
		return err
	})
	if err != nil {
		return nil, TranslateError(err)
	}
	return row, nil
}

// List returns every record in the table ordered by id.
func (r *RecordStore) List(ctx context.Context, table string) ([]map[string]any, error) {
	shape, err := resolveShape(ctx, r.migrator, r.store.DB, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", store.QuoteIdent(table), store.QuoteIdent(metadata.ColumnID))
	var rows []map[string]any
	err = r.retry.Do(ctx, r.logger, "list", func() error {
		var err error
		rows, err = store.QueryRows(ctx, r.store.DB, query)
		return r.store.Dialect.MapError(err)
	})
	if err != nil {
		return nil, TranslateError(err)
	}
	for _, row := range rows {
		normalizeRow(shape, row)
	}
	return rows, nil
}

// Update sets the supplied columns on one record and stamps updated_at and
// updated_by. Reserved columns are rejected.
func (r *RecordStore) Update(ctx context.Context, table string, id int64, values map[string]any, actorID int64) (*MessageResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "records", "update")
	defer span.End()
	span.SetEntity(table, id)

	shape, err := resolveShape(ctx, r.migrator, r.store.DB, table)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	if len(values) == 0 {
		span.SetStatus("error")
		return nil, ValidationError([]ErrorDetail{{Rule: "required", Message: "no fields to update"}})
	}
	cols, args, err := bindValues(r.store.Dialect, shape, values)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	d := r.store.Dialect
	cols = append(cols, metadata.ColumnUpdatedAt, metadata.ColumnUpdatedBy)
	args = append(args, d.TimeParam(time.Now()), actorParam(actorID))

	pb := d.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = store.QuoteIdent(c) + " = " + pb.Add(args[i])
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		store.QuoteIdent(table), strings.Join(sets, ", "), store.QuoteIdent(metadata.ColumnID), pb.Add(id))

	err = r.retry.Do(ctx, r.logger, "update", func() error {
		return r.store.InTx(ctx, func(q store.Querier) error {
			n, err := store.Exec(ctx, q, query, pb.Params()...)
			if err != nil {
				return d.MapError(err)
			}
			if n == 0 {
				return recordNotFoundError(table, id)
			}
			return nil
		})
	})
	if err != nil {
		span.SetStatus("error")
		return nil, TranslateError(err)
	}

	instrument.RecordWrites.WithLabelValues("update").Inc()
	r.logger.Info("record updated", zap.String("table", table), zap.Int64("id", id), zap.Int64("actor", actorID))
	return &MessageResult{Message: fmt.Sprintf("Record %d in %s updated", id, table)}, nil
}

// Delete acknowledges a delete request from an admin. Records are retained:
// the call only verifies the record exists and logs the request.
func (r *RecordStore) Delete(ctx context.Context, table string, id int64, actorID int64) (*MessageResult, error) {
	actor, err := r.identity.ResolveUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("User", actorID)
		}
		return nil, TranslateError(err)
	}
	if !IsAdmin(actor) {
		return nil, ForbiddenError("Admin access required to delete records")
	}

	if _, err := r.Get(ctx, table, id); err != nil {
		return nil, err
	}

	r.logger.Info("record delete requested, record retained",
		zap.String("table", table), zap.Int64("id", id), zap.Int64("actor", actorID))
	return &MessageResult{Message: fmt.Sprintf("Delete request for record %d in %s acknowledged", id, table)}, nil
}

func resolveShape(ctx context.Context, m *store.Migrator, q store.Querier, table string) (*metadata.TableShape, error) {
	shape, err := m.Resolve(ctx, q, table)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, UnknownTableError(table)
		}
		return nil, TranslateError(err)
	}
	return shape, nil
}

func fetchRecord(ctx context.Context, q store.Querier, d store.Dialect, shape *metadata.TableShape, id int64, lock bool) (map[string]any, error) {
	pb := d.NewParamBuilder()
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		store.QuoteIdent(shape.Table), store.QuoteIdent(metadata.ColumnID), pb.Add(id))
	if lock {
		query += d.ForUpdate()
	}

	row, err := store.QueryRow(ctx, q, query, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, recordNotFoundError(shape.Table, id)
		}
		return nil, d.MapError(err)
	}
	return normalizeRow(shape, row), nil
}

// bindValues checks caller values against the live shape and coerces them.
// Every offending field is reported, not just the first.
func bindValues(d store.Dialect, shape *metadata.TableShape, values map[string]any) ([]string, []any, error) {
	var (
		cols    []string
		args    []any
		details []ErrorDetail
	)
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if metadata.IsReserved(name) {
			details = append(details, ErrorDetail{Field: name, Rule: "reserved", Message: "column is set by the server"})
			continue
		}
		col := shape.Column(name)
		if col == nil {
			details = append(details, ErrorDetail{Field: name, Rule: "unknown", Message: fmt.Sprintf("no such column in %s", shape.Table)})
			continue
		}
		v, err := coerceValue(d, *col, values[name])
		if err != nil {
			details = append(details, ErrorDetail{Field: name, Rule: "type", Message: err.Error()})
			continue
		}
		cols = append(cols, name)
		args = append(args, v)
	}
	if len(details) > 0 {
		return nil, nil, ValidationError(details)
	}
	return cols, args, nil
}

// actorParam binds 0 (no known actor) as NULL.
func actorParam(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func recordNotFoundError(table string, id int64) *AppError {
	return NotFoundError("Record in "+table, id)
}

func insertRejectedError(table string) *AppError {
	return &AppError{
		Code:    CodeStorageUnavailable,
		Status:  503,
		Message: fmt.Sprintf("Insert into %s rejected: no row was written", table),
	}
}
