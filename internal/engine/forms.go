package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"formflow-backend/internal/instrument"
	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

const formColumns = "id, name, fields, description, owner_id, created_at, updated_at"

// FormRegistry persists form definitions in _forms and keeps each one's
// table in step: every registry change and its DDL commit together.
type FormRegistry struct {
	store    *store.Store
	migrator *store.Migrator
	retry    RetryPolicy
	logger   *zap.Logger
}

func NewFormRegistry(s *store.Store, m *store.Migrator, retry RetryPolicy, logger *zap.Logger) *FormRegistry {
	return &FormRegistry{store: s, migrator: m, retry: retry, logger: logger}
}

// Define registers a form and materializes its table in one transaction.
func (f *FormRegistry) Define(ctx context.Context, name string, fields metadata.FieldMap, ownerID int64, description string) (*metadata.Form, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "forms", "define")
	defer span.End()
	span.SetEntity(name, nil)

	form := &metadata.Form{Name: name, Fields: fields, Description: description, OwnerID: ownerID}
	if problems := form.Validate(); len(problems) > 0 {
		span.SetStatus("error")
		return nil, problemsError(problems)
	}
	fieldsJSON, err := json.Marshal(form.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}

	d := f.store.Dialect
	now := time.Now().UTC()
	err = f.retry.Do(ctx, f.logger, "define_form", func() error {
		return f.store.InTx(ctx, func(q store.Querier) error {
			pb := d.NewParamBuilder()
			query := fmt.Sprintf(`INSERT INTO _forms (name, fields, description, owner_id, created_at, updated_at)
				VALUES (%s, %s, %s, %s, %s, %s) RETURNING id`,
				pb.Add(form.Name), pb.Add(string(fieldsJSON)), pb.Add(form.Description),
				pb.Add(actorParam(ownerID)), pb.Add(d.TimeParam(now)), pb.Add(d.TimeParam(now)))
			if err := q.QueryRowContext(ctx, query, pb.Params()...).Scan(&form.ID); err != nil {
				return duplicateFormError(d.MapError(err), form.Name)
			}

			_, err := f.migrator.Materialize(ctx, q, form)
			return err
		})
	})
	f.migrator.Invalidate(form.Name)
	if err != nil {
		span.SetStatus("error")
		return nil, TranslateError(err)
	}

	form.CreatedAt, form.UpdatedAt = now, now
	instrument.FormsDefined.Inc()
	f.logger.Info("form defined", zap.Int64("id", form.ID), zap.String("name", form.Name), zap.Int("fields", len(form.Fields)))
	return form, nil
}

// Get returns a form by id.
func (f *FormRegistry) Get(ctx context.Context, id int64) (*metadata.Form, error) {
	form, err := f.getForm(ctx, f.store.DB, id, false)
	if err != nil {
		return nil, TranslateError(err)
	}
	return form, nil
}

// List returns every form ordered by id.
func (f *FormRegistry) List(ctx context.Context) ([]*metadata.Form, error) {
	rows, err := store.QueryRows(ctx, f.store.DB, "SELECT "+formColumns+" FROM _forms ORDER BY id")
	if err != nil {
		return nil, TranslateError(f.store.Dialect.MapError(err))
	}
	forms := make([]*metadata.Form, 0, len(rows))
	for _, row := range rows {
		form, err := scanForm(row)
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	return forms, nil
}

// Update renames and/or reshapes a form. Only allowed while the form's
// table holds no records: the old table is dropped and the new one created
// in the same transaction as the registry row change. An empty name or nil
// field map keeps the current value.
func (f *FormRegistry) Update(ctx context.Context, id int64, newName string, newFields metadata.FieldMap) (*metadata.Form, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "forms", "update")
	defer span.End()

	d := f.store.Dialect
	var updated *metadata.Form
	var oldName string
	err := f.retry.Do(ctx, f.logger, "update_form", func() error {
		return f.store.InTx(ctx, func(q store.Querier) error {
			current, err := f.getForm(ctx, q, id, true)
			if err != nil {
				return err
			}
			oldName = current.Name

			next := *current
			if newName != "" {
				next.Name = newName
			}
			if newFields != nil {
				next.Fields = newFields
			}
			if problems := next.Validate(); len(problems) > 0 {
				return problemsError(problems)
			}
			fieldsJSON, err := json.Marshal(next.Fields)
			if err != nil {
				return fmt.Errorf("marshal fields: %w", err)
			}

			if err := f.migrator.DropIfEmpty(ctx, q, current.Name); err != nil {
				return formNotEmptyError(err, current.Name)
			}

			next.UpdatedAt = time.Now().UTC()
			pb := d.NewParamBuilder()
			query := fmt.Sprintf("UPDATE _forms SET name = %s, fields = %s, updated_at = %s WHERE id = %s",
				pb.Add(next.Name), pb.Add(string(fieldsJSON)), pb.Add(d.TimeParam(next.UpdatedAt)), pb.Add(id))
			if _, err := store.Exec(ctx, q, query, pb.Params()...); err != nil {
				return duplicateFormError(d.MapError(err), next.Name)
			}

			if _, err := f.migrator.Materialize(ctx, q, &next); err != nil {
				return err
			}
			updated = &next
			return nil
		})
	})
	if oldName != "" {
		f.migrator.Invalidate(oldName)
	}
	if err != nil {
		span.SetStatus("error")
		return nil, TranslateError(err)
	}

	f.migrator.Invalidate(updated.Name)
	span.SetEntity(updated.Name, id)
	f.logger.Info("form updated", zap.Int64("id", id), zap.String("old_name", oldName), zap.String("name", updated.Name))
	return updated, nil
}

// Delete removes a form and its table. Only allowed while the table holds
// no records.
func (f *FormRegistry) Delete(ctx context.Context, id int64) error {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "forms", "delete")
	defer span.End()

	d := f.store.Dialect
	var name string
	err := f.retry.Do(ctx, f.logger, "delete_form", func() error {
		return f.store.InTx(ctx, func(q store.Querier) error {
			current, err := f.getForm(ctx, q, id, true)
			if err != nil {
				return err
			}
			name = current.Name

			if err := f.migrator.DropIfEmpty(ctx, q, current.Name); err != nil {
				return formNotEmptyError(err, current.Name)
			}

			pb := d.NewParamBuilder()
			if _, err := store.Exec(ctx, q, "DELETE FROM _forms WHERE id = "+pb.Add(id), pb.Params()...); err != nil {
				return d.MapError(err)
			}
			return nil
		})
	})
	if name != "" {
		f.migrator.Invalidate(name)
	}
	if err != nil {
		span.SetStatus("error")
		return TranslateError(err)
	}

	span.SetEntity(name, id)
	f.logger.Info("form deleted", zap.Int64("id", id), zap.String("name", name))
	return nil
}

func (f *FormRegistry) getForm(ctx context.Context, q store.Querier, id int64, lock bool) (*metadata.Form, error) {
	d := f.store.Dialect
	pb := d.NewParamBuilder()
	query := "SELECT " + formColumns + " FROM _forms WHERE id = " + pb.Add(id)
	if lock {
		query += d.ForUpdate()
	}
	row, err := store.QueryRow(ctx, q, query, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Form", id)
		}
		return nil, d.MapError(err)
	}
	return scanForm(row)
}

func scanForm(row map[string]any) (*metadata.Form, error) {
	form := &metadata.Form{
		ID:          cast.ToInt64(row["id"]),
		Name:        cast.ToString(row["name"]),
		Description: cast.ToString(row["description"]),
		OwnerID:     cast.ToInt64(row["owner_id"]),
	}
	if err := json.Unmarshal([]byte(cast.ToString(row["fields"])), &form.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of form %s: %w", form.Name, err)
	}
	form.CreatedAt, _ = store.ParseTime(row["created_at"])
	form.UpdatedAt, _ = store.ParseTime(row["updated_at"])
	return form, nil
}

func problemsError(problems []metadata.Problem) *AppError {
	details := make([]ErrorDetail, len(problems))
	for i, p := range problems {
		details[i] = ErrorDetail{Field: p.Field, Message: p.Message}
	}
	return ValidationError(details)
}

func duplicateFormError(err error, name string) error {
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError(fmt.Sprintf("Form %q already exists", name))
	}
	return err
}

func formNotEmptyError(err error, name string) error {
	if errors.Is(err, store.ErrTableNotEmpty) {
		return ConflictError(fmt.Sprintf("Form %q already has records; its table can no longer change", name))
	}
	return err
}
