package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"formflow-backend/internal/instrument"
	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

// ApprovalResult is returned by a successful approve.
type ApprovalResult struct {
	Status  metadata.ApprovalStatus `json:"status"`
	Message string                  `json:"message"`
}

// Approver drives the per-record approval state machine.
type Approver struct {
	store    *store.Store
	migrator *store.Migrator
	identity Identity
	retry    RetryPolicy
	logger   *zap.Logger
}

func NewApprover(s *store.Store, m *store.Migrator, identity Identity, retry RetryPolicy, logger *zap.Logger) *Approver {
	return &Approver{store: s, migrator: m, identity: identity, retry: retry, logger: logger}
}

// Approve advances a record one step according to the approver's role
// capability. Failures are checked in order: record missing, record already
// approved, approver (or their role) missing, capability insufficient.
// The read and write run in one transaction with the row locked.
func (a *Approver) Approve(ctx context.Context, table string, id, approverID int64) (*ApprovalResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "approval", "approve")
	defer span.End()
	span.SetEntity(table, id)

	result, err := a.approve(ctx, table, id, approverID)
	if err != nil {
		span.SetStatus("error")
		var appErr *AppError
		if errors.As(err, &appErr) {
			instrument.ApprovalOutcomes.WithLabelValues(appErr.Code).Inc()
		}
		return nil, err
	}

	instrument.ApprovalOutcomes.WithLabelValues(string(result.Status)).Inc()
	a.logger.Info("record approved",
		zap.String("table", table), zap.Int64("id", id),
		zap.Int64("approver", approverID), zap.String("status", string(result.Status)))
	return result, nil
}

func (a *Approver) approve(ctx context.Context, table string, id, approverID int64) (*ApprovalResult, error) {
	shape, err := resolveShape(ctx, a.migrator, a.store.DB, table)
	if err != nil {
		return nil, err
	}

	// Identity lookups go through their own connection, so they happen
	// before the transaction opens; the error is reported in order below.
	role, identErr := a.resolveApproverRole(ctx, approverID)
	var appErr *AppError
	if identErr != nil && !errors.As(identErr, &appErr) {
		return nil, TranslateError(identErr)
	}

	d := a.store.Dialect
	var result *ApprovalResult
	err = a.retry.Do(ctx, a.logger, "approve", func() error {
		return a.store.InTx(ctx, func(q store.Querier) error {
			row, err := fetchRecord(ctx, q, d, shape, id, true)
			if err != nil {
				return err
			}

			current := metadata.ApprovalStatus(cast.ToString(row[metadata.ColumnApprovalStatus]))
			if current.Terminal() {
				return ConflictError(fmt.Sprintf("Record %d in %s is already approved", id, table))
			}
			if identErr != nil {
				return identErr
			}

			next, ok := metadata.NextStatus(current, role.Capability)
			if !ok {
				return ForbiddenError(fmt.Sprintf("Role %s with capability %s cannot approve records", role.Name, role.Capability))
			}

			now := d.TimeParam(time.Now())
			pb := d.NewParamBuilder()
			query := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s, %s = %s, %s = %s, %s = %s, %s = %s WHERE %s = %s",
				store.QuoteIdent(table),
				store.QuoteIdent(metadata.ColumnApprovalStatus), pb.Add(string(next)),
				store.QuoteIdent(metadata.ColumnLastApprovedBy), pb.Add(approverID),
				store.QuoteIdent(metadata.ColumnLastApprovedByRole), pb.Add(role.ID),
				store.QuoteIdent(metadata.ColumnLastApprovedAt), pb.Add(now),
				store.QuoteIdent(metadata.ColumnUpdatedAt), pb.Add(now),
				store.QuoteIdent(metadata.ColumnUpdatedBy), pb.Add(approverID),
				store.QuoteIdent(metadata.ColumnID), pb.Add(id),
			)
			n, err := store.Exec(ctx, q, query, pb.Params()...)
			if err != nil {
				return d.MapError(err)
			}
			if n == 0 {
				return recordNotFoundError(table, id)
			}

			result = &ApprovalResult{
				Status:  next,
				Message: fmt.Sprintf("Record %d in %s moved from %s to %s", id, table, current, next),
			}
			return nil
		})
	})
	if err != nil {
		return nil, TranslateError(err)
	}
	return result, nil
}

// resolveApproverRole returns the approver's role. A missing user, a user
// without a role and a dangling role id all report NotFound.
func (a *Approver) resolveApproverRole(ctx context.Context, approverID int64) (*metadata.Role, error) {
	user, err := a.identity.ResolveUser(ctx, approverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Approver", approverID)
		}
		return nil, err
	}
	if user.RoleID == 0 {
		return nil, NotFoundError("Role for approver", approverID)
	}

	role, err := a.identity.ResolveRole(ctx, user.RoleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Role for approver", approverID)
		}
		return nil, err
	}
	return role, nil
}
