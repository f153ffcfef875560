package store

import (
	"fmt"
	"strings"

	"formflow-backend/internal/metadata"
)

// ColumnSpec is the storage representation of a logical type.
type ColumnSpec struct {
	Type     metadata.LogicalType
	Physical string
}

// ResolveType maps a type name (canonical or alias) to its physical column
// type for the dialect. ok is false for names outside the catalog.
func ResolveType(d Dialect, name string) (ColumnSpec, bool) {
	t, ok := metadata.ParseType(name)
	if !ok {
		return ColumnSpec{}, false
	}
	return ColumnSpec{Type: t, Physical: d.ColumnType(t)}, true
}

// BuildCreateTableSQL derives the DDL for a form's dynamic table. Fields
// whose type is not in the catalog are skipped.
func BuildCreateTableSQL(d Dialect, form *metadata.Form) string {
	intType := d.ColumnType(metadata.TypeInteger)
	tsType := d.ColumnType(metadata.TypeTimestamp)
	users := QuoteIdent("_users") + "(" + QuoteIdent("id") + ")"
	roles := QuoteIdent("_roles") + "(" + QuoteIdent("id") + ")"

	cols := []string{QuoteIdent(metadata.ColumnID) + " " + d.AutoIncrementPK()}
	for _, f := range form.Fields {
		spec, ok := ResolveType(d, f.Type)
		if !ok {
			continue
		}
		cols = append(cols, QuoteIdent(f.Name)+" "+spec.Physical)
	}

	statuses := make([]string, len(metadata.ApprovalStatuses))
	for i, s := range metadata.ApprovalStatuses {
		statuses[i] = "'" + string(s) + "'"
	}
	status := QuoteIdent(metadata.ColumnApprovalStatus)

	cols = append(cols,
		fmt.Sprintf("%s VARCHAR(32) NOT NULL DEFAULT '%s' CHECK (%s IN (%s))",
			status, metadata.StatusPending, status, strings.Join(statuses, ", ")),
		QuoteIdent(metadata.ColumnLastApprovedBy)+" "+intType+" REFERENCES "+users,
		QuoteIdent(metadata.ColumnLastApprovedByRole)+" "+intType+" REFERENCES "+roles,
		QuoteIdent(metadata.ColumnLastApprovedAt)+" "+tsType,
		QuoteIdent(metadata.ColumnCreatedAt)+" "+tsType+" NOT NULL",
		QuoteIdent(metadata.ColumnUpdatedAt)+" "+tsType+" NOT NULL",
		QuoteIdent(metadata.ColumnCreatedBy)+" "+intType+" REFERENCES "+users,
		QuoteIdent(metadata.ColumnUpdatedBy)+" "+intType+" REFERENCES "+users,
	)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		QuoteIdent(form.Table()), strings.Join(cols, ",\n  "))
}
