package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Reserved workflow columns present on every dynamic table.
const (
	ColumnID                 = "id"
	ColumnApprovalStatus     = "approval_status"
	ColumnLastApprovedBy     = "last_approved_by"
	ColumnLastApprovedByRole = "last_approved_by_role"
	ColumnLastApprovedAt     = "last_approved_at"
	ColumnCreatedAt          = "created_at"
	ColumnUpdatedAt          = "updated_at"
	ColumnCreatedBy          = "created_by"
	ColumnUpdatedBy          = "updated_by"
)

// ReservedColumns are appended to every dynamic table in this order.
var ReservedColumns = []string{
	ColumnApprovalStatus,
	ColumnLastApprovedBy,
	ColumnLastApprovedByRole,
	ColumnLastApprovedAt,
	ColumnCreatedAt,
	ColumnUpdatedAt,
	ColumnCreatedBy,
	ColumnUpdatedBy,
}

// IsReserved reports whether name is the primary key or a workflow column.
func IsReserved(name string) bool {
	if name == ColumnID {
		return true
	}
	for _, c := range ReservedColumns {
		if c == name {
			return true
		}
	}
	return false
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidIdentifier reports whether s can be used as a table or column name.
// Names are lowercase ASCII and never start with an underscore, which keeps
// them clear of the system tables.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// Field is one user-declared column.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FieldMap is an ordered field_name -> type mapping. It travels as a JSON
// object and keeps the key order it was given.
type FieldMap []Field

func (m *FieldMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("field map must be a JSON object")
	}

	fields := FieldMap{}
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var typ string
		if err := dec.Decode(&typ); err != nil {
			return fmt.Errorf("field %q: type must be a string", key)
		}
		if seen[key] {
			return fmt.Errorf("duplicate field %q", key)
		}
		seen[key] = true
		fields = append(fields, Field{Name: key, Type: typ})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = fields
	return nil
}

func (m FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Type)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Names returns the field names in declaration order.
func (m FieldMap) Names() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Name
	}
	return names
}

// Form is a user-authored schema definition for one dynamic table.
type Form struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Fields      FieldMap  `json:"fields"`
	Description string    `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Table returns the physical table name backing the form.
func (f *Form) Table() string {
	return f.Name
}

// Problem describes one reason a form definition was rejected.
type Problem struct {
	Field   string
	Message string
}

// Validate checks the name and field map. Type names are canonicalized in
// place so the stored definition always uses catalog spellings.
func (f *Form) Validate() []Problem {
	var problems []Problem

	if !ValidIdentifier(f.Name) {
		problems = append(problems, Problem{Field: "name",
			Message: fmt.Sprintf("invalid form name %q: use lowercase letters, digits and underscores, starting with a letter", f.Name)})
	}
	if len(f.Fields) == 0 {
		problems = append(problems, Problem{Field: "fields", Message: "at least one field is required"})
	}

	seen := make(map[string]bool, len(f.Fields))
	for i := range f.Fields {
		fld := &f.Fields[i]
		switch {
		case !ValidIdentifier(fld.Name):
			problems = append(problems, Problem{Field: fld.Name, Message: fmt.Sprintf("invalid field name %q", fld.Name)})
		case IsReserved(fld.Name):
			problems = append(problems, Problem{Field: fld.Name, Message: fmt.Sprintf("field name %q is reserved", fld.Name)})
		case seen[fld.Name]:
			problems = append(problems, Problem{Field: fld.Name, Message: fmt.Sprintf("duplicate field %q", fld.Name)})
		}
		seen[fld.Name] = true

		t, ok := ParseType(fld.Type)
		if !ok {
			problems = append(problems, Problem{Field: fld.Name, Message: fmt.Sprintf("unknown field type %q", fld.Type)})
			continue
		}
		fld.Type = string(t)
	}

	return problems
}
