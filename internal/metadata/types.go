package metadata

import "strings"

// LogicalType is one of the closed set of field types a form may declare.
type LogicalType string

const (
	TypeInteger   LogicalType = "integer"
	TypeText      LogicalType = "text"
	TypeTimestamp LogicalType = "timestamp"
	TypeBoolean   LogicalType = "boolean"
	TypeReal      LogicalType = "real"
	TypeLongText  LogicalType = "long_text"
)

// LogicalTypes lists every recognized type in a stable order.
var LogicalTypes = []LogicalType{TypeInteger, TypeText, TypeTimestamp, TypeBoolean, TypeReal, TypeLongText}

// typeAliases accepts the spellings older clients send ("String", "DateTime", ...).
var typeAliases = map[string]LogicalType{
	"integer":   TypeInteger,
	"int":       TypeInteger,
	"text":      TypeText,
	"string":    TypeText,
	"timestamp": TypeTimestamp,
	"datetime":  TypeTimestamp,
	"boolean":   TypeBoolean,
	"bool":      TypeBoolean,
	"real":      TypeReal,
	"float":     TypeReal,
	"long_text": TypeLongText,
	"long-text": TypeLongText,
	"longtext":  TypeLongText,
}

// ParseType resolves a type name, case-insensitively and including aliases.
// The second result is false for names outside the catalog.
func ParseType(name string) (LogicalType, bool) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Canonical returns the canonical spelling, or the input unchanged when unknown.
func Canonical(name string) string {
	if t, ok := ParseType(name); ok {
		return string(t)
	}
	return name
}
