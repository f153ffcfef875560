package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"

	"formflow-backend/internal/metadata"
	"formflow-backend/internal/store"
)

const maxTextLength = 255

// maxExactFloat is 2^53, the largest magnitude below which every integer
// has an exact float64 representation.
const maxExactFloat = 1 << 53

// coerceValue converts a decoded JSON value to the column's logical type and
// returns it in the form the dialect binds. nil stays nil.
func coerceValue(d store.Dialect, col metadata.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("expected a scalar %s value", col.Type)
	}

	switch col.Type {
	case metadata.TypeInteger:
		n, err := coerceInteger(v)
		if err != nil {
			return nil, err
		}
		return n, nil

	case metadata.TypeReal:
		if _, ok := v.(bool); ok {
			return nil, fmt.Errorf("expected number, got boolean")
		}
		if n, ok := v.(json.Number); ok {
			v = n.String()
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("expected number: %w", err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected a finite number, got %v", v)
		}
		return f, nil

	case metadata.TypeBoolean:
		b, err := coerceBoolean(v)
		if err != nil {
			return nil, err
		}
		return b, nil

	case metadata.TypeTimestamp:
		if n, ok := v.(json.Number); ok {
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected timestamp, got %s", n)
			}
			v = i
		}
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, fmt.Errorf("expected timestamp: %w", err)
		}
		return d.TimeParam(t), nil

	case metadata.TypeText, metadata.TypeLongText:
		if n, ok := v.(json.Number); ok {
			v = n.String()
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("expected text: %w", err)
		}
		if col.Type == metadata.TypeText && utf8.RuneCountInString(s) > maxTextLength {
			return nil, fmt.Errorf("text longer than %d characters", maxTextLength)
		}
		return s, nil

	default:
		// Columns of foreign types (added outside the catalog) pass through.
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			return n.Float64()
		}
		return v, nil
	}
}

// coerceInteger accepts JSON numbers, whole floats within the exactly
// representable range, and base-10 strings. Anything that would not
// round-trip as the same int64 is rejected.
func coerceInteger(v any) (int64, error) {
	switch x := v.(type) {
	case bool:
		return 0, fmt.Errorf("expected integer, got boolean")
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %s", x)
		}
		return wholeFloat(f)
	case float64:
		return wholeFloat(x)
	case float32:
		return wholeFloat(float64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", x)
		}
		return n, nil
	default:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("expected integer: %w", err)
		}
		return n, nil
	}
}

func wholeFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f > maxExactFloat || f < -maxExactFloat {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int64(f), nil
}

// coerceBoolean accepts booleans, the numbers 0 and 1, and the strings
// strconv.ParseBool understands.
func coerceBoolean(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %q", x)
		}
		return b, nil
	case json.Number:
		v = x.String()
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return false, fmt.Errorf("expected boolean: %w", err)
	}
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("expected boolean, got %v", v)
	}
}

// normalizeRow converts driver values to the JSON shape of each column's
// logical type: SQLite hands booleans back as integers and timestamps as text.
func normalizeRow(shape *metadata.TableShape, row map[string]any) map[string]any {
	for _, col := range shape.Columns {
		v, ok := row[col.Name]
		if !ok || v == nil {
			continue
		}
		switch col.Type {
		case metadata.TypeBoolean:
			if b, err := cast.ToBoolE(v); err == nil {
				row[col.Name] = b
			}
		case metadata.TypeTimestamp:
			if t, ok := store.ParseTime(v); ok {
				row[col.Name] = t.UTC().Format(time.RFC3339Nano)
			}
		case metadata.TypeInteger:
			if n, err := cast.ToInt64E(v); err == nil {
				row[col.Name] = n
			}
		}
	}
	return row
}
