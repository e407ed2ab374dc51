package programstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// sqliteTimeLayout is fixed-width UTC so MAX() and ORDER BY on TEXT columns
// agree with chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (s *Store) bindAll(args []any) []any {
	if s.dialect == DialectPostgres {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = s.bind(a)
	}
	return out
}

// bind adapts Go values to the SQLite storage classes used by the schema.
func (s *Store) bind(v any) any {
	if s.dialect == DialectPostgres {
		return v
	}
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(sqliteTimeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(sqliteTimeLayout)
	case json.RawMessage:
		return string(x)
	}
	return v
}

func parseDBTimeValue(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseDBTimeString(v)
	case []byte:
		return parseDBTimeString(string(v))
	case nil:
		return time.Time{}, fmt.Errorf("null time value")
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", raw)
	}
}

func parseOptionalDBTime(raw any) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && s == "" {
		return nil, nil
	}
	t, err := parseDBTimeValue(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var dbTimeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func parseDBTimeString(s string) (time.Time, error) {
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", s)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
