// Package loader upserts mapped rows into the program relation.
//
// Each row is written with its own statement. Row-level failures never
// abort the batch; under the typed policy failures of the store itself do.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gopathways/pkg/programstore"
)

// ErrorPolicy selects how write failures are handled.
type ErrorPolicy string

const (
	// PolicyTyped skips rows whose failure is row-scoped and aborts on
	// anything else.
	PolicyTyped ErrorPolicy = "typed"

	// PolicyLenient logs every failure and keeps going. Load never returns
	// an error under this policy.
	PolicyLenient ErrorPolicy = "lenient"
)

// ParsePolicy maps a configuration string to an ErrorPolicy. Empty selects
// PolicyTyped.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyTyped:
		return PolicyTyped, nil
	case PolicyLenient:
		return PolicyLenient, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want %q or %q)", s, PolicyTyped, PolicyLenient)
	}
}

// Row maps column names to values.
type Row map[string]any

// Store is the persistence surface the loader needs.
type Store interface {
	Columns(ctx context.Context, relation string) ([]string, error)
	Upsert(ctx context.Context, relation string, row map[string]any, uniqueKey string) error
}

// IsRowScopedFunc classifies a write error as caused by one row.
type IsRowScopedFunc func(error) bool

// Loader writes rows to Relation keyed by UniqueKey.
type Loader struct {
	Store     Store
	Relation  string
	UniqueKey string
	Policy    ErrorPolicy
	Log       *zap.Logger

	// IsRowScoped defaults to programstore.IsRowScoped.
	IsRowScoped IsRowScopedFunc
}

// Result summarizes a Load.
type Result struct {
	Upserted  int
	Failed    int
	FailedIDs []string
}

// Load upserts rows in order. Falsy values are written as NULL and columns
// unknown to the relation are dropped.
func (l *Loader) Load(ctx context.Context, rows []Row) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	classify := l.IsRowScoped
	if classify == nil {
		classify = programstore.IsRowScoped
	}
	policy := l.Policy
	if policy == "" {
		policy = PolicyTyped
	}

	var res Result
	if len(rows) == 0 {
		return res, nil
	}
	if l.Store == nil {
		return res, errors.New("loader store is nil")
	}

	cols, err := l.Store.Columns(ctx, l.Relation)
	if err != nil {
		if policy == PolicyLenient {
			log.Error("Failed to introspect relation; nothing loaded",
				zap.String("relation", l.Relation), zap.Error(err))
			res.Failed = len(rows)
			for _, row := range rows {
				res.FailedIDs = append(res.FailedIDs, rowID(row, l.UniqueKey))
			}
			return res, nil
		}
		return res, fmt.Errorf("introspect %s: %w", l.Relation, err)
	}
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c] = struct{}{}
	}

	for _, row := range rows {
		id := rowID(row, l.UniqueKey)
		values := l.prepare(row, known, log)

		err := l.Store.Upsert(ctx, l.Relation, values, l.UniqueKey)
		if err == nil {
			res.Upserted++
			continue
		}

		if policy == PolicyTyped && !classify(err) {
			log.Error("Aborting load on store failure",
				zap.String("row_id", id),
				zap.String("relation", l.Relation),
				zap.Error(err))
			return res, fmt.Errorf("upsert %s: %w", id, err)
		}

		res.Failed++
		res.FailedIDs = append(res.FailedIDs, id)
		log.Warn("Failed to upsert row",
			zap.String("row_id", id),
			zap.String("relation", l.Relation),
			zap.Any("row", values),
			zap.Error(err))
	}

	return res, nil
}

// prepare drops unknown columns and nulls falsy values. A falsy unique key
// is omitted so the store rejects the row instead of writing a NULL key.
func (l *Loader) prepare(row Row, known map[string]struct{}, log *zap.Logger) map[string]any {
	out := make(map[string]any, len(row))
	var dropped []string
	for k, v := range row {
		if _, ok := known[k]; !ok && k != l.UniqueKey {
			dropped = append(dropped, k)
			continue
		}
		if IsFalsy(v) {
			if k == l.UniqueKey {
				continue
			}
			out[k] = nil
			continue
		}
		out[k] = v
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		log.Debug("Dropping columns unknown to relation",
			zap.String("relation", l.Relation),
			zap.Strings("columns", dropped))
	}
	return out
}

// IsFalsy reports whether v should be stored as NULL: nil, empty strings,
// zero numbers, false, zero times, and empty slices, maps or raw JSON.
func IsFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case time.Time:
		return x.IsZero()
	case json.RawMessage:
		return len(x) == 0
	case []byte:
		return len(x) == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func rowID(row Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
