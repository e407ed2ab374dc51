package programstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Column names of the program table.
const (
	ColumnID        = "id"
	ColumnSourceID  = "source_id"
	ColumnDocument  = "document"
	ColumnUpdatedAt = "updated_at"
)

// deleteChunk bounds the IN (...) list of a single DELETE.
const deleteChunk = 500

// ProgramRow is one persisted program.
type ProgramRow struct {
	ID        string
	SourceID  string
	UpdatedAt time.Time
	Document  json.RawMessage
}

// ListParams filters ListPrograms.
type ListParams struct {
	SourceID string
	Since    *time.Time
	Limit    int
	Offset   int
}

// MaxUpdatedAt returns the newest updated_at for sourceID (all rows when
// sourceID is empty), or nil when there are none.
func (s *Store) MaxUpdatedAt(ctx context.Context, sourceID string) (*time.Time, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q := fmt.Sprintf(`SELECT MAX(updated_at) FROM %s`, s.table)
	var args []any
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}

	var raw any
	if err := s.queryRow(ctx, q, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("query max updated_at: %w", err)
	}
	t, err := parseOptionalDBTime(raw)
	if err != nil {
		return nil, fmt.Errorf("parse max updated_at: %w", err)
	}
	return t, nil
}

// AllIDs returns every persisted program id for sourceID (all rows when
// sourceID is empty), sorted.
func (s *Store) AllIDs(ctx context.Context, sourceID string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q := fmt.Sprintf(`SELECT id FROM %s`, s.table)
	var args []any
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	q += ` ORDER BY id`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list program ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan program id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert inserts row into relation, overwriting every provided column when
// uniqueKey already exists. Keys and relation must be plain identifiers.
func (s *Store) Upsert(ctx context.Context, relation string, row map[string]any, uniqueKey string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := checkIdent(relation); err != nil {
		return err
	}
	if _, ok := row[uniqueKey]; !ok {
		return fmt.Errorf("%w: row is missing unique key %q", ErrRowData, uniqueKey)
	}

	cols := make([]string, 0, len(row))
	for c := range row {
		if err := checkIdent(c); err != nil {
			return err
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		args[i] = row[c]
		if c != uniqueKey {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO `,
		relation,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		uniqueKey)
	if len(updates) == 0 {
		q += `NOTHING`
	} else {
		q += `UPDATE SET ` + strings.Join(updates, ", ")
	}

	if _, err := s.exec(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", relation, err)
	}
	return nil
}

// UpsertProgram writes a typed row to the program table.
func (s *Store) UpsertProgram(ctx context.Context, p ProgramRow) error {
	return s.Upsert(ctx, s.table, map[string]any{
		ColumnID:        p.ID,
		ColumnSourceID:  nullableString(p.SourceID),
		ColumnDocument:  p.Document,
		ColumnUpdatedAt: p.UpdatedAt,
	}, ColumnID)
}

// DeleteIDs removes the programs with the given ids and reports how many
// rows were deleted. An empty list issues no statement.
func (s *Store) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var total int64
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, s.table,
			strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", "))

		res, err := s.exec(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("delete programs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// Columns lists the column names of relation in table order.
func (s *Store) Columns(ctx context.Context, relation string) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := checkIdent(relation); err != nil {
		return nil, err
	}

	q := `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	if s.dialect == DialectPostgres {
		q = `SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ?
			ORDER BY ordinal_position`
	}

	rows, err := s.query(ctx, q, relation)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", relation, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("relation %s does not exist", relation)
	}
	return cols, nil
}

// GetProgram returns the program with id, or nil when absent.
func (s *Store) GetProgram(ctx context.Context, id string) (*ProgramRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.queryRow(ctx,
		fmt.Sprintf(`SELECT id, source_id, updated_at, document FROM %s WHERE id = ?`, s.table), id)

	p, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get program: %w", err)
	}
	return p, nil
}

// ListPrograms returns programs ordered by updated_at descending, then id.
func (s *Store) ListPrograms(ctx context.Context, params ListParams) ([]ProgramRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := params.filter()
	q := fmt.Sprintf(`SELECT id, source_id, updated_at, document FROM %s%s`, s.table, where)
	q += " ORDER BY updated_at DESC, id"
	if params.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, params.Limit)
		if params.Offset > 0 {
			q += " OFFSET ?"
			args = append(args, params.Offset)
		}
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProgramRow
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CountPrograms counts programs for sourceID (all when empty).
func (s *Store) CountPrograms(ctx context.Context, sourceID string) (int64, error) {
	return s.CountMatching(ctx, ListParams{SourceID: sourceID})
}

// CountMatching counts the programs ListPrograms would return for params
// without paging. Limit and Offset are ignored.
func (s *Store) CountMatching(ctx context.Context, params ListParams) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := params.filter()
	var n int64
	if err := s.queryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, s.table, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count programs: %w", err)
	}
	return n, nil
}

// filter renders the WHERE clause shared by ListPrograms and CountMatching.
func (p ListParams) filter() (string, []any) {
	var conds []string
	var args []any
	if p.SourceID != "" {
		conds = append(conds, "source_id = ?")
		args = append(args, p.SourceID)
	}
	if p.Since != nil {
		conds = append(conds, "updated_at > ?")
		args = append(args, *p.Since)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(sc scanner) (*ProgramRow, error) {
	var p ProgramRow
	var sourceID sql.NullString
	var updatedRaw, docRaw any

	if err := sc.Scan(&p.ID, &sourceID, &updatedRaw, &docRaw); err != nil {
		return nil, err
	}
	p.SourceID = sourceID.String

	updated, err := parseDBTimeValue(updatedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	p.UpdatedAt = updated

	switch v := docRaw.(type) {
	case string:
		p.Document = json.RawMessage(v)
	case []byte:
		p.Document = append(json.RawMessage(nil), v...)
	case nil:
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		p.Document = data
	}
	return &p, nil
}
