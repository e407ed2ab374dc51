// Package grid turns a raw spreadsheet grid into canonical records.
//
// A Grid is exactly what a spreadsheet values API returns: row 0 holds the
// column labels, every following row holds cell values. Data rows may be
// shorter than the header row because trailing empty cells are omitted by
// the API. Normalize pairs each cell with its canonical field name and
// returns one Record per data row, in grid order.
package grid

// Grid is a rectangular-ish table of string cells. Row 0 is the header row.
type Grid [][]string

// Record maps canonical field names to raw cell values for one data row.
// Fields absent from the source row are absent from the map.
type Record map[string]string

// Get returns the value of field, or "" when the field is absent.
func (r Record) Get(field string) string {
	if r == nil {
		return ""
	}
	return r[field]
}

// Has reports whether field was present in the source row.
func (r Record) Has(field string) bool {
	if r == nil {
		return false
	}
	_, ok := r[field]
	return ok
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered list of records.
type Table []Record

// Normalize converts g into a Table using m to rename header labels.
//
// Header labels missing from m keep their source label. Cells beyond the end
// of a short row are not materialized. Cells beyond the end of the header row
// are dropped. Rows with no non-empty cell are skipped. An empty grid, or one
// holding only a header row, yields an empty Table.
func Normalize(g Grid, m HeaderMap) Table {
	if len(g) < 2 {
		return Table{}
	}

	headers := make([]string, len(g[0]))
	for i, label := range g[0] {
		headers[i] = m.Canonical(label)
	}

	out := make(Table, 0, len(g)-1)
	for _, row := range g[1:] {
		if isBlankRow(row) {
			continue
		}
		rec := make(Record, len(headers))
		for i, cell := range row {
			if i >= len(headers) {
				break
			}
			if headers[i] == "" {
				continue
			}
			rec[headers[i]] = cell
		}
		out = append(out, rec)
	}
	return out
}

// AddColumn returns a copy of t where every record has field set to value.
func AddColumn(t Table, field, value string) Table {
	out := make(Table, len(t))
	for i, rec := range t {
		c := rec.Clone()
		c[field] = value
		out[i] = c
	}
	return out
}

// Column returns the values of field across t, in order. Records without the
// field contribute "".
func Column(t Table, field string) []string {
	out := make([]string, len(t))
	for i, rec := range t {
		out[i] = rec.Get(field)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
