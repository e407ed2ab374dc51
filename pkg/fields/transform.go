package fields

import "github.com/3leaps/gopathways/pkg/grid"

// Transformer applies date normalization to a table.
type Transformer struct {
	// Sentinel replaces deadlines that cannot be parsed.
	Sentinel string

	// DeadlineField holds a single date.
	DeadlineField string

	// DateListFields hold ";"-separated date lists.
	DateListFields []string
}

// NewTransformer returns a Transformer for the intake form fields.
func NewTransformer(sentinel string) Transformer {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return Transformer{
		Sentinel:       sentinel,
		DeadlineField:  grid.FieldApplicationDeadline,
		DateListFields: []string{grid.FieldStartDates, grid.FieldEndDates},
	}
}

// Apply returns a new table with date fields normalized. The deadline is
// always set (to the sentinel if absent or malformed). Date list fields are
// re-encoded with JoinList and only touched when present.
func (tr Transformer) Apply(t grid.Table) grid.Table {
	out := make(grid.Table, len(t))
	for i, rec := range t {
		c := rec.Clone()
		if tr.DeadlineField != "" {
			c[tr.DeadlineField] = ParseDateOrSentinel(rec.Get(tr.DeadlineField), tr.Sentinel)
		}
		for _, f := range tr.DateListFields {
			if !rec.Has(f) {
				continue
			}
			c[f] = JoinList(ParseDateList(rec.Get(f)))
		}
		out[i] = c
	}
	return out
}
