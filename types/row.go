package types

import "strings"

// QueryRow is an ordered mapping from column name to QueryValue, tagged with
// the originating entity's logical name.
type QueryRow struct {
	EntityName string
	Columns    []string
	Values     map[string]QueryValue
}

// NewQueryRow creates an empty row for the given entity
func NewQueryRow(entityName string) *QueryRow {
	return &QueryRow{
		EntityName: entityName,
		Values:     make(map[string]QueryValue),
	}
}

// Set assigns a column value, preserving first-assignment column order
func (r *QueryRow) Set(column string, value QueryValue) {
	if _, ok := r.Values[column]; !ok {
		r.Columns = append(r.Columns, column)
	}
	r.Values[column] = value
}

// Get returns the value for a column, or null when absent
func (r *QueryRow) Get(column string) QueryValue {
	if v, ok := r.Values[column]; ok {
		return v
	}
	return NullValue()
}

// Has reports whether the row carries the column
func (r *QueryRow) Has(column string) bool {
	_, ok := r.Values[column]
	return ok
}

// Key renders a canonical full-row identity string, used by DISTINCT
func (r *QueryRow) Key() string {
	var b strings.Builder
	for i, col := range r.Columns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		v := r.Values[col]
		b.WriteString(col)
		b.WriteByte('=')
		b.WriteString(string(v.Kind))
		b.WriteByte(':')
		b.WriteString(v.String())
	}
	return b.String()
}

// Clone returns a deep copy of the row
func (r *QueryRow) Clone() *QueryRow {
	out := &QueryRow{
		EntityName: r.EntityName,
		Columns:    append([]string(nil), r.Columns...),
		Values:     make(map[string]QueryValue, len(r.Values)),
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}
