package reshape

import (
	"sort"

	"github.com/JonMunkholm/fuelsync/internal/schema"
)

// Key identifies one wide row. Fields follow schema.KeyColumns.
type Key [5]string

// Less orders keys field by field.
func (k Key) Less(o Key) bool {
	for i := range k {
		if k[i] != o[i] {
			return k[i] < o[i]
		}
	}
	return false
}

// Row is one wide record: a key plus one optional value per measure in
// schema.MeasureOrder.
type Row struct {
	Key    Key
	Values []float64
	Set    []bool
}

// Table accumulates long records into wide rows.
type Table struct {
	rows       map[Key]*Row
	found      []bool
	Duplicates int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		rows:  make(map[Key]*Row),
		found: make([]bool, len(schema.MeasureOrder)),
	}
}

// Add records value for measure (an index into schema.MeasureOrder) under key.
// The first value seen for a key and measure wins; Add reports false and
// counts a duplicate for any later one.
func (t *Table) Add(key Key, measure int, value float64) bool {
	row, ok := t.rows[key]
	if !ok {
		row = &Row{
			Key:    key,
			Values: make([]float64, len(schema.MeasureOrder)),
			Set:    make([]bool, len(schema.MeasureOrder)),
		}
		t.rows[key] = row
	}

	if row.Set[measure] {
		t.Duplicates++
		return false
	}
	row.Values[measure] = value
	row.Set[measure] = true
	t.found[measure] = true
	return true
}

// Len returns the number of wide rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the wide rows sorted by key.
func (t *Table) Rows() []*Row {
	out := make([]*Row, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// MissingMeasures lists, in business order, the measures with no value in any row.
func (t *Table) MissingMeasures() []string {
	var missing []string
	for i, ok := range t.found {
		if !ok {
			missing = append(missing, schema.MeasureOrder[i])
		}
	}
	return missing
}
