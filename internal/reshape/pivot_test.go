package reshape

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/fuelsync/internal/schema"
)

func TestTable_FirstValueWins(t *testing.T) {
	tbl := NewTable()
	k := Key{"Recife", "Base A", "Manhã 01/03", "Diesel S10", "Tanque 1"}

	assert.True(t, tbl.Add(k, 0, 10))
	assert.False(t, tbl.Add(k, 0, 99))
	assert.True(t, tbl.Add(k, 1, 5))

	rows := tbl.Rows()
	assert.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0].Values[0])
	assert.Equal(t, 5.0, rows[0].Values[1])
	assert.Equal(t, 1, tbl.Duplicates)
}

func TestTable_RowsSortedByKey(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Key{"Natal", "B", "T1", "Gasolina", "M"}, 0, 1)
	tbl.Add(Key{"Recife", "A", "T1", "Diesel", "M"}, 0, 1)
	tbl.Add(Key{"Natal", "A", "T2", "Gasolina", "M"}, 0, 1)
	tbl.Add(Key{"Natal", "A", "T1", "Gasolina", "M"}, 0, 1)

	var got []Key
	for _, r := range tbl.Rows() {
		got = append(got, r.Key)
	}
	assert.Equal(t, []Key{
		{"Natal", "A", "T1", "Gasolina", "M"},
		{"Natal", "A", "T2", "Gasolina", "M"},
		{"Natal", "B", "T1", "Gasolina", "M"},
		{"Recife", "A", "T1", "Diesel", "M"},
	}, got)
}

func TestTable_MissingMeasures(t *testing.T) {
	tbl := NewTable()
	k := Key{"a", "b", "c", "d", "e"}
	for i := range schema.MeasureOrder {
		if i == 3 || i == 22 {
			continue
		}
		tbl.Add(k, i, 1)
	}
	assert.Equal(t, []string{schema.MeasureOrder[3], schema.MeasureOrder[22]}, tbl.MissingMeasures())
}
