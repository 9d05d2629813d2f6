package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeasureOrder_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range MeasureOrder {
		assert.False(t, seen[m], "duplicate measure %q", m)
		seen[m] = true
	}
	assert.Len(t, MeasureOrder, 23)
}

func TestMeasureIndex_TrailingSpaceIsDistinct(t *testing.T) {
	plain, ok := MeasureIndex("Estoque")
	assert.True(t, ok)
	spaced, ok := MeasureIndex("Estoque ")
	assert.True(t, ok)
	assert.NotEqual(t, plain, spaced)

	_, ok = MeasureIndex("Desconhecido")
	assert.False(t, ok)
}

func TestWideHeader(t *testing.T) {
	header := WideHeader()
	assert.Len(t, header, len(KeyColumns)+len(MeasureOrder))
	assert.Equal(t, []string{"Cidades", "Origens", "Turno + Data", "Combustíveis", "Medição"}, header[:5])
	assert.Equal(t, "Estq. Dia. Ant. Utl. Medç.", header[5])
	assert.Equal(t, "Sugest. ", header[len(header)-1])
}

func TestRequiredColumns(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"Cidades", "Combustíveis", "Measure Names", "Origens", "Medição", "Turno + Data", "Measure Values",
	}, RequiredColumns())
}
