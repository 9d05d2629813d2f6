package csv

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHeader(t *testing.T) {
	tests := map[string]string{
		"  Cidades ":       "Cidades",
		`="Turno + Data"`:  "Turno + Data",
		`"Medição"`:        "Medição",
		"=Origens":         "Origens",
		"'Measure Values'": "Measure Values",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanHeader(in), "input %q", in)
	}
}

func TestHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Cidades", " ORIGENS ", "Cidades"})

	i, ok := idx.Lookup("cidades")
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = idx.Lookup("Origens")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	assert.Equal(t, []string{"Medição", "Turno + Data"}, idx.Missing([]string{"Cidades", "Medição", "Turno + Data"}))
	assert.Nil(t, idx.Missing([]string{"Origens"}))
}

func TestField(t *testing.T) {
	row := []string{"a", "b"}
	assert.Equal(t, "b", Field(row, 1))
	assert.Equal(t, "", Field(row, 2))
	assert.Equal(t, "", Field(row, -1))
}

func TestReader_Rows(t *testing.T) {
	input := "\xEF\xBB\xBFCidades,Measure Values\n" +
		"Recife,\"1,234.5\"\n" +
		"\n" +
		",\n" +
		"Natal\n"

	rd, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Cidades", "Measure Values"}, rd.Header())

	row, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"Recife", "1,234.5"}, row)
	assert.Equal(t, 2, rd.Line())

	// Ragged rows are accepted; the blank ",\n" row is skipped.
	row, err = rd.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"Natal"}, row)
	assert.Equal(t, 5, rd.Line())

	_, err = rd.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, rd.Close())
}

func TestReader_Empty(t *testing.T) {
	_, err := NewReader(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Cidades\nRecife\n"), 0644))

	rd, err := Open(path)
	require.NoError(t, err)
	defer rd.Close()

	_, ok := rd.Index().Lookup("Cidades")
	assert.True(t, ok)

	_, err = Open(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
