// Package csv reads Tableau CSV exports. Input is streamed through a BOM
// skipper and a UTF-8 sanitizer before it reaches encoding/csv, so accented
// headers such as "Combustíveis" match regardless of how the export was saved.
package csv

import (
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrEmpty is returned when the input has no header row.
var ErrEmpty = errors.New("csv file is empty")

// Reader yields data rows after the header has been consumed.
type Reader struct {
	r      *stdcsv.Reader
	closer io.Closer
	header []string
	index  HeaderIndex
	line   int
}

// NewReader wraps r and reads the header row.
func NewReader(r io.Reader) (*Reader, error) {
	cr := stdcsv.NewReader(Wrap(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = CleanHeader(h)
	}

	return &Reader{
		r:      cr,
		header: cleaned,
		index:  MakeHeaderIndex(cleaned),
		line:   1,
	}, nil
}

// Open opens path and reads its header row. Close releases the file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

// Header returns the cleaned header row.
func (r *Reader) Header() []string { return r.header }

// Index returns the header index.
func (r *Reader) Index() HeaderIndex { return r.index }

// Line returns the 1-based line number of the record last returned by Next.
func (r *Reader) Line() int { return r.line }

// Next returns the next data row, or io.EOF when the input is exhausted.
// Fully blank rows are skipped.
func (r *Reader) Next() ([]string, error) {
	for {
		row, err := r.r.Read()
		if err != nil {
			return nil, err
		}
		r.line, _ = r.r.FieldPos(0)
		if !isBlank(row) {
			return row, nil
		}
	}
}

// Close releases the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
