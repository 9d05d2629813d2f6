// Package reshape turns the long-format fuel stock export into the wide
// analysis spreadsheet: one row per city, origin, shift, fuel and measurement,
// one column per business measure.
package reshape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/JonMunkholm/fuelsync/internal/csv"
	"github.com/JonMunkholm/fuelsync/internal/logging"
	"github.com/JonMunkholm/fuelsync/internal/schema"
)

// ContextCheckInterval is how often (in rows) to check for context cancellation.
var ContextCheckInterval = 100

// Options tunes a reshape run.
type Options struct {
	Logger logging.Logger
	Sheet  string
}

// Result summarizes a reshape run.
type Result struct {
	InputPath  string
	OutputPath string

	InputRows  int // data rows read from the CSV
	Rows       int // wide rows written
	Dropped    int // rows with a blank key or non-numeric value
	Unknown    int // rows whose measure name is not a known measure
	Duplicates int // later values for an already filled cell

	UnknownMeasures []string
	MissingMeasures []string // known measures with no value anywhere

	Duration time.Duration
}

type columns struct {
	key     [5]int
	measure int
	value   int
}

// Reshape reads the long CSV at inputPath and writes the wide XLSX to outputPath.
//
// Missing required columns yield a *SchemaError before outputPath is touched.
// When every row is dropped the result is ErrNoRows and no file is written.
func Reshape(ctx context.Context, inputPath, outputPath string, opts Options) (*Result, error) {
	log := logging.OrNop(opts.Logger)
	start := time.Now()

	rd, err := csv.Open(inputPath)
	if errors.Is(err, csv.ErrEmpty) {
		log.Error("export has no header row", "path", inputPath)
		return nil, &SchemaError{Path: inputPath, Missing: schema.RequiredColumns()}
	}
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer rd.Close()

	cols, err := resolveColumns(rd.Index())
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Path = inputPath
			log.Error("export is missing required columns", "path", inputPath, "missing", se.Missing)
		}
		return nil, err
	}

	res := &Result{InputPath: inputPath, OutputPath: outputPath}
	table := NewTable()
	unknown := make(map[string]bool)

	for {
		if res.InputRows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", inputPath, err)
		}
		res.InputRows++

		var key Key
		blank := false
		for i, c := range cols.key {
			key[i] = csv.Field(row, c)
			if key[i] == "" {
				blank = true
			}
		}
		if blank {
			res.Dropped++
			log.Warn("row dropped: blank key column", "line", rd.Line())
			continue
		}

		name := csv.Field(row, cols.measure)
		measure, ok := schema.MeasureIndex(name)
		if !ok {
			res.Unknown++
			if !unknown[name] {
				unknown[name] = true
				log.Warn("unknown measure ignored", "measure", name, "line", rd.Line())
			}
			continue
		}

		raw := csv.Field(row, cols.value)
		value, ok := ParseMeasure(raw)
		if !ok {
			res.Dropped++
			log.Warn("row dropped: non-numeric measure value", "line", rd.Line(), "measure", name, "value", raw)
			continue
		}

		if !table.Add(key, measure, value) {
			log.Warn("duplicate measure value ignored", "line", rd.Line(), "measure", name)
		}
	}

	res.Duplicates = table.Duplicates
	res.MissingMeasures = table.MissingMeasures()
	for name := range unknown {
		res.UnknownMeasures = append(res.UnknownMeasures, name)
	}
	sort.Strings(res.UnknownMeasures)

	if table.Len() == 0 {
		log.Error("no rows left after cleaning", "path", inputPath, "input_rows", res.InputRows, "dropped", res.Dropped)
		return res, fmt.Errorf("%s: %w", inputPath, ErrNoRows)
	}

	rows := table.Rows()
	if err := WriteXLSX(rows, outputPath, opts.Sheet); err != nil {
		return res, err
	}

	res.Rows = len(rows)
	res.Duration = time.Since(start)

	if len(res.MissingMeasures) > 0 {
		log.Info("measures absent from export written as blank columns", "measures", res.MissingMeasures)
	}
	log.Info("reshape complete",
		"input", inputPath,
		"output", outputPath,
		"input_rows", res.InputRows,
		"rows", res.Rows,
		"dropped", res.Dropped,
		"unknown", res.Unknown,
		"duplicates", res.Duplicates,
		"duration", res.Duration)

	return res, nil
}

func resolveColumns(idx csv.HeaderIndex) (columns, error) {
	if missing := idx.Missing(schema.RequiredColumns()); len(missing) > 0 {
		return columns{}, &SchemaError{Missing: missing}
	}

	var c columns
	for i, name := range schema.KeyColumns {
		c.key[i], _ = idx.Lookup(name)
	}
	c.measure, _ = idx.Lookup(schema.ColMeasureName)
	c.value, _ = idx.Lookup(schema.ColMeasureValue)
	return c, nil
}
