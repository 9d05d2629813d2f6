package reshape

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoRows is returned when no valid data rows remain after cleaning.
var ErrNoRows = errors.New("no valid rows to reshape")

// SchemaError reports required columns absent from the input header.
type SchemaError struct {
	Path    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
}

// IsSchemaError reports whether err is or wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
