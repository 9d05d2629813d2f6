// Package schema defines the fixed layouts of the fuel stock export (long
// format) and the analysis spreadsheet (wide format).
package schema

// FieldType represents the expected data type for a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldNumeric
)

// FieldSpec defines the rules for a single CSV column.
type FieldSpec struct {
	Name     string    // Column header name (must match CSV exactly after header cleanup)
	Type     FieldType // Expected data type
	Required bool      // Column must exist in CSV header
}

// Long-format column headers as exported from the "BASE DE DADOS" view.
const (
	ColCity             = "Cidades"
	ColFuelType         = "Combustíveis"
	ColMeasureName      = "Measure Names"
	ColOrigin           = "Origens"
	ColMeasurementLabel = "Medição"
	ColShiftDate        = "Turno + Data"
	ColMeasureValue     = "Measure Values"
)

// LongFieldSpecs lists the seven columns every export must carry.
var LongFieldSpecs = []FieldSpec{
	{Name: ColCity, Type: FieldText, Required: true},
	{Name: ColFuelType, Type: FieldText, Required: true},
	{Name: ColMeasureName, Type: FieldEnum, Required: true},
	{Name: ColOrigin, Type: FieldText, Required: true},
	{Name: ColMeasurementLabel, Type: FieldText, Required: true},
	{Name: ColShiftDate, Type: FieldText, Required: true},
	{Name: ColMeasureValue, Type: FieldNumeric, Required: true},
}

// KeyColumns are the pivot index, in output order.
var KeyColumns = []string{
	ColCity,
	ColOrigin,
	ColShiftDate,
	ColFuelType,
	ColMeasurementLabel,
}

// MeasureOrder is the business-specified order of the measure columns.
// Entries with a trailing space are distinct measures in the source workbook
// and must not be trimmed.
var MeasureOrder = []string{
	"Estq. Dia. Ant. Utl. Medç.",
	"Estq. Ult. Medç",
	"Venda Utl. Medç",
	"Compra Dia Ult. Medç",
	"Verificação",
	"Capac.",
	"Venda Anterior",
	"Vol. Atual",
	"Carga",
	"Vendas",
	"Estoque",
	"Giro Estoque Hoje",
	"Percent. Cap. Hoje",
	"Media",
	"Estq. Final",
	"Giro Estq Final ",
	"Percent. Cap. Final Hoje",
	"Sugest.",
	"Média",
	"Estoque ",
	"Giro Estq",
	"Percent. Cap.",
	"Sugest. ",
}

var measureIndex = func() map[string]int {
	idx := make(map[string]int, len(MeasureOrder))
	for i, name := range MeasureOrder {
		idx[name] = i
	}
	return idx
}()

// MeasureIndex returns the column position of a measure within MeasureOrder.
func MeasureIndex(name string) (int, bool) {
	i, ok := measureIndex[name]
	return i, ok
}

// WideHeader returns the complete output header: key columns then measures.
func WideHeader() []string {
	header := make([]string, 0, len(KeyColumns)+len(MeasureOrder))
	header = append(header, KeyColumns...)
	header = append(header, MeasureOrder...)
	return header
}

// RequiredColumns returns the names of the required long-format columns.
func RequiredColumns() []string {
	var cols []string
	for _, spec := range LongFieldSpecs {
		if spec.Required {
			cols = append(cols, spec.Name)
		}
	}
	return cols
}
