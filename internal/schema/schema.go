// Package schema declares the fixed-width layout of the DGT monthly
// registration export. Field order is significant: it is the only way
// byte offsets into a line are computed.
package schema

// Type is the logical type of a field, matching its SQL column type.
type Type string

const (
	TypeText    Type = "TEXT"
	TypeDate    Type = "DATE"
	TypeReal    Type = "REAL"
	TypeInteger Type = "INTEGER"
)

// Field is one entry of the fixed-width layout
type Field struct {
	Name  string
	Width int
	Type  Type
}

// fields is the layout of one export line, in file order. Widths are
// character counts in the latin-1 source files.
var fields = []Field{
	{"fecha_matriculacion", 8, TypeDate},
	{"clase_matricula", 1, TypeText},
	{"fecha_transferencia", 8, TypeDate},
	{"vehiculo_marca", 30, TypeText},
	{"vehiculo_modelo", 22, TypeText},
	{"codigo_procedencia", 1, TypeText},
	{"bastidor", 21, TypeText},
	{"codigo_tipo", 2, TypeText},
	{"cod_propulsion", 1, TypeText},
	{"cilindrada", 5, TypeReal},
	{"potencia", 6, TypeReal},
	{"tara", 6, TypeReal},
	{"peso_maximo", 6, TypeReal},
	{"plazas", 3, TypeInteger},
	{"precintado", 2, TypeInteger},
	{"embargado", 2, TypeInteger},
	{"transmisiones", 2, TypeInteger},
	{"titulares", 2, TypeInteger},
	{"localidad", 24, TypeText},
	{"provincia", 2, TypeText},
	{"provincia_matriculacion", 2, TypeText},
	{"tramite", 1, TypeText},
	{"fecha_tramite", 8, TypeDate},
	{"codigo_postal", 5, TypeText},
	{"fecha_primera_matriculacion", 8, TypeDate},
	{"nuevo", 1, TypeInteger},
	{"persona_juridica", 1, TypeInteger},
	{"codigo_itv", 9, TypeText},
	{"servicio", 3, TypeText},
	{"codigo_municipio_ine", 5, TypeInteger},
	{"municipio", 30, TypeText},
	{"potencia_kw", 7, TypeReal},
	{"plazas_maximo", 3, TypeInteger},
	{"co2", 5, TypeInteger},
	{"renting", 1, TypeInteger},
	{"titular_tutelado", 1, TypeInteger},
}

// Natural key columns: a registration is identified by its chassis
// number and registration date.
const (
	KeyBastidor           = "bastidor"
	KeyFechaMatriculacion = "fecha_matriculacion"
)

// Fields returns the layout in declared order
func Fields() []Field {
	return fields
}

// LineLength returns the expected character count of one data line
func LineLength() int {
	total := 0
	for _, f := range fields {
		total += f.Width
	}
	return total
}

// Offset returns the starting character offset of the named field and
// whether the field exists.
func Offset(name string) (int, bool) {
	offset := 0
	for _, f := range fields {
		if f.Name == name {
			return offset, true
		}
		offset += f.Width
	}
	return 0, false
}

// ColumnNames returns all column names in declared order
func ColumnNames() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// ColumnDefs returns "name TYPE" fragments for the CREATE TABLE statement
func ColumnDefs() []string {
	defs := make([]string, len(fields))
	for i, f := range fields {
		defs[i] = f.Name + " " + string(f.Type)
	}
	return defs
}
