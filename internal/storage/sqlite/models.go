package sqlite

// Registration is the query-side summary of one persisted registration
// row. The table itself carries every schema field; these are the
// columns the API exposes.
type Registration struct {
	ID                 int64  `json:"id"`
	FechaMatriculacion string `json:"fecha_matriculacion,omitempty"`
	ClaseMatricula     string `json:"clase_matricula,omitempty"`
	Marca              string `json:"vehiculo_marca,omitempty"`
	Modelo             string `json:"vehiculo_modelo,omitempty"`
	Bastidor           string `json:"bastidor,omitempty"`
	Provincia          string `json:"provincia,omitempty"`
	Municipio          string `json:"municipio,omitempty"`
	Servicio           string `json:"servicio,omitempty"`
	Nuevo              int64  `json:"nuevo"`
}
