package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dgt-data/matriculas/internal/parser"
	"github.com/dgt-data/matriculas/internal/schema"
	"github.com/dgt-data/matriculas/pkg/logger"
)

// dateFormat is how DATE columns are stored (sqlite has no native date type)
const dateFormat = "2006-01-02"

// registrationColumns are the columns selected by the query methods
const registrationColumns = `id, fecha_matriculacion, clase_matricula, vehiculo_marca,
	vehiculo_modelo, bastidor, provincia, municipio, servicio, nuevo`

// RegistrationStorage handles storage of registration records
type RegistrationStorage struct {
	db        *sql.DB
	insertSQL string
	logger    *logger.Logger
}

// NewRegistrationStorage creates a new sqlite registration storage and
// ensures the table exists.
func NewRegistrationStorage(db *sql.DB, logger *logger.Logger) (*RegistrationStorage, error) {
	storage := &RegistrationStorage{
		db:     db,
		logger: logger.Named("sqlite-store"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}

	columns := schema.ColumnNames()
	storage.insertSQL = fmt.Sprintf(
		"INSERT OR IGNORE INTO matriculaciones (%s) VALUES (%s)",
		strings.Join(columns, ", "),
		strings.TrimRight(strings.Repeat("?, ", len(columns)), ", "),
	)

	return storage, nil
}

// initDB creates the table and indexes. One column per schema field, a
// surrogate autoincrement key, and the natural-key uniqueness constraint.
func (s *RegistrationStorage) initDB() error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS matriculaciones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			%s,
			UNIQUE (%s, %s)
		)
	`, strings.Join(schema.ColumnDefs(), ",\n\t\t\t"), schema.KeyBastidor, schema.KeyFechaMatriculacion)

	if _, err := s.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create matriculaciones table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_matriculaciones_fecha ON matriculaciones(fecha_matriculacion)`,
		`CREATE INDEX IF NOT EXISTS idx_matriculaciones_provincia ON matriculaciones(provincia)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Begin starts a transaction for a batch of inserts
func (s *RegistrationStorage) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Insert attempts to persist one parsed record inside tx. A record whose
// natural key already exists is silently discarded; the return value
// reports whether a row was actually written.
func (s *RegistrationStorage) Insert(tx *sql.Tx, record *parser.Record) (bool, error) {
	fields := schema.Fields()
	args := make([]any, len(fields))
	for i, f := range fields {
		value := record.Values[f.Name]
		if t, ok := value.(time.Time); ok {
			value = t.Format(dateFormat)
		}
		args[i] = value
	}

	result, err := tx.Exec(s.insertSQL, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert registration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		s.logger.Debug("Duplicate registration skipped",
			logger.Any("bastidor", record.Values[schema.KeyBastidor]),
		)
		return false, nil
	}

	return true, nil
}

// Count returns the total number of persisted registrations
func (s *RegistrationStorage) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM matriculaciones`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

// CountForMonth returns the number of registrations dated in one month
func (s *RegistrationStorage) CountForMonth(year, month int) (int64, error) {
	prefix := fmt.Sprintf("%04d-%02d-%%", year, month)
	var count int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM matriculaciones WHERE fecha_matriculacion LIKE ?`,
		prefix,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations for month: %w", err)
	}
	return count, nil
}

// GetRecent returns the most recently registered vehicles
func (s *RegistrationStorage) GetRecent(limit int) ([]*Registration, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT %s FROM matriculaciones ORDER BY fecha_matriculacion DESC, id DESC LIMIT ?`,
		registrationColumns,
	), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent registrations: %w", err)
	}
	defer rows.Close()

	return s.scanRegistrationRows(rows)
}

// GetByBastidor returns registrations for a specific chassis number
func (s *RegistrationStorage) GetByBastidor(bastidor string) ([]*Registration, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT %s FROM matriculaciones WHERE bastidor = ? ORDER BY fecha_matriculacion DESC`,
		registrationColumns,
	), bastidor)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations by bastidor: %w", err)
	}
	defer rows.Close()

	return s.scanRegistrationRows(rows)
}

// scanRegistrationRows scans database rows into Registration structs
func (s *RegistrationStorage) scanRegistrationRows(rows *sql.Rows) ([]*Registration, error) {
	var records []*Registration
	for rows.Next() {
		var record Registration
		var fecha sql.NullString
		var nuevo sql.NullInt64

		if err := rows.Scan(
			&record.ID,
			&fecha,
			&record.ClaseMatricula,
			&record.Marca,
			&record.Modelo,
			&record.Bastidor,
			&record.Provincia,
			&record.Municipio,
			&record.Servicio,
			&nuevo,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}

		if fecha.Valid {
			record.FechaMatriculacion = fecha.String
		}
		if nuevo.Valid {
			record.Nuevo = nuevo.Int64
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}

	return records, nil
}
