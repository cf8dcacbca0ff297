package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/dgt-data/matriculas/internal/config"
	"github.com/dgt-data/matriculas/internal/fetcher"
	"github.com/dgt-data/matriculas/internal/schema"
	"github.com/dgt-data/matriculas/internal/storage/sqlite"
	"github.com/dgt-data/matriculas/pkg/logger"
)

// buildLine pads field values to their schema widths in schema order
func buildLine(values map[string]string) string {
	var b strings.Builder
	for _, f := range schema.Fields() {
		b.WriteString(fmt.Sprintf("%-*s", f.Width, values[f.Name]))
	}
	return b.String()
}

// buildExportZip returns a monthly archive whose flat file is latin-1
// encoded, as the DGT publishes them.
func buildExportZip(t *testing.T, year, month int, lines []string) []byte {
	t.Helper()

	content := "Vehículos matriculados en el período\n\n" + strings.Join(lines, "\n") + "\n"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(content)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(fmt.Sprintf("export_mensual_mat_%d%02d.txt", year, month))
	require.NoError(t, err)
	_, err = w.Write([]byte(encoded))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestService(t *testing.T, baseURL, dbPath string) (*Service, *sqlite.RegistrationStorage) {
	t.Helper()

	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := sqlite.NewRegistrationStorage(db, logger.NewNop())
	require.NoError(t, err)

	f := fetcher.New(config.FetcherConfig{BaseURL: baseURL, TimeoutSeconds: 5}, t.TempDir(), logger.NewNop())
	return NewService(f, store, logger.NewNop()), store
}

func TestRunEndToEnd(t *testing.T) {
	line := buildLine(map[string]string{
		"fecha_matriculacion": "01122014",
		"vehiculo_marca":      "SEAT",
		"vehiculo_modelo":     "LEON",
		"bastidor":            "VSSZZZ5FZER000001",
		"municipio":           "PEÑARANDA",
		"nuevo":               "N",
		"renting":             "S",
	})
	archive := buildExportZip(t, 2014, 12, []string{line})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2014/12/vehiculos/matriculaciones/export_mensual_mat_201412.zip" {
			w.Write(archive)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	service, store := newTestService(t, server.URL, dbPath)

	// 2014-12 has data, 2015-01 does not
	stats, err := service.Run(context.Background(), Range{
		StartYear: 2014, StartMonth: 12, EndYear: 2015, EndMonth: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MonthsFetched)
	assert.Equal(t, 1, stats.MonthsNoData)
	assert.Equal(t, 0, stats.MonthsFailed)
	assert.Equal(t, 1, stats.LinesParsed)
	assert.Equal(t, 0, stats.PartialRecords)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 0, stats.Duplicates)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Latin-1 content survived the decode
	records, err := store.GetByBastidor("VSSZZZ5FZER000001")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PEÑARANDA", records[0].Municipio)
	assert.Equal(t, "2014-12-01", records[0].FechaMatriculacion)

	// Re-running the same range must not create duplicates
	stats, err = service.Run(context.Background(), Range{
		StartYear: 2014, StartMonth: 12, EndYear: 2015, EndMonth: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 1, stats.Duplicates)

	count, err = store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRunPartialRecord(t *testing.T) {
	line := buildLine(map[string]string{
		"fecha_matriculacion": "01122014",
		"bastidor":            "VSSZZZ5FZER000002",
		"cilindrada":          "bogus",
	})
	archive := buildExportZip(t, 2014, 12, []string{line})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	service, store := newTestService(t, server.URL, filepath.Join(t.TempDir(), "test.db"))
	stats, err := service.Run(context.Background(), Range{
		StartYear: 2014, StartMonth: 12, EndYear: 2014, EndMonth: 12,
	})
	require.NoError(t, err)

	// The unparseable field degrades to NULL, the line is still inserted
	assert.Equal(t, 1, stats.PartialRecords)
	assert.Equal(t, 1, stats.Inserted)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRunCommitsPerFile(t *testing.T) {
	goodLine := buildLine(map[string]string{
		"fecha_matriculacion": "01122014",
		"bastidor":            "VSSZZZ5FZER000001",
	})
	goodArchive := buildExportZip(t, 2014, 12, []string{goodLine})

	// A line past the scanner's token limit makes processing the second
	// file fail after its extraction succeeded
	badArchive := buildExportZip(t, 2015, 1, []string{strings.Repeat("A", 128*1024)})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2014/12/vehiculos/matriculaciones/export_mensual_mat_201412.zip":
			w.Write(goodArchive)
		case "/2015/1/vehiculos/matriculaciones/export_mensual_mat_201501.zip":
			w.Write(badArchive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	service, store := newTestService(t, server.URL, filepath.Join(t.TempDir(), "test.db"))
	_, err := service.Run(context.Background(), Range{
		StartYear: 2014, StartMonth: 12, EndYear: 2015, EndMonth: 1,
	})
	require.Error(t, err)

	// The first month was committed on its own, so the abort mid-run
	// does not discard it
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	records, err := store.GetByBastidor("VSSZZZ5FZER000001")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRunAllMonthsMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	service, store := newTestService(t, server.URL, filepath.Join(t.TempDir(), "test.db"))
	stats, err := service.Run(context.Background(), Range{
		StartYear: 2014, StartMonth: 11, EndYear: 2015, EndMonth: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.MonthsFetched)
	assert.Equal(t, 4, stats.MonthsNoData) // 2014-11..2015-02
	assert.Equal(t, 0, stats.Inserted)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRangeWithDefaults(t *testing.T) {
	now := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)

	r := Range{StartYear: 2014, StartMonth: 12}.WithDefaults(now)
	assert.Equal(t, 2026, r.EndYear)
	assert.Equal(t, 8, r.EndMonth)

	r = Range{StartYear: 2014, StartMonth: 12, EndYear: 2020, EndMonth: 6}.WithDefaults(now)
	assert.Equal(t, 2020, r.EndYear)
	assert.Equal(t, 6, r.EndMonth)
}

func TestRangeValidate(t *testing.T) {
	assert.NoError(t, Range{StartYear: 2014, StartMonth: 12, EndYear: 2015, EndMonth: 1}.Validate())
	assert.Error(t, Range{StartYear: 2014, StartMonth: 13, EndYear: 2015, EndMonth: 1}.Validate())
	assert.Error(t, Range{StartYear: 2014, StartMonth: 1, EndYear: 2015, EndMonth: 0}.Validate())
	assert.Error(t, Range{StartYear: 2016, StartMonth: 1, EndYear: 2015, EndMonth: 12}.Validate())
}
