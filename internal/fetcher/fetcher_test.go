package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgt-data/matriculas/internal/config"
	"github.com/dgt-data/matriculas/pkg/logger"
)

func newTestFetcher(t *testing.T, baseURL string) (*Fetcher, string) {
	t.Helper()
	dataDir := t.TempDir()
	f := New(config.FetcherConfig{BaseURL: baseURL, TimeoutSeconds: 5}, dataDir, logger.NewNop())
	return f, dataDir
}

// buildZip returns a zip archive holding the given name → content entries
func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestURL(t *testing.T) {
	f, _ := newTestFetcher(t, "https://example.test/salida/")

	// Directory segment is unpadded, archive name is zero padded
	assert.Equal(t,
		"https://example.test/salida/2014/12/vehiculos/matriculaciones/export_mensual_mat_201412.zip",
		f.URL(2014, 12))
	assert.Equal(t,
		"https://example.test/salida/2020/3/vehiculos/matriculaciones/export_mensual_mat_202003.zip",
		f.URL(2020, 3))
}

func TestFetchExtractsArchive(t *testing.T) {
	content := []byte("registro de prueba\n")
	archive := buildZip(t, map[string][]byte{
		"salida/export_mensual_mat_201412.txt": content,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2014/12/vehiculos/matriculaciones/export_mensual_mat_201412.zip", r.URL.Path)
		w.Write(archive)
	}))
	defer server.Close()

	f, dataDir := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2014, 12)

	require.Equal(t, Fetched, result.Status)
	require.Len(t, result.Extracted, 1)

	// The archive-relative path is preserved under the data dir
	assert.Equal(t, filepath.Join(dataDir, "salida", "export_mensual_mat_201412.txt"), result.Path)
	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// The raw archive is kept alongside
	_, err = os.Stat(filepath.Join(dataDir, "export_mensual_mat_201412.zip"))
	assert.NoError(t, err)
}

func TestFetchMissingPeriod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2099, 1)

	assert.Equal(t, NoData, result.Status)
	assert.Empty(t, result.Path)
}

func TestFetchTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	f, _ := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2014, 12)

	assert.Equal(t, Failed, result.Status)
	assert.Error(t, result.Err)
}

func TestFetchCorruptArchive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a zip file"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2014, 12)

	assert.Equal(t, Failed, result.Status)
}

func TestFetchEmptyArchive(t *testing.T) {
	archive := buildZip(t, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2014, 12)

	assert.Equal(t, NoData, result.Status)
	assert.Empty(t, result.Path)
}

func TestFetchKeepsDottedBasename(t *testing.T) {
	// A basename that merely starts with dots is not an escape
	archive := buildZip(t, map[string][]byte{
		"..export.txt": []byte("registro\n"),
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	f, dataDir := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2014, 12)

	require.Equal(t, Fetched, result.Status)
	assert.Equal(t, filepath.Join(dataDir, "..export.txt"), result.Path)
	_, err := os.Stat(result.Path)
	assert.NoError(t, err)
}

func TestFetchRejectsEscapingEntry(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"../escape.txt": []byte("nope"),
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	f, dataDir := newTestFetcher(t, server.URL)
	result := f.Fetch(context.Background(), 2014, 12)

	assert.Equal(t, Failed, result.Status)
	_, err := os.Stat(filepath.Join(filepath.Dir(dataDir), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}
