// Package fetcher downloads and unpacks the DGT monthly registration
// archives.
package fetcher

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgt-data/matriculas/internal/config"
	"github.com/dgt-data/matriculas/pkg/logger"
)

// Status classifies the outcome of fetching one monthly archive
type Status int

const (
	// Fetched means the archive was downloaded and extracted
	Fetched Status = iota
	// NoData means the server had no archive for the period (non-2xx)
	NoData
	// Failed means a transport or extraction error occurred
	Failed
)

// Result represents the outcome of fetching one (year, month) archive.
// Path is the first extracted file; Extracted lists all of them.
type Result struct {
	Status    Status
	Path      string
	Extracted []string
	Err       error
}

// Fetcher downloads monthly archives and extracts their flat files
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	dataDir    string
	logger     *logger.Logger
}

// New creates a new fetcher writing into the configured data directory
func New(cfg config.FetcherConfig, dataDir string, logger *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		dataDir: dataDir,
		logger:  logger.Named("fetcher"),
	}
}

// URL returns the download URL for a period. The directory segment uses
// the unpadded month, the archive name the two-digit month.
func (f *Fetcher) URL(year, month int) string {
	return fmt.Sprintf("%s/%d/%d/vehiculos/matriculaciones/export_mensual_mat_%d%02d.zip",
		f.baseURL, year, month, year, month)
}

// Fetch downloads the archive for one (year, month) and extracts every
// file entry under the data directory. A missing or unreachable archive
// is not an error for the caller: the period simply has no data.
func (f *Fetcher) Fetch(ctx context.Context, year, month int) Result {
	url := f.URL(year, month)
	archivePath := filepath.Join(f.dataDir, fmt.Sprintf("export_mensual_mat_%d%02d.zip", year, month))

	f.logger.Info("Downloading archive",
		logger.Int("year", year),
		logger.Int("month", month),
		logger.String("url", url),
	)

	if err := f.download(ctx, url, archivePath); err != nil {
		if _, ok := err.(*statusError); ok {
			f.logger.Warn("No archive for period",
				logger.Int("year", year),
				logger.Int("month", month),
				logger.Error(err),
			)
			return Result{Status: NoData, Err: err}
		}
		f.logger.Warn("Download failed",
			logger.String("url", url),
			logger.Error(err),
		)
		return Result{Status: Failed, Err: err}
	}

	extracted, err := f.extract(archivePath)
	if err != nil {
		f.logger.Warn("Extraction failed",
			logger.String("archive", archivePath),
			logger.Error(err),
		)
		return Result{Status: Failed, Err: err}
	}
	if len(extracted) == 0 {
		f.logger.Warn("Archive contained no files", logger.String("archive", archivePath))
		return Result{Status: NoData}
	}

	f.logger.Info("Archive extracted",
		logger.String("archive", archivePath),
		logger.Int("files", len(extracted)),
	)

	return Result{Status: Fetched, Path: extracted[0], Extracted: extracted}
}

// statusError marks a non-2xx response, which callers treat as "no data"
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// download retrieves url into path
func (f *Fetcher) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/zip")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to save archive: %w", err)
	}

	return nil
}

// extract writes every file entry of the archive under the data
// directory, preserving the archive-relative path. Keeping the relative
// path avoids basename collisions between entries.
func (f *Fetcher) extract(archivePath string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	var extracted []string
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		rel := filepath.Clean(filepath.FromSlash(entry.Name))
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("archive entry escapes data directory: %s", entry.Name)
		}
		target := filepath.Join(f.dataDir, rel)

		if err := f.extractEntry(entry, target); err != nil {
			return nil, err
		}
		extracted = append(extracted, target)
	}

	return extracted, nil
}

// extractEntry inflates one archive entry to target
func (f *Fetcher) extractEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}

	return nil
}
