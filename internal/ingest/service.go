// Package ingest drives the monthly download-parse-insert loop.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/dgt-data/matriculas/internal/fetcher"
	"github.com/dgt-data/matriculas/internal/parser"
	"github.com/dgt-data/matriculas/internal/storage/sqlite"
	"github.com/dgt-data/matriculas/pkg/logger"
)

// headerMarker starts the banner line at the top of every export file
const headerMarker = "Vehículos matriculados"

// Range is an inclusive (year, month) ingestion window
type Range struct {
	StartYear  int
	StartMonth int
	EndYear    int
	EndMonth   int
}

// WithDefaults fills a zero end with the current date
func (r Range) WithDefaults(now time.Time) Range {
	if r.EndYear == 0 {
		r.EndYear = now.Year()
	}
	if r.EndMonth == 0 {
		r.EndMonth = int(now.Month())
	}
	return r
}

// Validate rejects ranges the month loop cannot iterate
func (r Range) Validate() error {
	if r.StartMonth < 1 || r.StartMonth > 12 || r.EndMonth < 1 || r.EndMonth > 12 {
		return fmt.Errorf("month out of range: start=%d end=%d", r.StartMonth, r.EndMonth)
	}
	if r.StartYear > r.EndYear {
		return fmt.Errorf("start year %d after end year %d", r.StartYear, r.EndYear)
	}
	return nil
}

// RunStats summarizes one ingestion run
type RunStats struct {
	MonthsFetched  int `json:"months_fetched"`
	MonthsNoData   int `json:"months_no_data"`
	MonthsFailed   int `json:"months_failed"`
	LinesParsed    int `json:"lines_parsed"`
	PartialRecords int `json:"partial_records"`
	Inserted       int `json:"inserted"`
	Duplicates     int `json:"duplicates"`
}

// Service runs the ingestion loop
type Service struct {
	fetcher *fetcher.Fetcher
	store   *sqlite.RegistrationStorage
	logger  *logger.Logger
}

// NewService creates a new ingestion service
func NewService(fetcher *fetcher.Fetcher, store *sqlite.RegistrationStorage, logger *logger.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		store:   store,
		logger:  logger.Named("ingest"),
	}
}

// Run fetches and loads every month in the range. A month without data
// or with a failed download is skipped, never fatal. Each extracted
// file is committed on its own, so partial progress survives a crash;
// the uniqueness constraint keeps replays idempotent.
func (s *Service) Run(ctx context.Context, r Range) (*RunStats, error) {
	r = r.WithDefaults(time.Now())
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.logger.Info("Starting ingestion",
		logger.Int("start_year", r.StartYear),
		logger.Int("start_month", r.StartMonth),
		logger.Int("end_year", r.EndYear),
		logger.Int("end_month", r.EndMonth),
	)

	stats := &RunStats{}
	for year := r.StartYear; year <= r.EndYear; year++ {
		for month := 1; month <= 12; month++ {
			if year == r.StartYear && month < r.StartMonth {
				continue
			}
			if year == r.EndYear && month > r.EndMonth {
				break
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			result := s.fetcher.Fetch(ctx, year, month)
			switch result.Status {
			case fetcher.NoData:
				stats.MonthsNoData++
				continue
			case fetcher.Failed:
				stats.MonthsFailed++
				continue
			}
			stats.MonthsFetched++

			if err := s.processFile(result.Path, stats); err != nil {
				return stats, fmt.Errorf("failed to process %s: %w", result.Path, err)
			}
		}
	}

	s.logger.Info("Ingestion finished",
		logger.Int("months_fetched", stats.MonthsFetched),
		logger.Int("months_no_data", stats.MonthsNoData),
		logger.Int("months_failed", stats.MonthsFailed),
		logger.Int("lines_parsed", stats.LinesParsed),
		logger.Int("partial_records", stats.PartialRecords),
		logger.Int("inserted", stats.Inserted),
		logger.Int("duplicates", stats.Duplicates),
	)

	return stats, nil
}

// processFile streams one extracted flat file through the parser and
// inserts every record inside a single transaction.
func (s *Service) processFile(path string, stats *RunStats) error {
	s.logger.Info("Processing file", logger.String("path", path))

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	tx, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The export files are ISO 8859-1 encoded
	scanner := bufio.NewScanner(transform.NewReader(file, charmap.ISO8859_1.NewDecoder()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, headerMarker) {
			continue
		}

		record := parser.Parse(line)
		stats.LinesParsed++
		if record.Outcome == parser.Partial {
			stats.PartialRecords++
			s.logger.Debug("Record has unparseable fields",
				logger.String("fields", strings.Join(record.Failed, ",")),
			)
		}

		inserted, err := s.store.Insert(tx, record)
		if err != nil {
			return err
		}
		if inserted {
			stats.Inserted++
		} else {
			stats.Duplicates++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
