package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/dgt-data/matriculas/internal/api"
	"github.com/dgt-data/matriculas/internal/config"
	"github.com/dgt-data/matriculas/internal/fetcher"
	"github.com/dgt-data/matriculas/internal/ingest"
	"github.com/dgt-data/matriculas/internal/storage/sqlite"
	"github.com/dgt-data/matriculas/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: matriculas <ingest|serve> [flags]")
}

// setup loads config, builds the logger and opens the store
func setup(configPath string) (*config.Config, *logger.Logger, *sqlite.RegistrationStorage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	db, err := sqlite.Open(cfg.Data.DBPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := sqlite.NewRegistrationStorage(db, log)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		db.Close()
		log.Sync()
	}
	return cfg, log, store, cleanup, nil
}

func runIngest(args []string) error {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := flags.String("config", "", "path to TOML config file")
	startYear := flags.Int("start-year", 0, "first year to fetch (default from config)")
	startMonth := flags.Int("start-month", 0, "first month to fetch (default from config)")
	endYear := flags.Int("end-year", 0, "last year to fetch (default current year)")
	endMonth := flags.Int("end-month", 0, "last month to fetch (default current month)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, log, store, cleanup, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	r := ingest.Range{
		StartYear:  *startYear,
		StartMonth: *startMonth,
		EndYear:    *endYear,
		EndMonth:   *endMonth,
	}
	if r.StartYear == 0 {
		r.StartYear = cfg.Ingest.StartYear
	}
	if r.StartMonth == 0 {
		r.StartMonth = cfg.Ingest.StartMonth
	}

	service := ingest.NewService(
		fetcher.New(cfg.Fetcher, cfg.Data.Dir, log),
		store,
		log,
	)

	_, err = service.Run(context.Background(), r)
	return err
}

func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", "", "path to TOML config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, log, store, cleanup, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	router := api.NewRouter(store, cfg, log)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	log.Info("Starting API server", logger.String("addr", addr))
	return http.ListenAndServe(addr, router.Routes())
}
