package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"clasutil/config"
	"clasutil/ingest"
	"clasutil/models"
	"clasutil/server"
	"clasutil/services"
	"clasutil/snapshot"
	"clasutil/storage"
	"clasutil/utils"
)

const usage = `usage: clasutil [command] [flags]

commands:
  serve      run the dashboard and data API (default)
  status     print the current occupancy summary
  export     write current room statuses to CSV or XLSX
  snapshot   save dashboard screenshots via headless Chrome
`

func main() {
	cfg := config.Load()
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "status":
		err = runStatus(ctx, cfg, logger, args)
	case "export":
		err = runExport(ctx, cfg, logger, args)
	case "snapshot":
		err = runSnapshot(ctx, cfg, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("%s failed: %v", cmd, err)
		logger.Sync()
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	logger.Info("=== clasutil starting ===")
	logger.Info("Config: table %s | fetch limit %d | fetch timeout %v | cache %v | mqtt %v",
		cfg.ObservationTable, cfg.FetchLimit, cfg.FetchTimeout, cfg.CacheEnabled(), cfg.MQTTEnabled())

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reader, closeReader := newReader(cfg, store, logger)
	defer closeReader()

	statusSvc := services.NewStatusService(reader, services.NewAggregator(logger), logger, cfg.FetchLimit, cfg.FetchTimeout)
	ingestSvc := services.NewIngestService(store, logger)

	if cfg.MQTTEnabled() {
		sub := ingest.NewSubscriber(ingest.NewClient(cfg, logger), cfg.MQTTTopic, ingestSvc, logger)
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Stop()
	}

	srv, err := server.New(statusSvc, ingestSvc, store, logger)
	if err != nil {
		return err
	}
	return server.Serve(ctx, cfg.HTTPAddr, srv.Routes(cfg.CORSAllowedOrigins), logger)
}

func runStatus(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	filters := filterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := queryStatuses(ctx, cfg, logger, *filters)
	if err != nil {
		return err
	}

	summarySvc := services.NewSummaryService(logger)
	summarySvc.Print(os.Stdout, summarySvc.Generate(report), time.Now())
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "csv", "output format: csv or xlsx")
	out := fs.String("out", "", "output path (default ./output/room_status.<format>)")
	filters := filterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		*out = "./output/room_status." + *format
	}

	var (
		writer storage.StatusWriter
		err    error
	)
	switch *format {
	case "csv":
		writer, err = storage.NewCSVWriter(*out)
	case "xlsx":
		writer, err = storage.NewXLSXWriter(*out)
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}
	if err != nil {
		return err
	}

	report, err := queryStatuses(ctx, cfg, logger, *filters)
	if err != nil {
		_ = writer.Close()
		return err
	}

	if err := writer.WriteStatuses(report.Rooms); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	logger.Info("Exported %d rooms to %s", len(report.Rooms), *out)
	return nil
}

func runSnapshot(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	baseURL := fs.String("url", "http://localhost"+cfg.HTTPAddr+"/", "dashboard base URL")
	buildings := fs.String("buildings", "", "comma-separated building filters, one screenshot each")
	status := fs.String("status", "", "status filter applied to every screenshot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	views := []models.FilterSet{{Status: *status}}
	if *buildings != "" {
		views = views[:0]
		for _, b := range strings.Split(*buildings, ",") {
			if b = strings.TrimSpace(b); b != "" {
				views = append(views, models.FilterSet{Building: b, Status: *status})
			}
		}
	}

	saved, err := snapshot.New(cfg, logger).Capture(ctx, *baseURL, views)
	logger.Info("Saved %d dashboard snapshots to %s", len(saved), cfg.SnapshotDir)
	return err
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*storage.PostgresStore, error) {
	retry := &utils.RetryConfig{
		MaxAttempts: cfg.StoreMaxRetries,
		BaseDelay:   200 * time.Millisecond,
		Logger:      logger,
	}
	store, err := storage.OpenPostgresStore(ctx, cfg.DSN(), cfg.ObservationTable, retry, logger)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		return nil, err
	}
	return store, nil
}

// newReader puts the Redis batch cache in front of the store when configured.
func newReader(cfg *config.Config, store storage.ObservationReader, logger *utils.Logger) (storage.ObservationReader, func()) {
	if !cfg.CacheEnabled() {
		return store, func() {}
	}
	client := storage.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	logger.Info("Caching observation batches in Redis at %s for %v", cfg.RedisAddr, cfg.CacheTTL)
	return storage.NewCachedStore(store, storage.NewRedisKV(client), cfg.CacheTTL, logger),
		func() { _ = client.Close() }
}

func queryStatuses(ctx context.Context, cfg *config.Config, logger *utils.Logger, filters models.FilterSet) (*models.StatusReport, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	statusSvc := services.NewStatusService(store, services.NewAggregator(logger), logger, cfg.FetchLimit, cfg.FetchTimeout)
	return statusSvc.ListStatuses(ctx, filters)
}

func filterFlags(fs *flag.FlagSet) *models.FilterSet {
	f := &models.FilterSet{}
	fs.StringVar(&f.Building, "building", "", "building substring filter")
	fs.StringVar(&f.Floor, "floor", "", "floor substring filter")
	fs.StringVar(&f.ClassType, "class_type", "", "class type substring filter")
	fs.StringVar(&f.Status, "status", "", "exact status filter")
	return f
}
