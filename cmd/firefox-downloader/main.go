package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vertextoedge/firefox-downloader/internal/adapter/filesystem"
	"github.com/vertextoedge/firefox-downloader/internal/adapter/mozilla"
	"github.com/vertextoedge/firefox-downloader/internal/adapter/sqlite"
	"github.com/vertextoedge/firefox-downloader/internal/config"
	"github.com/vertextoedge/firefox-downloader/internal/domain"
	"github.com/vertextoedge/firefox-downloader/internal/logger"
	"github.com/vertextoedge/firefox-downloader/internal/metrics"
	"github.com/vertextoedge/firefox-downloader/internal/port"
	"github.com/vertextoedge/firefox-downloader/internal/progress"
	"github.com/vertextoedge/firefox-downloader/internal/service/downloader"
	"github.com/vertextoedge/firefox-downloader/internal/service/maintenance"
	"go.uber.org/zap"
)

const version = "0.1.0"

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: firefox-downloader [-config file] <command> [flags]

Commands:
  download -release R -platform P [-no-cache]   fetch a build and print its path
  list                                          show channels, platforms and cached builds
  purge [-watch]                                remove stale cache files
  history [-limit N]                            show recent downloads
`)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("firefox-downloader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	if fs.NArg() == 0 {
		usage(stderr)
		return exitUsage
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	// Initialize logger
	if err := logger.InitWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return exitFailure
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Debug("starting firefox-downloader",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("cache_dir", cfg.CacheDir()))

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	var code int
	switch cmd {
	case "download":
		code = runDownload(ctx, cfg, cmdArgs, stdout, stderr, zapLogger)
	case "list":
		code = runList(cfg, cmdArgs, stdout, stderr, zapLogger)
	case "purge":
		code = runPurge(ctx, cfg, cmdArgs, stdout, stderr, zapLogger)
	case "history":
		code = runHistory(ctx, cfg, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return exitUsage
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			zapLogger.Warn("failed to export metrics", zap.Error(err))
		}
	}
	return code
}

// openHistory opens the history store if enabled. The returned close func is never nil.
func openHistory(cfg *config.Config, log *zap.Logger) (port.HistoryRepository, func()) {
	if !cfg.History.Enabled {
		return nil, func() {}
	}
	store, err := sqlite.Open(cfg.HistoryPath())
	if err != nil {
		log.Warn("download history disabled", zap.String("path", cfg.HistoryPath()), zap.Error(err))
		return nil, func() {}
	}
	return store, func() { store.Close() }
}

func newService(cfg *config.Config, fetcher port.Fetcher, history port.HistoryRepository, log *zap.Logger) (*downloader.Service, error) {
	cache, err := filesystem.NewManager(cfg.CacheDir(), log)
	if err != nil {
		return nil, err
	}
	return downloader.New(&downloader.Config{CacheTimeout: cfg.GetCacheTimeout()}, cache, fetcher, history, log), nil
}

func runDownload(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer, log *zap.Logger) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)
	release := fs.String("release", "", "Release channel (esr, release, beta, aurora, nightly)")
	platform := fs.String("platform", "", "Platform (osx, linux, linux32, win, win32)")
	noCache := fs.Bool("no-cache", false, "Discard any cached copy before downloading")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *release == "" || *platform == "" {
		fmt.Fprintln(stderr, "download requires -release and -platform")
		fs.Usage()
		return exitUsage
	}

	history, closeHistory := openHistory(cfg, log)
	defer closeHistory()

	fetcher := mozilla.NewClient(&mozilla.ClientConfig{
		ChunkSize:             cfg.Cache.GetChunkSize(),
		ResponseHeaderTimeout: cfg.HTTP.GetResponseHeaderTimeout(),
		InactivityTimeout:     cfg.HTTP.GetInactivityTimeout(),
		UserAgent:             cfg.HTTP.UserAgent,
		Progress:              progress.ForOutput(stdout, cfg.Progress.GetUpdateInterval()),
	}, log)

	svc, err := newService(cfg, fetcher, history, log)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create cache directory: %v\n", err)
		return exitFailure
	}

	path, err := svc.Download(ctx, *release, *platform, !*noCache)
	switch {
	case err == nil:
		fmt.Fprintln(stdout, path)
		return exitOK
	case domain.IsUnknownIdentifier(err):
		fmt.Fprintf(stderr, "%v\n", err)
		return exitUsage
	case domain.IsInterrupted(err):
		fmt.Fprintln(stderr, "download interrupted")
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "%v\n", err)
		if history != nil {
			if last, err := history.LastSuccess(ctx, *release, *platform); err == nil && last != nil {
				fmt.Fprintf(stderr, "last successful download: %s (%s)\n", humanize.Time(last.FinishedAt), last.Path)
			}
		}
		return exitFailure
	}
}

func runList(cfg *config.Config, args []string, stdout, stderr io.Writer, log *zap.Logger) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	svc, err := newService(cfg, nil, nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create cache directory: %v\n", err)
		return exitFailure
	}

	defaults := svc.Defaults()
	fmt.Fprintf(stdout, "channels:  %s\n", strings.Join(svc.ListChannels(), ", "))
	fmt.Fprintf(stdout, "platforms: %s\n", strings.Join(svc.ListPlatforms(), ", "))
	fmt.Fprintf(stdout, "defaults:  test=%s base=%s\n", defaults.Test, defaults.Base)

	entries, err := svc.Entries()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to list cache: %v\n", err)
		return exitFailure
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "cache:     empty")
		return exitOK
	}

	fmt.Fprintln(stdout, "cache:")
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", filepath.Base(e.Path), humanize.IBytes(uint64(e.Size)), humanize.Time(e.ModTime))
	}
	tw.Flush()
	return exitOK
}

func runPurge(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer, log *zap.Logger) int {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	watch := fs.Bool("watch", false, "Keep running and purge periodically")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	history, closeHistory := openHistory(cfg, log)
	defer closeHistory()

	svc, err := newService(cfg, nil, history, log)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create cache directory: %v\n", err)
		return exitFailure
	}

	maintenanceService := maintenance.New(&maintenance.Config{
		PurgeInterval: cfg.Maintenance.GetInterval(),
		HistoryMaxAge: cfg.History.GetMaxAge(),
	}, svc, history, log)

	if !*watch {
		removed := maintenanceService.RunOnce(ctx)
		fmt.Fprintf(stdout, "removed %d stale file(s)\n", removed)
		return exitOK
	}

	// Runs until SIGINT/SIGTERM
	if err := maintenanceService.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitFailure
	}
	return exitOK
}

func runHistory(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 20, "Number of records to show")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *limit <= 0 {
		fmt.Fprintln(stderr, "-limit must be positive")
		return exitUsage
	}

	if !cfg.History.Enabled {
		fmt.Fprintln(stderr, "download history is disabled")
		return exitFailure
	}

	store, err := sqlite.Open(cfg.HistoryPath())
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open history: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	records, err := store.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read history: %v\n", err)
		return exitFailure
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "no downloads recorded")
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tRELEASE\tPLATFORM\tOUTCOME\tSIZE\tDURATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.FinishedAt),
			r.Release,
			r.Platform,
			r.Outcome,
			humanize.IBytes(uint64(r.Bytes)),
			r.Duration().Round(time.Millisecond))
	}
	tw.Flush()
	return exitOK
}
