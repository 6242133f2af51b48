package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/batch"
	"github.com/yarkm13/dropsync/internal/catalog"
	"github.com/yarkm13/dropsync/internal/config"
	"github.com/yarkm13/dropsync/internal/logging"
	"github.com/yarkm13/dropsync/internal/normalize"
	"github.com/yarkm13/dropsync/internal/reconcile"
	"github.com/yarkm13/dropsync/internal/remote"
	"github.com/yarkm13/dropsync/internal/report"
	"github.com/yarkm13/dropsync/internal/transfer"
)

var longHelp = strings.TrimSpace(`
Download files from FTP, FTPS and SFTP drop directories into local folders,
then delete from the server exactly the files that were saved.

Files that fail to download stay on the server and are retried by the next
run. Names that cannot be decoded are skipped and left alone.
`)

var exampleUsage = strings.TrimSpace(`
  dropsync --config /etc/dropsync/config.toml
  dropsync --config sites.yaml --workers 4 --catalog catalog.json
`)

var errFailures = errors.Base("some files or servers failed")

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string

	log := logging.Logger()

	root := &cobra.Command{
		Use:           "dropsync",
		Short:         "Move files from remote drop directories to local folders",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := config.ChangedFlags(cmd.Flags())

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}
			if cfgFile != "" && (changed["config"] || config.FileExists(cfgFile)) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return errors.Errorf("load config: %w", err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			runLog, closer, err := logging.New(cfg.LogLevel, cfg.LogFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()
			log = runLog
			log.Debug().Interface("config", cfg.Redacted()).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file, TOML or YAML (default: $HOME/.dropsync/config.toml)")
	config.BindFlags(root.Flags(), &cfg)

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errFailures) {
			log.Error().Err(err).Msg("dropsync")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	jobs, err := cfg.Jobs(terminalPrompt())
	if err != nil {
		return err
	}
	defer func() {
		for _, j := range jobs {
			remote.SecureWipe(j.Credential.Secret)
		}
	}()

	normalizer, err := normalize.New(cfg.Charset)
	if err != nil {
		return err
	}

	failures := &report.FailureCounter{}
	collector := &catalog.Collector{}
	sinks := []report.Sink{report.NewLogSink(log), failures, collector}
	var metrics *report.MetricsSink
	if cfg.MetricsFile != "" {
		metrics = report.NewMetricsSink()
		sinks = append(sinks, metrics)
	}
	sink := report.Multi(sinks...)

	opts := transfer.Options{
		Filter:          cfg.Filter(),
		VerifySize:      cfg.VerifySize,
		CreateLocalBase: cfg.CreateLocalBase,
	}
	if cfg.VerifyPDF {
		opts.Verifier = transfer.NewPDFVerifier()
	}

	orchestrator := batch.New(
		remote.NewFactory(),
		transfer.NewEngine(normalizer, opts, sink, log),
		reconcile.New(normalizer, sink, log),
		sink,
		batch.Config{
			Workers:         cfg.Workers,
			ConnectAttempts: cfg.ConnectAttempts,
			Session:         remote.Options{Timeout: cfg.Timeout, Logger: log},
		},
		log,
	)

	start := time.Now()
	tally := orchestrator.Run(ctx, jobs)
	log.Info().
		Int("saved", tally.Total()).
		Int64("failures", failures.Failures()).
		Dur("took", time.Since(start)).
		Msg("run finished")

	// Written even after cancellation.
	writeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := writeCatalog(writeCtx, cfg, collector.Build(tally, time.Now())); err != nil {
		log.Error().Err(err).Msg("writing catalog")
		return errFailures
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Error().Err(err).Msg("writing metrics")
		}
	}

	if err := ctx.Err(); err != nil {
		return errors.Errorf("run interrupted: %w", err)
	}
	if failures.Failures() > 0 {
		return errFailures
	}
	return nil
}

func writeCatalog(ctx context.Context, cfg config.Config, c catalog.Catalog) error {
	writers := []catalog.Writer{catalog.NewConsoleWriter()}
	if cfg.CatalogFile != "" {
		writers = append(writers, &catalog.FileWriter{Path: cfg.CatalogFile})
	}
	var pgErr error
	if cfg.PostgresDSN != "" {
		pg, err := catalog.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			pgErr = err
		} else {
			defer pg.Close()
			writers = append(writers, pg)
		}
	}
	if err := catalog.WriteAll(ctx, c, writers...); err != nil {
		return err
	}
	return pgErr
}
