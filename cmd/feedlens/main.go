package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/feedlens/feedlens/pkg/classify"
	"github.com/feedlens/feedlens/pkg/collector"
	"github.com/feedlens/feedlens/pkg/config"
	"github.com/feedlens/feedlens/pkg/domain"
	"github.com/feedlens/feedlens/pkg/normalize"
	"github.com/feedlens/feedlens/pkg/progress"
	"github.com/feedlens/feedlens/pkg/repository"
	"github.com/feedlens/feedlens/pkg/source"
	"github.com/feedlens/feedlens/pkg/state"
	"github.com/feedlens/feedlens/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"config file path"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)

	log.Printf("[INFO] starting feedlens version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := repository.New(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("[WARN] failed to close repository: %v", err)
		}
	}()

	tables, err := loadTables(cfg)
	if err != nil {
		return fmt.Errorf("load classification tables: %w", err)
	}
	classifier := classify.New(tables)
	log.Printf("[INFO] classification tables version %s", classifier.TablesVersion())

	client := source.NewClient(cfg.Collection.SourceTimeout)
	fetchers := map[domain.SourceKind]collector.Fetcher{
		domain.SourceReddit:    source.NewRedditFetcher(client),
		domain.SourceGitHub:    source.NewGitHubFetcher(client, cfg.Auth.GitHubToken),
		domain.SourceADO:       source.NewADOFetcher(client, cfg.Auth.ADOToken),
		domain.SourceCommunity: source.NewCommunityFetcher(client),
		domain.SourceHTTPJSON:  source.NewHTTPJSONFetcher(client),
	}

	broadcaster := progress.NewBroadcaster(16)
	coordinator := collector.NewCoordinator(fetchers, cfg.Sources, normalize.New(), classifier,
		repo.Record, repo.Run, broadcaster, collector.Params{
			SourceTimeout:       cfg.Collection.SourceTimeout,
			MaxWorkers:          cfg.Collection.MaxWorkers,
			FetchRetries:        cfg.Collection.FetchRetries,
			SimilarityThreshold: cfg.Collection.SimilarityThreshold,
		})

	lifecycle := state.NewManager(repo.Record)

	srv := server.New(cfg, coordinator, lifecycle, repo.Record, repo.Run, broadcaster, revision, opts.Debug)
	err = srv.Run(ctx)

	// let an in-flight run settle before closing the database
	coordinator.Wait()
	return err
}

func loadTables(cfg *config.Config) (*classify.Tables, error) {
	var tables *classify.Tables
	var err error
	if cfg.Classify.TablesPath != "" {
		tables, err = classify.LoadTables(cfg.Classify.TablesPath)
	} else {
		tables, err = classify.DefaultTables()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Classify.MinScore > 0 {
		tables.MinScore = cfg.Classify.MinScore
	}
	return tables, nil
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
