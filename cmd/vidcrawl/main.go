// Command vidcrawl is the CLI front-end for the keyword-driven video
// crawler core: it loads configuration, wires the composition root,
// and dispatches to one of the subcommands below.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/config"
	"github.com/vidcrawl/vidcrawl/internal/container"
	"github.com/vidcrawl/vidcrawl/internal/logger"
)

const serviceName = "vidcrawl"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	configPath := os.Getenv("VIDCRAWL_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(serviceName, cfg.Environment, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	c, err := container.Build(cfg, log)
	if err != nil {
		log.Fatal("failed to wire container", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, cancelling in-flight work")
		cancel()
	}()

	cmd := os.Args[1]
	args := os.Args[2:]

	var cmdErr error
	switch cmd {
	case "login":
		cmdErr = runLogin(ctx, c, args)
	case "crawl":
		cmdErr = runCrawl(ctx, c, args)
	case "maintenance":
		cmdErr = runMaintenance(ctx, c, args)
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		log.Error("command failed", zap.String("command", cmd), zap.Error(cmdErr))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: vidcrawl <command> [flags]

commands:
  login        acquire and persist a session credential
  crawl        run the search/metadata/download pipeline for one or more keywords
  maintenance  run an offline maintenance operation`)
}

func runLogin(ctx context.Context, c *container.Container, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	force := fs.Bool("force", false, "skip the persisted credential even if still valid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cred, err := c.Session.Login(ctx, *force)
	if err != nil {
		return err
	}
	c.Logger.Info("login succeeded", zap.Int("credential_fields", len(cred)))
	return nil
}

func runCrawl(ctx context.Context, c *container.Container, args []string) error {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	keywordsFlag := fs.String("keywords", "", "comma-separated list of search keywords")
	resume := fs.Bool("resume", false, "skip items already present with both artifacts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keywords := splitNonEmpty(*keywordsFlag, ",")
	if len(keywords) == 0 {
		return fmt.Errorf("crawl requires at least one keyword via -keywords")
	}

	if _, _, err := c.Session.Load(); err != nil {
		c.Logger.Warn("no persisted credential found, run 'vidcrawl login' first", zap.Error(err))
	}

	report, err := c.WithResume(*resume).Run(ctx, keywords)
	if err != nil {
		return err
	}

	c.Logger.Info("crawl complete",
		zap.String("run_id", report.RunID),
		zap.Int("keywords_processed", report.KeywordsProcessed),
		zap.Int("candidates_seen", report.CandidatesSeen),
		zap.Int("metadata_committed", report.MetadataCommitted),
		zap.Int("downloads_committed", report.DownloadsCommitted),
		zap.Int("downloads_skipped_by_duration", report.DownloadsSkippedByDuration),
	)
	for kind, count := range report.ErrorsByKind {
		c.Logger.Warn("errors by kind", zap.String("kind", string(kind)), zap.Int64("count", count))
	}
	return nil
}

func runMaintenance(ctx context.Context, c *container.Container, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("maintenance requires an operation: filter-duration | analyze | clean | sync-index")
	}
	op := args[0]
	fs := flag.NewFlagSet("maintenance "+op, flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report what would change without modifying the dataset")
	maxSeconds := fs.String("max-seconds", "3600", "max_seconds for filter-duration")
	cleanMedia := fs.Bool("clean-media-orphans", false, "remove media files with no metadata")
	cleanMetadata := fs.Bool("clean-metadata-orphans", false, "remove metadata files with no media")
	updateIndex := fs.Bool("update-index", false, "also drop index-only orphans")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch op {
	case "filter-duration":
		seconds, err := strconv.ParseInt(*maxSeconds, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -max-seconds: %w", err)
		}
		report, err := c.Maintenance.FilterByDuration(ctx, seconds, *dryRun)
		if err != nil {
			return err
		}
		c.Logger.Info("filter-duration complete", zap.Strings("removed", report.Removed), zap.Strings("unknown", report.Unknown))
	case "analyze":
		report, err := c.Maintenance.Analyze()
		if err != nil {
			return err
		}
		c.Logger.Info("analyze complete",
			zap.Strings("metadata_only", report.MetadataOnly),
			zap.Strings("media_only", report.MediaOnly),
			zap.Strings("index_only", report.IndexOnly),
			zap.Strings("missing_from_index", report.MissingFromIndex),
		)
	case "clean":
		report, err := c.Maintenance.Clean(*cleanMedia, *cleanMetadata, *updateIndex, *dryRun)
		if err != nil {
			return err
		}
		c.Logger.Info("clean complete",
			zap.Strings("removed_media", report.RemovedMedia),
			zap.Strings("removed_metadata", report.RemovedMetadata),
			zap.Strings("removed_from_index", report.RemovedFromIndex),
		)
	case "sync-index":
		report, err := c.Maintenance.SyncIndex(*dryRun)
		if err != nil {
			return err
		}
		c.Logger.Info("sync-index complete",
			zap.Strings("removed_stale", report.RemovedStale),
			zap.Strings("added_missing", report.AddedMissing),
		)
	default:
		return fmt.Errorf("unknown maintenance operation %q", op)
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
