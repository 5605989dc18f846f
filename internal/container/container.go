// Package container hand-wires the composition root, the same role
// narwhalmedia-narwhal/internal/container/wire.go plays for the
// teacher's services — but assembled by hand rather than generated,
// since this module has no wire.Build injector to adapt (see
// DESIGN.md).
package container

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/config"
	"github.com/vidcrawl/vidcrawl/internal/dataset"
	"github.com/vidcrawl/vidcrawl/internal/download"
	"github.com/vidcrawl/vidcrawl/internal/maintenance"
	"github.com/vidcrawl/vidcrawl/internal/metadata"
	"github.com/vidcrawl/vidcrawl/internal/orchestrator"
	"github.com/vidcrawl/vidcrawl/internal/remote/bilivideo"
	"github.com/vidcrawl/vidcrawl/internal/search"
	"github.com/vidcrawl/vidcrawl/internal/session"
	"github.com/vidcrawl/vidcrawl/internal/transport"
)

// downloaderAdapter narrows *download.Downloader's Result type to
// orchestrator.DownloadResult, so internal/orchestrator does not need
// to import internal/download just for a shape it already re-declares
// as an interface-local type.
type downloaderAdapter struct{ d *download.Downloader }

func (a downloaderAdapter) Download(ctx context.Context, itemID string) (orchestrator.DownloadResult, error) {
	res, err := a.d.Download(ctx, itemID)
	return orchestrator.DownloadResult{Skipped: res.Skipped, QualityDowngraded: res.QualityDowngraded}, err
}

// Container holds every wired component cmd/vidcrawl needs. Fields
// are exported so main can reach whichever ones a given subcommand
// requires without the container imposing its own CLI structure.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Transport    *transport.Transport
	SessionStore *session.BoltStore
	Session      *session.Manager
	Remote       *bilivideo.Adapter

	Search       *search.Engine
	Collector    *metadata.Collector
	Dataset      *dataset.Store
	Downloader   *download.Downloader
	Maintenance  *maintenance.Engine
	Orchestrator *orchestrator.Orchestrator
}

// Build wires every component from cfg, in dependency order. The
// caller owns the lifetime of the returned Container and must call
// Close when done.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	tr := transport.New(transport.Config{
		RequestInterval:   cfg.RequestInterval,
		RandomOffset:      cfg.RandomOffset,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseInterval: cfg.RetryBaseInterval,
		Timeout:           cfg.Timeout,
		UserAgents:        cfg.UserAgents,
		UARotateInterval:  cfg.UARotateInterval,
	}, logger)

	remoteAdapter := bilivideo.New(tr)

	sessionStore, err := session.NewBoltStore(cfg.CredentialFile)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	sessionMgr := session.New(remoteAdapter, sessionStore, tr, logger,
		session.WithPrecheck(cfg.PrecheckHosts, cfg.PrecheckTimeout))

	searchEngine := search.New(remoteAdapter, search.Config{
		PageSize:         cfg.PageSize,
		MaxPages:         cfg.MaxPages,
		PageIntervalLo:   cfg.PageIntervalLo,
		PageIntervalHi:   cfg.PageIntervalHi,
		MinViewCount:     cfg.MinViewCount,
		MinPubdate:       cfg.MinPubdate,
		MaxPubdate:       cfg.MaxPubdate,
		MinDuration:      cfg.MinDuration,
		MaxDuration:      cfg.MaxDuration,
		KeywordFilters:   cfg.KeywordFilters,
		KeywordExcludes:  cfg.KeywordExcludes,
		QualityThreshold: cfg.QualityThreshold,
		QualityWeights: search.QualityWeights{
			Like:     cfg.QualityWeights.Like,
			Coin:     cfg.QualityWeights.Coin,
			Favorite: cfg.QualityWeights.Favorite,
		},
	}, logger)

	store, err := dataset.Open(dataset.Config{
		MetadataDir:       cfg.MetadataDir,
		MediaDir:          cfg.MediaDir,
		IndexFile:         cfg.IndexFile,
		FetchLogFile:      filepath.Join(cfg.MetadataDir, "fetchlog.db"),
		UpdateIndexOnSave: cfg.UpdateIndexOnSave,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open dataset store: %w", err)
	}

	collector := metadata.New(remoteAdapter, store, logger)

	fetcher := download.NewStreamFetcher(tr.CurrentUserAgent(), tr.SessionHeaders(), logger)
	downloader := download.New(download.Config{
		DefaultQuality:        cfg.DefaultQuality,
		RetryTimes:            cfg.RetryTimes,
		ChunkSize:             cfg.ChunkSize,
		MaxSizeGB:             cfg.MaxSizeGB,
		MaxDurationOnDownload: cfg.MaxDurationOnDownload,
		MuxerPath:             cfg.MuxerPath,
	}, remoteAdapter, store, fetcher, logger)

	maintenanceEngine := maintenance.New(store, "", logger)

	orch := orchestrator.New(orchestrator.Config{
		MetadataWorkers:    cfg.MetadataWorkers,
		ConcurrentLimit:    cfg.ConcurrentLimit,
		CandidateQueueSize: cfg.PageSize * 2,
	}, searchEngine, collector, downloaderAdapter{downloader}, store, logger)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Transport:    tr,
		SessionStore: sessionStore,
		Session:      sessionMgr,
		Remote:       remoteAdapter,
		Search:       searchEngine,
		Collector:    collector,
		Dataset:      store,
		Downloader:   downloader,
		Maintenance:  maintenanceEngine,
		Orchestrator: orch,
	}, nil
}

// Close releases every component holding an OS resource.
func (c *Container) Close() error {
	return c.Dataset.Close()
}

// WithResume rebuilds the orchestrator with the resume flag set,
// reusing every other already-wired component. Kept separate from
// Build's orchestrator.Config because resume is a per-invocation CLI
// flag (§4.8 "On startup with the resume flag"), not a persistent
// configuration value.
func (c *Container) WithResume(resume bool) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		MetadataWorkers:    c.Config.MetadataWorkers,
		ConcurrentLimit:    c.Config.ConcurrentLimit,
		CandidateQueueSize: c.Config.PageSize * 2,
		Resume:             resume,
	}, c.Search, c.Collector, downloaderAdapter{c.Downloader}, c.Dataset, c.Logger)
}
