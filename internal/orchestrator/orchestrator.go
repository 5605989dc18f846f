// Package orchestrator implements the pipeline orchestrator (C8,
// §4.8): it composes search, metadata collection, and download into a
// bounded, cancellable pipeline and produces the run's aggregate
// report.
package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
)

// SearchEngine is the slice of internal/search.Engine the orchestrator
// needs.
type SearchEngine interface {
	Search(ctx context.Context, keyword string, limit int, emit func(crawl.Candidate) error) error
}

// Collector is the slice of internal/metadata.Collector the
// orchestrator needs.
type Collector interface {
	Collect(ctx context.Context, itemID string) (crawl.MetadataRecord, error)
}

// DownloadResult mirrors internal/download.Result; duplicated as an
// interface-local shape so this package only depends on the method
// signature, not the concrete download package's other exports.
type DownloadResult struct {
	Skipped           bool
	QualityDowngraded bool
}

// Downloader is the slice of internal/download.Downloader the
// orchestrator needs.
type Downloader interface {
	Download(ctx context.Context, itemID string) (DownloadResult, error)
}

// Store is the slice of internal/dataset.Store the orchestrator needs
// for the resume check (§4.8 "Resume").
type Store interface {
	HasMedia(itemID string) bool
}

// Config holds the §4.8 concurrency knobs plus the supplemented
// extension point for Open Question 3 (global candidate cap).
type Config struct {
	MetadataWorkers    int
	ConcurrentLimit    int
	CandidateQueueSize int // defaults to 60 if <= 0; container.Build passes page_size*2
	Resume             bool
	MaxTotalCandidates int // 0 disables the global cap
}

// Orchestrator composes C3-C6 into the bounded pipeline of §4.8.
type Orchestrator struct {
	cfg        Config
	search     SearchEngine
	collector  Collector
	downloader Downloader
	store      Store
	logger     *zap.Logger
}

// New builds an Orchestrator.
func New(cfg Config, search SearchEngine, collector Collector, downloader Downloader, store Store, logger *zap.Logger) *Orchestrator {
	if cfg.CandidateQueueSize <= 0 {
		cfg.CandidateQueueSize = 60
	}
	if cfg.MetadataWorkers <= 0 {
		cfg.MetadataWorkers = 1
	}
	if cfg.ConcurrentLimit <= 0 {
		cfg.ConcurrentLimit = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		search:     search,
		collector:  collector,
		downloader: downloader,
		store:      store,
		logger:     logger.Named("orchestrator"),
	}
}

// KeywordReport is the supplemented per-keyword breakdown of the
// aggregate report.
type KeywordReport struct {
	CandidatesSeen     int
	MetadataCommitted  int
	DownloadsCommitted int
}

// Report is the §4.8 aggregate report, extended with the
// supplemented PerKeyword breakdown.
type Report struct {
	RunID                      string
	KeywordsProcessed          int
	CandidatesSeen             int
	MetadataCommitted          int
	DownloadsCommitted         int
	DownloadsSkippedByDuration int
	ErrorsByKind               map[apperrors.Kind]int64
	PerKeyword                 map[string]*KeywordReport
}

func newReport() *Report {
	return &Report{
		ErrorsByKind: make(map[apperrors.Kind]int64),
		PerKeyword:   make(map[string]*KeywordReport),
	}
}

// item flows from the search stage to the metadata stage, carrying
// enough to update the per-keyword report without a second lookup.
type item struct {
	candidate crawl.Candidate
}

// ready flows from the metadata stage to the download stage.
type ready struct {
	itemID  string
	keyword string
}

// Run executes the full pipeline for the given keywords and returns
// the aggregate report. It halts (returns a non-nil error) on a
// run-level failure per §7 (NetworkUnavailable, or the RemoteError
// circuit-breaker tripping); per-item failures are absorbed into the
// report and do not stop the run.
func (o *Orchestrator) Run(ctx context.Context, keywords []string) (Report, error) {
	report := newReport()
	report.RunID = uuid.New().String()
	var reportMu sync.Mutex

	log := o.logger.With(zap.String("run_id", report.RunID))
	log.Info("run started", zap.Strings("keywords", keywords))

	recordError := func(keyword string, err error) {
		kind := apperrors.KindOf(err)
		if kind == "" {
			kind = apperrors.KindTransient
		}
		reportMu.Lock()
		report.ErrorsByKind[kind]++
		reportMu.Unlock()
		log.Warn("pipeline item failed", zap.String("keyword", keyword), zap.Error(err))
	}

	breaker := newCircuitBreaker(20, 0.5)

	candidates := make(chan item, o.cfg.CandidateQueueSize)
	readyItems := make(chan ready, o.cfg.ConcurrentLimit*2)

	g, gctx := errgroup.WithContext(ctx)

	// Search fan-out: sequential per keyword (§4.8 stage 1).
	g.Go(func() error {
		defer close(candidates)
		totalEmitted := 0
		for _, kw := range keywords {
			reportMu.Lock()
			report.KeywordsProcessed++
			report.PerKeyword[kw] = &KeywordReport{}
			reportMu.Unlock()

			err := o.search.Search(gctx, kw, 0, func(c crawl.Candidate) error {
				if o.cfg.MaxTotalCandidates > 0 && totalEmitted >= o.cfg.MaxTotalCandidates {
					return errStopCandidates
				}
				reportMu.Lock()
				report.CandidatesSeen++
				report.PerKeyword[kw].CandidatesSeen++
				reportMu.Unlock()

				select {
				case candidates <- item{candidate: c}:
					totalEmitted++
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err == errStopCandidates {
				break
			}
			if err != nil {
				if apperrors.Is(err, apperrors.KindSearchFailed) {
					recordError(kw, err)
					continue
				}
				return err
			}
		}
		return nil
	})

	// Metadata workers (§4.8 stage 2).
	var metaWG sync.WaitGroup
	for i := 0; i < o.cfg.MetadataWorkers; i++ {
		metaWG.Add(1)
		g.Go(func() error {
			defer metaWG.Done()
			for it := range candidates {
				if breaker.tripped() {
					continue
				}
				if o.cfg.Resume && o.store.HasMedia(it.candidate.ItemID) {
					continue
				}

				_, err := o.collector.Collect(gctx, it.candidate.ItemID)
				if err != nil {
					breaker.record(false)
					recordError(it.candidate.Keyword, err)
					continue
				}
				breaker.record(true)

				reportMu.Lock()
				report.MetadataCommitted++
				if pk := report.PerKeyword[it.candidate.Keyword]; pk != nil {
					pk.MetadataCommitted++
				}
				reportMu.Unlock()

				select {
				case readyItems <- ready{itemID: it.candidate.ItemID, keyword: it.candidate.Keyword}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		metaWG.Wait()
		close(readyItems)
	}()

	// Download workers (§4.8 stage 3).
	for i := 0; i < o.cfg.ConcurrentLimit; i++ {
		g.Go(func() error {
			for r := range readyItems {
				res, err := o.downloader.Download(gctx, r.itemID)
				if err != nil {
					recordError(r.keyword, err)
					continue
				}
				if res.Skipped {
					reportMu.Lock()
					report.DownloadsSkippedByDuration++
					reportMu.Unlock()
					continue
				}

				reportMu.Lock()
				report.DownloadsCommitted++
				if pk := report.PerKeyword[r.keyword]; pk != nil {
					pk.DownloadsCommitted++
				}
				reportMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return *report, err
	}
	if breaker.tripped() {
		return *report, apperrors.New(apperrors.KindRemoteError, "circuit breaker tripped: too many recent remote failures")
	}
	return *report, nil
}

var errStopCandidates = &sentinelError{"candidate cap reached"}

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }
