// Package download implements the stream downloader (C5, §4.5):
// quality selection, resumable byte-range video/audio download, and
// muxing to a final media file via an external tool.
package download

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/remote"
)

// Store is the slice of the dataset store's contract the downloader
// needs: reading the already-collected MetadataRecord for the
// pre-download duration filter, and committing the finished media file.
type Store interface {
	Get(itemID string) (crawl.MetadataRecord, bool, error)
	AttachMedia(itemID, ext string) error
	MediaDir() string
}

// Config holds every §4.5/§6 knob the downloader consults.
type Config struct {
	DefaultQuality        int
	RetryTimes            int
	ChunkSize             int64
	MaxSizeGB             int64
	MaxDurationOnDownload int64 // 0 or negative means unset (§8 boundary behavior)
	MuxerPath             string
	MediaExt              string // output container extension, default "mp4"
}

// Downloader implements §4.5.
type Downloader struct {
	cfg     Config
	svc     remote.Service
	store   Store
	fetcher *StreamFetcher
	logger  *zap.Logger
	rng     *rand.Rand
}

// New builds a Downloader.
func New(cfg Config, svc remote.Service, store Store, fetcher *StreamFetcher, logger *zap.Logger) *Downloader {
	if cfg.MediaExt == "" {
		cfg.MediaExt = "mp4"
	}
	return &Downloader{
		cfg:     cfg,
		svc:     svc,
		store:   store,
		fetcher: fetcher,
		logger:  logger.Named("download"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Result reports what Download did, for the orchestrator's aggregate
// report (§4.8).
type Result struct {
	Skipped           bool // pre-download duration filter rejected this item
	QualityDowngraded bool
}

// Download implements the full algorithm of §4.5 for one item.
func (d *Downloader) Download(ctx context.Context, itemID string) (Result, error) {
	rec, ok, err := d.store.Get(itemID)
	if err != nil {
		return Result{}, apperrors.WithItem(err, itemID)
	}
	if !ok {
		return Result{}, apperrors.WithItem(apperrors.New(apperrors.KindNotFound, "metadata not collected"), itemID)
	}

	if d.cfg.MaxDurationOnDownload > 0 && rec.BasicInfo.Duration > d.cfg.MaxDurationOnDownload {
		d.logger.Info("skipping download, exceeds max_duration_on_download",
			zap.String("item_id", itemID), zap.Int64("duration", rec.BasicInfo.Duration))
		return Result{Skipped: true}, nil
	}

	if err := d.checkDiskGuard(); err != nil {
		return Result{}, apperrors.WithItem(err, itemID)
	}

	quality, downgraded, err := d.selectQuality(ctx, itemID)
	if err != nil {
		return Result{}, apperrors.WithItem(err, itemID)
	}
	if downgraded {
		d.logger.Warn("requested quality unavailable, downgrading",
			zap.String("item_id", itemID), zap.Int("selected", quality))
	}

	urls, err := d.svc.GetStreamURLs(ctx, itemID, quality)
	if err != nil {
		return Result{QualityDowngraded: downgraded}, apperrors.WithItem(err, itemID)
	}

	videoPart := d.partPath(itemID, "video")
	audioPart := d.partPath(itemID, "audio")

	// Video fetch happens-before audio fetch happens-before mux (§5).
	if err := d.fetchWithRetry(ctx, urls.VideoURL, videoPart, urls.ByteLength); err != nil {
		return Result{QualityDowngraded: downgraded}, apperrors.WithItem(err, itemID)
	}
	if err := d.fetchWithRetry(ctx, urls.AudioURL, audioPart, 0); err != nil {
		return Result{QualityDowngraded: downgraded}, apperrors.WithItem(err, itemID)
	}

	outPath := filepath.Join(d.store.MediaDir(), itemID+"."+d.cfg.MediaExt)
	if err := Mux(ctx, d.cfg.MuxerPath, videoPart, audioPart, outPath); err != nil {
		// Muxer invocation is not retried automatically; .part files
		// are retained for manual inspection (§4.5, §7).
		return Result{QualityDowngraded: downgraded}, apperrors.WithItem(err, itemID)
	}

	_ = os.Remove(videoPart)
	_ = os.Remove(audioPart)

	if err := d.store.AttachMedia(itemID, d.cfg.MediaExt); err != nil {
		return Result{QualityDowngraded: downgraded}, apperrors.WithItem(err, itemID)
	}

	return Result{QualityDowngraded: downgraded}, nil
}

func (d *Downloader) partPath(itemID, stream string) string {
	return filepath.Join(d.store.MediaDir(), fmt.Sprintf("%s.%s.part", itemID, stream))
}

// selectQuality resolves the highest available quality ≤ requested;
// if none qualifies, it falls back to the lowest present and reports
// a downgrade (§4.5 "Quality selection").
func (d *Downloader) selectQuality(ctx context.Context, itemID string) (int, bool, error) {
	qualities, err := d.svc.AvailableQualities(ctx, itemID)
	if err != nil {
		return 0, false, err
	}
	if len(qualities) == 0 {
		return 0, false, apperrors.New(apperrors.KindQualityUnavailable, "no streams available")
	}

	sort.Slice(qualities, func(i, j int) bool { return qualities[i].Code > qualities[j].Code })

	requested := d.cfg.DefaultQuality
	for _, q := range qualities {
		if q.Code <= requested {
			return q.Code, false, nil
		}
	}
	// Nothing at or below requested; fall back to the lowest present.
	lowest := qualities[len(qualities)-1]
	return lowest.Code, true, nil
}

// fetchWithRetry retries fetcher.FetchToFile up to cfg.RetryTimes with
// exponential backoff (§4.5 "Retry").
func (d *Downloader) fetchWithRetry(ctx context.Context, url, partPath string, expectedLength int64) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.RetryTimes; attempt++ {
		if attempt > 0 {
			delay := time.Second * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(d.rng.Int63n(int64(time.Second)))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := d.fetcher.FetchToFile(ctx, url, partPath, expectedLength, d.cfg.ChunkSize)
		if err == nil {
			return nil
		}
		lastErr = err
		d.logger.Warn("stream fetch attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return apperrors.Wrap(apperrors.KindTransient, "stream fetch failed after retries", lastErr)
}
