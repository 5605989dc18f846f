// Package maintenance implements the maintenance engine (C7, §4.7):
// offline operations over the dataset store — duration filtering,
// orphan reconciliation, and index resynchronization. None of these
// operations touch the network.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/dataset"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
)

// Store is the slice of the dataset store the maintenance engine
// needs. It operates directly on the filesystem as well, since
// orphan detection requires enumerating files the store's own API
// doesn't expose a listing for.
type Store interface {
	Get(itemID string) (crawl.MetadataRecord, bool, error)
	Remove(itemIDs []string) (dataset.RemovalReport, error)
	SnapshotIndex() crawl.IndexDocument
	ReplaceIndex(doc crawl.IndexDocument) error
	MetadataDir() string
	MediaDir() string
}

// Engine runs the C7 operations against a Store.
type Engine struct {
	store     Store
	probePath string // external media-probe tool (e.g. ffprobe); empty disables probing
	logger    *zap.Logger
}

// New builds an Engine. probePath is the external duration-probe tool
// invoked when a metadata record's own duration field is unusable
// (§4.7 "Duration source preference"); pass "" to disable probing.
func New(store Store, probePath string, logger *zap.Logger) *Engine {
	return &Engine{store: store, probePath: probePath, logger: logger.Named("maintenance")}
}

// FilterReport is the result of FilterByDuration.
type FilterReport struct {
	Removed []string
	Unknown []string // duration could not be determined; listed but not removed
	DryRun  bool
}

// FilterByDuration implements §4.7's filter_by_duration. Duration
// source preference is (1) the metadata record's own duration field,
// (2) an external media-probe tool over the media file.
func (e *Engine) FilterByDuration(ctx context.Context, maxSeconds int64, dryRun bool) (FilterReport, error) {
	report := FilterReport{DryRun: dryRun}
	idx := e.store.SnapshotIndex()

	var toRemove []string
	for itemID := range idx.Videos {
		rec, ok, err := e.store.Get(itemID)
		if err != nil {
			return report, fmt.Errorf("read metadata for %s: %w", itemID, err)
		}
		if !ok {
			continue
		}

		duration := rec.BasicInfo.Duration
		if duration <= 0 {
			entry := idx.Videos[itemID]
			if e.probePath != "" && entry.HasMedia {
				probed, err := e.probeDuration(ctx, filepath.Join(e.store.MediaDir(), itemID+"."+entry.MediaExt))
				if err != nil {
					e.logger.Warn("duration probe failed", zap.String("item_id", itemID), zap.Error(err))
					report.Unknown = append(report.Unknown, itemID)
					continue
				}
				duration = probed
			} else {
				report.Unknown = append(report.Unknown, itemID)
				continue
			}
		}

		if duration > maxSeconds {
			toRemove = append(toRemove, itemID)
		}
	}

	report.Removed = toRemove
	if dryRun || len(toRemove) == 0 {
		return report, nil
	}

	if _, err := e.store.Remove(toRemove); err != nil {
		return report, fmt.Errorf("remove over-duration items: %w", err)
	}
	return report, nil
}

// probeDuration shells out to the external media-probe tool and
// parses its stdout as a plain integer/float number of seconds,
// grounded on
// _examples/original_source/bilibili_sensitive_crawler/utils/video_filter.py's
// ffprobe invocation, simplified to a single numeric-duration output
// format (`-show_entries format=duration -of
// default=noprint_wrappers=1:nokey=1`).
func (e *Engine) probeDuration(ctx context.Context, path string) (int64, error) {
	cmd := exec.CommandContext(ctx, e.probePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindTransient, "media probe failed", err)
	}
	text := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse probe output %q: %w", text, err)
	}
	return int64(seconds), nil
}

// MatchReport is the result of Analyze (§4.7 "Orphan reconciliation").
type MatchReport struct {
	MetadataOnly     []string // metadata file exists, no media file
	MediaOnly        []string // media file exists, no metadata file
	IndexOnly        []string // index entry exists, no metadata AND no media
	MissingFromIndex []string // both files exist, no index entry
}

// Analyze implements §4.7's analyze().
func (e *Engine) Analyze() (MatchReport, error) {
	metadataIDs, err := e.listIDs(e.store.MetadataDir(), ".json")
	if err != nil {
		return MatchReport{}, fmt.Errorf("list metadata files: %w", err)
	}
	delete(metadataIDs, "index")

	mediaIDs, err := e.listMediaIDs()
	if err != nil {
		return MatchReport{}, fmt.Errorf("list media files: %w", err)
	}

	idx := e.store.SnapshotIndex()
	indexIDs := make(map[string]bool, len(idx.Videos))
	for id := range idx.Videos {
		indexIDs[id] = true
	}

	var report MatchReport
	for id := range metadataIDs {
		if !mediaIDs[id] {
			report.MetadataOnly = append(report.MetadataOnly, id)
		}
	}
	for id := range mediaIDs {
		if !metadataIDs[id] {
			report.MediaOnly = append(report.MediaOnly, id)
		}
	}
	for id := range indexIDs {
		if !metadataIDs[id] && !mediaIDs[id] {
			report.IndexOnly = append(report.IndexOnly, id)
		}
	}
	for id := range metadataIDs {
		if mediaIDs[id] && !indexIDs[id] {
			report.MissingFromIndex = append(report.MissingFromIndex, id)
		}
	}
	return report, nil
}

func (e *Engine) listIDs(dir, ext string) (map[string]bool, error) {
	ids := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		ids[strings.TrimSuffix(entry.Name(), ext)] = true
	}
	return ids, nil
}

func (e *Engine) listMediaIDs() (map[string]bool, error) {
	ids := make(map[string]bool)
	entries, err := os.ReadDir(e.store.MediaDir())
	if os.IsNotExist(err) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".part") {
			continue
		}
		ids[strings.TrimSuffix(name, filepath.Ext(name))] = true
	}
	return ids, nil
}

// CleanReport is the result of Clean.
type CleanReport struct {
	RemovedMedia     []string
	RemovedMetadata  []string
	RemovedFromIndex []string
	DryRun           bool
}

// Clean implements §4.7's clean(). Each flag targets one orphan
// category; updateIndex additionally drops index-only orphans.
func (e *Engine) Clean(cleanMediaOrphans, cleanMetadataOrphans, updateIndex, dryRun bool) (CleanReport, error) {
	match, err := e.Analyze()
	if err != nil {
		return CleanReport{}, err
	}
	report := CleanReport{DryRun: dryRun}

	if cleanMediaOrphans {
		for _, id := range match.MediaOnly {
			report.RemovedMedia = append(report.RemovedMedia, id)
			if !dryRun {
				if err := e.removeMediaFile(id); err != nil {
					return report, fmt.Errorf("remove media orphan %s: %w", id, err)
				}
			}
		}
	}
	if cleanMetadataOrphans {
		for _, id := range match.MetadataOnly {
			report.RemovedMetadata = append(report.RemovedMetadata, id)
			if !dryRun {
				if err := os.Remove(filepath.Join(e.store.MetadataDir(), id+".json")); err != nil {
					return report, fmt.Errorf("remove metadata orphan %s: %w", id, err)
				}
			}
		}
	}
	if updateIndex && len(match.IndexOnly) > 0 {
		report.RemovedFromIndex = append(report.RemovedFromIndex, match.IndexOnly...)
		if !dryRun {
			idx := e.store.SnapshotIndex()
			for _, id := range match.IndexOnly {
				delete(idx.Videos, id)
			}
			idx.Recompute(time.Now().UTC())
			if err := e.store.ReplaceIndex(idx); err != nil {
				return report, fmt.Errorf("persist index after clean: %w", err)
			}
		}
	}
	return report, nil
}

func (e *Engine) removeMediaFile(id string) error {
	entries, err := os.ReadDir(e.store.MediaDir())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == id && !strings.HasSuffix(name, ".part") {
			return os.Remove(filepath.Join(e.store.MediaDir(), name))
		}
	}
	return nil
}

// SyncReport is the result of SyncIndex.
type SyncReport struct {
	RemovedStale []string
	AddedMissing []string
	DryRun       bool
}

// SyncIndex implements §4.7's sync_index(). Removes index entries for
// IDs lacking both artifacts; adds entries for IDs that have both
// artifacts but no index entry, derived from the metadata file.
func (e *Engine) SyncIndex(dryRun bool) (SyncReport, error) {
	match, err := e.Analyze()
	if err != nil {
		return SyncReport{}, err
	}

	report := SyncReport{
		RemovedStale: match.IndexOnly,
		AddedMissing: match.MissingFromIndex,
		DryRun:       dryRun,
	}
	if dryRun {
		return report, nil
	}

	idx := e.store.SnapshotIndex()
	for _, id := range match.IndexOnly {
		delete(idx.Videos, id)
	}
	for _, id := range match.MissingFromIndex {
		rec, ok, err := e.store.Get(id)
		if err != nil || !ok {
			continue
		}
		entry := crawl.FromMetadata(rec)
		entry.HasMedia = true
		entry.MediaExt = e.mediaExtOf(id)
		idx.Videos[id] = entry
	}
	idx.Recompute(time.Now().UTC())

	if err := e.store.ReplaceIndex(idx); err != nil {
		return report, fmt.Errorf("persist synced index: %w", err)
	}
	return report, nil
}

func (e *Engine) mediaExtOf(id string) string {
	entries, err := os.ReadDir(e.store.MediaDir())
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".part") {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == id {
			return strings.TrimPrefix(filepath.Ext(name), ".")
		}
	}
	return ""
}
