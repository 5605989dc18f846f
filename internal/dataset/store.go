// Package dataset implements the dataset store (C6, §4.6): the
// filesystem layout, the index document, and the three-way invariant
// between metadata files, media files, and the index. The store
// exclusively owns every read/write of persisted artifacts (§3
// "Ownership").
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/itemid"
)

// Config configures a Store.
type Config struct {
	MetadataDir       string
	MediaDir          string
	IndexFile         string
	FetchLogFile      string // empty disables the derived fetch-log table
	UpdateIndexOnSave bool
}

// Store owns the on-disk layout described in §6 and the in-memory
// index document. All mutating operations acquire the writer lock;
// readers may proceed concurrently with each other but not with
// writers (§4.6 Concurrency).
type Store struct {
	cfg Config

	mu    sync.RWMutex
	index crawl.IndexDocument

	fetchLog *fetchLog
	logger   *zap.Logger
}

// Open loads the existing index (or starts a fresh one) and opens the
// derived fetch-log table.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.MetadataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	s := &Store{cfg: cfg, logger: logger.Named("dataset")}

	index, err := loadIndexFile(cfg.IndexFile)
	if err != nil {
		return nil, err
	}
	s.index = index

	if cfg.FetchLogFile != "" {
		fl, err := openFetchLog(cfg.FetchLogFile, logger)
		if err != nil {
			return nil, fmt.Errorf("open fetch log: %w", err)
		}
		s.fetchLog = fl
	}

	return s, nil
}

// Close releases the fetch-log handle, if any.
func (s *Store) Close() error {
	if s.fetchLog != nil {
		return s.fetchLog.Close()
	}
	return nil
}

func loadIndexFile(path string) (crawl.IndexDocument, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return crawl.NewIndexDocument(), nil
	}
	if err != nil {
		return crawl.IndexDocument{}, fmt.Errorf("read index file: %w", err)
	}

	var doc crawl.IndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return crawl.IndexDocument{}, fmt.Errorf("parse index file: %w", err)
	}
	if doc.Videos == nil {
		doc.Videos = make(map[string]crawl.IndexEntry)
	}
	return doc, nil
}

func (s *Store) metadataPath(id string) string {
	return filepath.Join(s.cfg.MetadataDir, id+".json")
}

func (s *Store) mediaPath(id, ext string) string {
	return filepath.Join(s.cfg.MediaDir, id+"."+ext)
}

// PutMetadata implements §4.6's put_metadata. It writes the metadata
// file first, then updates the index in memory, then persists the
// index atomically; on index-write failure it rolls back the
// in-memory index and surfaces CommitFailed while leaving the
// metadata file in place (it becomes an orphan for Maintenance).
func (s *Store) PutMetadata(record crawl.MetadataRecord) (crawl.CommitResult, error) {
	id := record.BasicInfo.ItemID
	if err := itemid.Validate(id); err != nil {
		return 0, apperrors.Wrap(apperrors.KindRemoteError, "invalid item id", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.index.Videos[id]

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal metadata record: %w", err)
	}
	if err := writeAtomic(s.metadataPath(id), data, 0o644); err != nil {
		s.record(id, "put_metadata", "error")
		return 0, fmt.Errorf("write metadata file: %w", err)
	}

	result := crawl.Created
	if existed {
		result = crawl.Updated
	}

	if s.cfg.UpdateIndexOnSave {
		prior := cloneIndex(s.index)
		entry := crawl.FromMetadata(record)
		if old, ok := s.index.Videos[id]; ok {
			entry.HasMedia = old.HasMedia
			entry.MediaExt = old.MediaExt
		}
		s.index.Videos[id] = entry
		s.index.Recompute(time.Now().UTC())

		if err := s.persistIndexLocked(); err != nil {
			s.index = prior
			s.record(id, "put_metadata", "commit_failed")
			return 0, apperrors.WithItem(apperrors.Wrap(apperrors.KindCommitFailed, "index write failed", err), id)
		}
	}

	s.record(id, "put_metadata", "ok")
	return result, nil
}

// AttachMedia implements §4.6's attach_media.
func (s *Store) AttachMedia(itemID, ext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index.Videos[itemID]
	if !ok {
		if _, err := os.Stat(s.metadataPath(itemID)); err != nil {
			return apperrors.WithItem(apperrors.New(apperrors.KindNotFound, "metadata missing"), itemID)
		}
		rec, err := s.readMetadataFile(itemID)
		if err != nil {
			return apperrors.WithItem(err, itemID)
		}
		entry = crawl.FromMetadata(rec)
	}

	prior := cloneIndex(s.index)
	entry.HasMedia = true
	entry.MediaExt = ext
	s.index.Videos[itemID] = entry
	s.index.Recompute(time.Now().UTC())

	if err := s.persistIndexLocked(); err != nil {
		s.index = prior
		s.record(itemID, "attach_media", "commit_failed")
		return apperrors.WithItem(apperrors.Wrap(apperrors.KindCommitFailed, "index write failed", err), itemID)
	}

	s.record(itemID, "attach_media", "ok")
	return nil
}

// Get implements §4.6's get(item_id) → MetadataRecord?.
func (s *Store) Get(itemID string) (crawl.MetadataRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(s.metadataPath(itemID)); errors.Is(err, os.ErrNotExist) {
		return crawl.MetadataRecord{}, false, nil
	}
	rec, err := s.readMetadataFile(itemID)
	if err != nil {
		return crawl.MetadataRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) readMetadataFile(itemID string) (crawl.MetadataRecord, error) {
	data, err := os.ReadFile(s.metadataPath(itemID))
	if err != nil {
		return crawl.MetadataRecord{}, fmt.Errorf("read metadata file: %w", err)
	}
	var rec crawl.MetadataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return crawl.MetadataRecord{}, fmt.Errorf("parse metadata file: %w", err)
	}
	return rec, nil
}

// HasMedia implements §4.6's has_media(item_id) → bool.
func (s *Store) HasMedia(itemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.index.Videos[itemID]
	return ok && entry.HasMedia
}

// MediaExt reports the media file extension attached to itemID, if
// any. Used by maintenance and the orchestrator's resume check.
func (s *Store) MediaExt(itemID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.index.Videos[itemID]
	if !ok || !entry.HasMedia {
		return "", false
	}
	return entry.MediaExt, true
}

// RemovalReport is the result of a Remove call (§4.6).
type RemovalReport struct {
	Removed []string
	Missing map[string][]string // item_id -> which artifacts were missing
}

// Remove implements §4.6's remove(item_ids). Missing artifacts are
// reported but do not fail the overall call.
func (s *Store) Remove(itemIDs []string) (RemovalReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := RemovalReport{Missing: make(map[string][]string)}
	prior := cloneIndex(s.index)

	for _, id := range itemIDs {
		entry, hasEntry := s.index.Videos[id]

		if entry.MediaExt != "" {
			if err := os.Remove(s.mediaPath(id, entry.MediaExt)); err != nil && !os.IsNotExist(err) {
				return report, fmt.Errorf("remove media file for %s: %w", id, err)
			} else if os.IsNotExist(err) {
				report.Missing[id] = append(report.Missing[id], "media")
			}
		} else {
			report.Missing[id] = append(report.Missing[id], "media")
		}

		if err := os.Remove(s.metadataPath(id)); err != nil && !os.IsNotExist(err) {
			return report, fmt.Errorf("remove metadata file for %s: %w", id, err)
		} else if os.IsNotExist(err) {
			report.Missing[id] = append(report.Missing[id], "metadata")
		}

		if hasEntry {
			delete(s.index.Videos, id)
		} else {
			report.Missing[id] = append(report.Missing[id], "index")
		}

		report.Removed = append(report.Removed, id)
	}

	s.index.Recompute(time.Now().UTC())
	if err := s.persistIndexLocked(); err != nil {
		s.index = prior
		return report, apperrors.Wrap(apperrors.KindCommitFailed, "index write failed during remove", err)
	}
	for _, id := range itemIDs {
		s.record(id, "remove", "ok")
	}
	return report, nil
}

// SnapshotIndex implements §4.6's snapshot_index() → IndexDocument.
func (s *Store) SnapshotIndex() crawl.IndexDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIndex(s.index)
}

// LoadIndex implements §4.6's load_index() → IndexDocument by
// re-reading the canonical file from disk, bypassing the in-memory
// copy (used by maintenance to detect divergence).
func (s *Store) LoadIndex() (crawl.IndexDocument, error) {
	return loadIndexFile(s.cfg.IndexFile)
}

// ReplaceIndex overwrites the in-memory and on-disk index wholesale.
// Used by maintenance operations (sync_index, clean) that recompute
// the index from a fresh filesystem scan rather than an incremental
// update.
func (s *Store) ReplaceIndex(doc crawl.IndexDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.index
	s.index = doc
	if err := s.persistIndexLocked(); err != nil {
		s.index = prior
		return apperrors.Wrap(apperrors.KindCommitFailed, "index write failed", err)
	}
	return nil
}

func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return writeAtomic(s.cfg.IndexFile, data, 0o644)
}

func cloneIndex(doc crawl.IndexDocument) crawl.IndexDocument {
	out := crawl.IndexDocument{Videos: make(map[string]crawl.IndexEntry, len(doc.Videos)), Stats: doc.Stats}
	for k, v := range doc.Videos {
		out.Videos[k] = v
	}
	return out
}

func (s *Store) record(itemID, operation, result string) {
	if s.fetchLog != nil {
		s.fetchLog.record(itemID, operation, result)
	}
}

// MetadataDir and MediaDir expose the configured directories for
// components that need to enumerate files directly (maintenance) or
// construct .part paths (download).
func (s *Store) MetadataDir() string { return s.cfg.MetadataDir }
func (s *Store) MediaDir() string    { return s.cfg.MediaDir }

// FetchLogFailureRate exposes the derived fetch-log table's recent
// failure rate for the given operation, or (0, false) if the fetch
// log is disabled.
func (s *Store) FetchLogFailureRate(operation string, n int) (float64, bool, error) {
	if s.fetchLog == nil {
		return 0, false, nil
	}
	rate, err := s.fetchLog.RecentFailureRate(operation, n)
	return rate, true, err
}
