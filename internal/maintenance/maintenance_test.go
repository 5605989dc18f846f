package maintenance_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/dataset"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/maintenance"
)

func record(id string, duration int64) crawl.MetadataRecord {
	return crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{ItemID: id, Title: "t", Duration: duration},
		Owner:     crawl.Owner{UploaderID: "1", UploaderName: "alice"},
	}
}

type MaintenanceTestSuite struct {
	suite.Suite

	ctx    context.Context
	dir    string
	store  *dataset.Store
	engine *maintenance.Engine
}

func (s *MaintenanceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()

	store, err := dataset.Open(dataset.Config{
		MetadataDir:       filepath.Join(s.dir, "metadata"),
		MediaDir:          filepath.Join(s.dir, "media"),
		IndexFile:         filepath.Join(s.dir, "metadata", "index.json"),
		UpdateIndexOnSave: true,
	}, zap.NewNop())
	require.NoError(s.T(), err)
	s.store = store
	s.engine = maintenance.New(store, "", zap.NewNop())
}

func (s *MaintenanceTestSuite) TearDownTest() {
	_ = s.store.Close()
}

func (s *MaintenanceTestSuite) TestFilterByDurationPlansAndRemoves() {
	_, err := s.store.PutMetadata(record("short", 30))
	s.Require().NoError(err)
	_, err = s.store.PutMetadata(record("long", 9000))
	s.Require().NoError(err)

	dryReport, err := s.engine.FilterByDuration(s.ctx, 3600, true)
	s.Require().NoError(err)
	s.Contains(dryReport.Removed, "long")
	s.NotContains(dryReport.Removed, "short")

	_, ok, err := s.store.Get("long")
	s.Require().NoError(err)
	s.True(ok, "dry run must not remove anything")

	report, err := s.engine.FilterByDuration(s.ctx, 3600, false)
	s.Require().NoError(err)
	s.Contains(report.Removed, "long")

	_, ok, err = s.store.Get("long")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *MaintenanceTestSuite) TestAnalyzeDetectsAllFourOrphanCategories() {
	_, err := s.store.PutMetadata(record("metaonly", 10))
	s.Require().NoError(err)

	_, err = s.store.PutMetadata(record("both", 10))
	s.Require().NoError(err)
	s.Require().NoError(s.store.AttachMedia("both", "mp4"))
	s.Require().NoError(os.WriteFile(filepath.Join(s.store.MediaDir(), "both.mp4"), []byte("x"), 0o644))

	s.Require().NoError(os.WriteFile(filepath.Join(s.store.MediaDir(), "mediaonly.mp4"), []byte("x"), 0o644))

	// An index entry with no artifacts behind it.
	idx := s.store.SnapshotIndex()
	idx.Videos["ghost"] = crawl.IndexEntry{ItemID: "ghost"}
	s.Require().NoError(s.store.ReplaceIndex(idx))

	// A metadata+media pair the index does not list.
	s.Require().NoError(os.WriteFile(filepath.Join(s.store.MetadataDir(), "unindexed.json"), []byte("{}"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.store.MediaDir(), "unindexed.mp4"), []byte("x"), 0o644))

	report, err := s.engine.Analyze()
	s.Require().NoError(err)

	s.Contains(report.MetadataOnly, "metaonly")
	s.Contains(report.MediaOnly, "mediaonly")
	s.Contains(report.IndexOnly, "ghost")
	s.Contains(report.MissingFromIndex, "unindexed")
	s.NotContains(report.MissingFromIndex, "both")
}

func (s *MaintenanceTestSuite) TestSyncIndexHealsMissingAndStaleEntries() {
	_, err := s.store.PutMetadata(record("both", 10))
	s.Require().NoError(err)
	s.Require().NoError(s.store.AttachMedia("both", "mp4"))
	s.Require().NoError(os.WriteFile(filepath.Join(s.store.MediaDir(), "both.mp4"), []byte("x"), 0o644))

	// Simulate a stale index entry with no backing artifacts.
	idx := s.store.SnapshotIndex()
	idx.Videos["ghost"] = crawl.IndexEntry{ItemID: "ghost"}
	s.Require().NoError(s.store.ReplaceIndex(idx))

	// Simulate a metadata+media pair with no index entry at all, by
	// removing just the index entry for "both" without touching files.
	idx = s.store.SnapshotIndex()
	delete(idx.Videos, "both")
	s.Require().NoError(s.store.ReplaceIndex(idx))

	report, err := s.engine.SyncIndex(false)
	s.Require().NoError(err)
	s.Contains(report.RemovedStale, "ghost")
	s.Contains(report.AddedMissing, "both")

	final := s.store.SnapshotIndex()
	_, hasGhost := final.Videos["ghost"]
	s.False(hasGhost)
	entry, hasBoth := final.Videos["both"]
	s.True(hasBoth)
	s.True(entry.HasMedia)
}

func (s *MaintenanceTestSuite) TestCleanRemovesOnlyTargetedCategories() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.store.MediaDir(), "orphan.mp4"), []byte("x"), 0o644))

	report, err := s.engine.Clean(true, false, false, false)
	s.Require().NoError(err)
	s.Contains(report.RemovedMedia, "orphan")

	_, err = os.Stat(filepath.Join(s.store.MediaDir(), "orphan.mp4"))
	s.True(os.IsNotExist(err))
}

func TestMaintenanceSuite(t *testing.T) {
	suite.Run(t, new(MaintenanceTestSuite))
}
