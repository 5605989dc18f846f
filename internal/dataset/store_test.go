package dataset_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/dataset"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
)

func newStore(t *testing.T) *dataset.Store {
	t.Helper()
	dir := t.TempDir()
	cfg := dataset.Config{
		MetadataDir:       filepath.Join(dir, "metadata"),
		MediaDir:          filepath.Join(dir, "media"),
		IndexFile:         filepath.Join(dir, "metadata", "index.json"),
		UpdateIndexOnSave: true,
	}
	s, err := dataset.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, duration int64) crawl.MetadataRecord {
	return crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{ItemID: id, Title: "t", Duration: duration},
		Owner:     crawl.Owner{UploaderID: "1", UploaderName: "alice"},
	}
}

func TestPutMetadataCreatesThenUpdates(t *testing.T) {
	s := newStore(t)

	result, err := s.PutMetadata(record("BV1", 100))
	require.NoError(t, err)
	assert.Equal(t, crawl.Created, result)

	result, err = s.PutMetadata(record("BV1", 200))
	require.NoError(t, err)
	assert.Equal(t, crawl.Updated, result)

	rec, ok, err := s.Get("BV1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), rec.BasicInfo.Duration)

	snap := s.SnapshotIndex()
	assert.Len(t, snap.Videos, 1)
	assert.Equal(t, 1, snap.Stats.TotalCount)
}

func TestAttachMediaFailsWithoutMetadata(t *testing.T) {
	s := newStore(t)
	err := s.AttachMedia("missing", "mp4")
	assert.Error(t, err)
}

func TestAttachMediaSucceedsAfterMetadata(t *testing.T) {
	s := newStore(t)
	_, err := s.PutMetadata(record("BV1", 100))
	require.NoError(t, err)

	require.NoError(t, s.AttachMedia("BV1", "mp4"))
	assert.True(t, s.HasMedia("BV1"))
	ext, ok := s.MediaExt("BV1")
	assert.True(t, ok)
	assert.Equal(t, "mp4", ext)
}

func TestRemoveReportsMissingArtifacts(t *testing.T) {
	s := newStore(t)
	_, err := s.PutMetadata(record("BV1", 100))
	require.NoError(t, err)

	report, err := s.Remove([]string{"BV1", "missing-item"})
	require.NoError(t, err)
	assert.Contains(t, report.Removed, "BV1")
	assert.Contains(t, report.Missing["BV1"], "media")
	assert.Contains(t, report.Missing["missing-item"], "metadata")
	assert.Contains(t, report.Missing["missing-item"], "index")

	_, ok, err := s.Get("BV1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	cfg := dataset.Config{
		MetadataDir:       filepath.Join(dir, "metadata"),
		MediaDir:          filepath.Join(dir, "media"),
		IndexFile:         filepath.Join(dir, "metadata", "index.json"),
		UpdateIndexOnSave: true,
	}

	s1, err := dataset.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = s1.PutMetadata(record("BV1", 42))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := dataset.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s2.Close()

	snap := s2.SnapshotIndex()
	require.Len(t, snap.Videos, 1)
	assert.Equal(t, int64(42), snap.Videos["BV1"].Duration)
}
