package crawl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
)

func TestFromMetadataProjectsFields(t *testing.T) {
	rec := crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{ItemID: "BV1", Title: "t", Duration: 120},
		Owner:     crawl.Owner{UploaderName: "alice"},
		Stats:     crawl.Stats{PlayCount: 10, LikeCount: 2},
		Tags:      []string{"a", "b"},
	}
	entry := crawl.FromMetadata(rec)
	assert.Equal(t, "BV1", entry.ItemID)
	assert.Equal(t, int64(120), entry.Duration)
	assert.Equal(t, "alice", entry.UploaderName)
	assert.Equal(t, []string{"a", "b"}, entry.Tags)
}

func TestRecomputeMatchesInvariant(t *testing.T) {
	doc := crawl.NewIndexDocument()
	doc.Videos["a"] = crawl.IndexEntry{ItemID: "a", Duration: 10}
	doc.Videos["b"] = crawl.IndexEntry{ItemID: "b", Duration: 20}

	now := time.Unix(1000, 0).UTC()
	doc.Recompute(now)

	assert.Equal(t, 2, doc.Stats.TotalCount)
	assert.Equal(t, int64(30), doc.Stats.TotalDuration)
	assert.Equal(t, now, doc.Stats.LastUpdated)
}
