// Package crawl holds the typed structures shared across every
// component: the in-memory Candidate produced by search, the persisted
// MetadataRecord, and the IndexDocument that the dataset store owns.
// None of these types carry behavior beyond simple projections; the
// components that own them (search, metadata, dataset) are where the
// operations in spec live.
package crawl

import "time"

// Candidate is produced by the search engine and lives in memory only
// (§3). It is either dropped by a filter or promoted to metadata
// collection.
type Candidate struct {
	ItemID       string
	Title        string
	Duration     int64 // seconds
	PublishTime  time.Time
	UploaderID   string
	UploaderName string
	PlayCount    int64
	LikeCount    int64
	Keyword      string
}

// BasicInfo holds the identifying and descriptive fields of a
// MetadataRecord.
type BasicInfo struct {
	ItemID      string    `json:"item_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int64     `json:"duration"`
	PublishTime time.Time `json:"publish_time"`
	CoverURL    string    `json:"cover_url"`
}

// Stats holds the engagement counters attached to a MetadataRecord.
type Stats struct {
	PlayCount     int64 `json:"play_count"`
	LikeCount     int64 `json:"like_count"`
	CoinCount     int64 `json:"coin_count"`
	FavoriteCount int64 `json:"favorite_count"`
	CommentCount  int64 `json:"comment_count"`
	ShareCount    int64 `json:"share_count"`
}

// Owner holds the uploader identifiers and display fields.
type Owner struct {
	UploaderID   string `json:"uploader_id"`
	UploaderName string `json:"uploader_name"`
}

// Page is one segment of a multi-segment item.
type Page struct {
	PageID   int64  `json:"page_id"`
	Title    string `json:"title"`
	Duration int64  `json:"duration"`
}

// CrawlInfo records when and with what schema version a MetadataRecord
// was written.
type CrawlInfo struct {
	CrawledAt     time.Time `json:"crawled_at"`
	SchemaVersion int       `json:"schema_version"`
}

// SchemaVersion is the current MetadataRecord schema version stamped
// into every record's CrawlInfo.
const SchemaVersion = 1

// MetadataRecord is the persisted, per-item detail document produced by
// the metadata collector (§3, §4.4).
type MetadataRecord struct {
	BasicInfo BasicInfo `json:"basic_info"`
	Stats     Stats     `json:"stats"`
	Owner     Owner     `json:"owner"`
	Pages     []Page    `json:"pages"`
	Tags      []string  `json:"tags"`
	CrawlInfo CrawlInfo `json:"crawl_info"`
}

// IndexEntry is a projection of MetadataRecord retained in the index
// document (§3).
type IndexEntry struct {
	ItemID       string    `json:"item_id"`
	Title        string    `json:"title"`
	Duration     int64     `json:"duration"`
	PublishTime  time.Time `json:"publish_time"`
	UploaderName string    `json:"uploader_name"`
	PlayCount    int64     `json:"play_count"`
	LikeCount    int64     `json:"like_count"`
	Tags         []string  `json:"tags"`
	HasMedia     bool      `json:"has_media"`
	MediaExt     string    `json:"media_ext,omitempty"`
}

// FromMetadata builds the index projection of a MetadataRecord, per §3
// "IndexEntry is a projection of MetadataRecord retaining the fields
// listed in configuration (at minimum...)".
func FromMetadata(r MetadataRecord) IndexEntry {
	return IndexEntry{
		ItemID:       r.BasicInfo.ItemID,
		Title:        r.BasicInfo.Title,
		Duration:     r.BasicInfo.Duration,
		PublishTime:  r.BasicInfo.PublishTime,
		UploaderName: r.Owner.UploaderName,
		PlayCount:    r.Stats.PlayCount,
		LikeCount:    r.Stats.LikeCount,
		Tags:         r.Tags,
	}
}

// IndexStats is the aggregate block of the index document (§3).
type IndexStats struct {
	TotalCount    int       `json:"total_count"`
	TotalDuration int64     `json:"total_duration"`
	LastUpdated   time.Time `json:"last_updated"`
}

// IndexDocument is the one process-wide document describing the
// dataset (§3, §6).
type IndexDocument struct {
	Videos map[string]IndexEntry `json:"videos"`
	Stats  IndexStats            `json:"stats"`
}

// NewIndexDocument returns an empty, well-formed IndexDocument.
func NewIndexDocument() IndexDocument {
	return IndexDocument{Videos: make(map[string]IndexEntry)}
}

// Recompute recalculates Stats from Videos, enforcing invariant 3 of
// §3 ("stats.total_count == |videos| and stats.total_duration == sum
// of durations in videos immediately after any index write").
func (d *IndexDocument) Recompute(now time.Time) {
	var total int64
	for _, e := range d.Videos {
		total += e.Duration
	}
	d.Stats = IndexStats{
		TotalCount:    len(d.Videos),
		TotalDuration: total,
		LastUpdated:   now,
	}
}

// CommitResult reports whether a put_metadata call created a new
// record or overwrote an existing one (§4.6).
type CommitResult int

const (
	Created CommitResult = iota
	Updated
)

func (r CommitResult) String() string {
	if r == Created {
		return "Created"
	}
	return "Updated"
}
