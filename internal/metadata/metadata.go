// Package metadata implements the metadata collector (C4, §4.4):
// fetching and normalizing per-item detail records and delegating
// their persistence to the dataset store.
package metadata

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/remote"
)

// Persister is the slice of the dataset store's contract the
// collector needs (§4.6's put_metadata). Kept as a narrow interface so
// this package does not depend on the rest of internal/dataset.
type Persister interface {
	PutMetadata(record crawl.MetadataRecord) (crawl.CommitResult, error)
}

// Collector implements §4.4's collect(item_id) → MetadataRecord.
type Collector struct {
	svc    remote.Service
	store  Persister
	logger *zap.Logger
}

// New builds a Collector.
func New(svc remote.Service, store Persister, logger *zap.Logger) *Collector {
	return &Collector{svc: svc, store: store, logger: logger.Named("metadata")}
}

// Collect fetches, normalizes, validates, and persists the detail
// record for itemID. Calling Collect twice for the same ItemID
// overwrites the metadata file and updates its index entry in a
// single logical commit (§4.4 idempotence, §4.6).
func (c *Collector) Collect(ctx context.Context, itemID string) (crawl.MetadataRecord, error) {
	rec, err := c.svc.GetVideoDetail(ctx, itemID)
	if err != nil {
		return crawl.MetadataRecord{}, apperrors.WithItem(err, itemID)
	}

	normalize(&rec)

	if err := validate(rec); err != nil {
		return crawl.MetadataRecord{}, apperrors.WithItem(
			apperrors.Wrap(apperrors.KindRemoteError, "invalid metadata record", err), itemID)
	}

	result, err := c.store.PutMetadata(rec)
	if err != nil {
		return crawl.MetadataRecord{}, apperrors.WithItem(err, itemID)
	}

	c.logger.Debug("collected metadata", zap.String("item_id", itemID), zap.Stringer("result", result))
	return rec, nil
}

// normalize clamps numeric fields to non-negative and trims string
// fields, per §4.4.
func normalize(r *crawl.MetadataRecord) {
	r.BasicInfo.ItemID = strings.TrimSpace(r.BasicInfo.ItemID)
	r.BasicInfo.Title = strings.TrimSpace(r.BasicInfo.Title)
	r.BasicInfo.Description = strings.TrimSpace(r.BasicInfo.Description)
	r.BasicInfo.Duration = clampNonNegative(r.BasicInfo.Duration)

	r.Owner.UploaderID = strings.TrimSpace(r.Owner.UploaderID)
	r.Owner.UploaderName = strings.TrimSpace(r.Owner.UploaderName)

	r.Stats.PlayCount = clampNonNegative(r.Stats.PlayCount)
	r.Stats.LikeCount = clampNonNegative(r.Stats.LikeCount)
	r.Stats.CoinCount = clampNonNegative(r.Stats.CoinCount)
	r.Stats.FavoriteCount = clampNonNegative(r.Stats.FavoriteCount)
	r.Stats.CommentCount = clampNonNegative(r.Stats.CommentCount)
	r.Stats.ShareCount = clampNonNegative(r.Stats.ShareCount)

	for i := range r.Pages {
		r.Pages[i].Title = strings.TrimSpace(r.Pages[i].Title)
		r.Pages[i].Duration = clampNonNegative(r.Pages[i].Duration)
	}
	for i := range r.Tags {
		r.Tags[i] = strings.TrimSpace(r.Tags[i])
	}

	r.CrawlInfo.SchemaVersion = crawl.SchemaVersion
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// validate checks the required fields §4.4 names: item_id, title,
// duration, owner identifier.
func validate(r crawl.MetadataRecord) error {
	if r.BasicInfo.ItemID == "" {
		return errRequired("item_id")
	}
	if r.BasicInfo.Title == "" {
		return errRequired("title")
	}
	if r.BasicInfo.Duration <= 0 {
		return errRequired("duration")
	}
	if r.Owner.UploaderID == "" {
		return errRequired("owner identifier")
	}
	return nil
}

type missingFieldError struct{ field string }

func (e missingFieldError) Error() string { return "missing required field: " + e.field }

func errRequired(field string) error { return missingFieldError{field: field} }
