// Package remote defines the contract the core requires from the
// remote video service (§6). The core only depends on this interface;
// internal/remote/bilivideo is the one concrete adapter needed to run
// the module end-to-end, grounded on the wire shapes observed in
// original_source/bilibili_sensitive_crawler.
package remote

import (
	"context"
	"time"

	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/session"
)

// SearchPage is one page of search results (§6 "Search videos").
type SearchPage struct {
	Candidates []crawl.Candidate
	HasMore    bool
}

// StreamURLs is the result of resolving a quality code to playable
// URLs (§6 "Get stream URLs").
type StreamURLs struct {
	VideoURL   string
	AudioURL   string
	ByteLength int64 // 0 if the server did not advertise one
	Quality    int
}

// Quality describes one available stream quality for an item, as
// returned by quality resolution ahead of StreamURLs (§4.5 "Quality
// selection").
type Quality struct {
	Code int
	Name string
}

// Service is the §6 remote service contract. Components depend only
// on this interface, never on a concrete adapter.
type Service interface {
	// Authenticate performs interactive login, an out-of-band
	// capability delegated to the outer system (§1).
	Authenticate(ctx context.Context) (session.Credential, error)
	// VerifySession issues a lightweight authenticated probe.
	VerifySession(ctx context.Context, cred session.Credential) (bool, error)

	// SearchVideos fetches one page of keyword results.
	SearchVideos(ctx context.Context, keyword string, page, pageSize int) (SearchPage, error)

	// GetVideoDetail fetches the full per-item record.
	GetVideoDetail(ctx context.Context, itemID string) (crawl.MetadataRecord, error)

	// AvailableQualities lists the stream qualities on offer for an
	// item, highest first.
	AvailableQualities(ctx context.Context, itemID string) ([]Quality, error)

	// GetStreamURLs resolves a quality code to downloadable URLs.
	GetStreamURLs(ctx context.Context, itemID string, quality int) (StreamURLs, error)
}

// DownloadTimeout is a time budget for a single byte-range GET issued
// against a resolved stream URL. It is not part of the Service
// interface: byte transfer is done by internal/download's
// StreamFetcher outside both the adapter and internal/transport, and
// that fetcher does not apply this value (its client has no timeout).
const DownloadTimeout = 2 * time.Minute
