// Package search implements the search engine (C3, §4.3): paginated
// keyword search with de-duplication, filtering, and an optional
// quality-score gate.
package search

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/remote"
)

// QualityWeights parameterizes the optional weighted quality score
// filter of §4.3, kept off by default per spec.md §9's Open Question.
type QualityWeights struct {
	Like     float64
	Coin     float64
	Favorite float64
}

// EngagementFilter is the supplemented raw engagement filter from
// original_source/bilibili_sensitive_crawler/utils/video_filter.py's
// quality_threshold triple — a simpler alternative to the weighted
// quality score, independently switchable.
type EngagementFilter struct {
	MinViews      int64
	MinLikes      int64
	ViewLikeRatio float64
}

// Config holds every filtering/pagination knob §4.3 and §6 name.
type Config struct {
	PageSize        int
	MaxPages        int
	PageIntervalLo  time.Duration
	PageIntervalHi  time.Duration
	MinViewCount    int64
	MinPubdate      time.Time
	MaxPubdate      time.Time
	MinDuration     int64
	MaxDuration     int64
	KeywordFilters  []string
	KeywordExcludes []string

	QualityThreshold float64 // 0 disables the weighted quality score
	QualityWeights   QualityWeights

	Engagement *EngagementFilter // nil disables the raw engagement filter
}

// Engine translates keywords into a de-duplicated stream of
// Candidates (§4.3). A single Engine instance de-duplicates across
// every keyword passed to Search in its lifetime, matching "maintains
// a set of seen ItemIDs across all keywords in one invocation" where
// "one invocation" is one Engine's lifetime (i.e. one orchestrator
// run).
type Engine struct {
	svc    remote.Service
	cfg    Config
	logger *zap.Logger

	seen map[string]bool
	rng  *rand.Rand
}

// New builds a search Engine.
func New(svc remote.Service, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		svc:    svc,
		cfg:    cfg,
		logger: logger.Named("search"),
		seen:   make(map[string]bool),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// pageSleep returns a duration sampled uniformly from
// [PageIntervalLo, PageIntervalHi], per §4.3 "Between pages, sleeps
// for a duration sampled uniformly from page_interval".
func (e *Engine) pageSleep() time.Duration {
	lo, hi := e.cfg.PageIntervalLo, e.cfg.PageIntervalHi
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int63n(int64(hi-lo)))
}

// Search implements §4.3's search(keyword, limit) → sequence<Candidate>.
// emit is called once per accepted Candidate, in remote-return order,
// interleaved across pages; returning an error from emit aborts the
// search (used by the orchestrator to propagate cancellation/
// backpressure).
func (e *Engine) Search(ctx context.Context, keyword string, limit int, emit func(crawl.Candidate) error) error {
	accepted := 0
	maxPages := e.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var pagesFailed, pagesTried int

	for page := 1; page <= maxPages; page++ {
		if limit > 0 && accepted >= limit {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sp, err := e.svc.SearchVideos(ctx, keyword, page, e.cfg.PageSize)
		pagesTried++
		if err != nil {
			pagesFailed++
			e.logger.Warn("search page failed, skipping",
				zap.String("keyword", keyword), zap.Int("page", page), zap.Error(err))
			continue // a page failure does not abort the whole keyword (§4.3)
		}

		for _, cand := range sp.Candidates {
			if limit > 0 && accepted >= limit {
				break
			}
			if !e.accept(cand) {
				continue
			}
			if err := emit(cand); err != nil {
				return err
			}
			accepted++
		}

		if !sp.HasMore || len(sp.Candidates) < e.cfg.PageSize {
			break
		}

		select {
		case <-time.After(e.pageSleep()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if pagesTried > 0 && pagesFailed == pagesTried {
		return apperrors.SearchFailed(keyword, nil)
	}
	return nil
}

// accept applies de-duplication and every filter of §4.3.
func (e *Engine) accept(c crawl.Candidate) bool {
	if e.seen[c.ItemID] {
		return false
	}

	if e.cfg.MinDuration > 0 && c.Duration < e.cfg.MinDuration {
		return false
	}
	if e.cfg.MaxDuration > 0 && c.Duration > e.cfg.MaxDuration {
		return false
	}
	if c.PlayCount < e.cfg.MinViewCount {
		return false
	}
	if !e.cfg.MinPubdate.IsZero() && c.PublishTime.Before(e.cfg.MinPubdate) {
		return false
	}
	if !e.cfg.MaxPubdate.IsZero() && c.PublishTime.After(e.cfg.MaxPubdate) {
		return false
	}
	if !titleMatches(c.Title, e.cfg.KeywordFilters, e.cfg.KeywordExcludes) {
		return false
	}
	if e.cfg.QualityThreshold > 0 && !e.passesQualityScore(c) {
		return false
	}
	if e.cfg.Engagement != nil && !e.passesEngagement(c) {
		return false
	}

	e.seen[c.ItemID] = true
	return true
}

func titleMatches(title string, includes, excludes []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range includes {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	for _, kw := range excludes {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// passesQualityScore computes the weighted sum normalized by
// play_count (§4.3). Candidate (§3) carries only like_count among the
// engagement counters the original weighted formula also wants (coin,
// favorite); those terms are 0 here since they are not part of the
// search result shape — only the per-item detail call exposes them.
// This is an approximation of the original formula scoped to what
// Search actually has on hand before any detail fetch.
func (e *Engine) passesQualityScore(c crawl.Candidate) bool {
	if c.PlayCount <= 0 {
		return false
	}
	score := e.cfg.QualityWeights.Like * float64(c.LikeCount) / float64(c.PlayCount)
	return score >= e.cfg.QualityThreshold
}

func (e *Engine) passesEngagement(c crawl.Candidate) bool {
	f := e.cfg.Engagement
	if c.PlayCount < f.MinViews {
		return false
	}
	if c.LikeCount < f.MinLikes {
		return false
	}
	if f.ViewLikeRatio > 0 && c.PlayCount > 0 {
		ratio := float64(c.LikeCount) / float64(c.PlayCount)
		if ratio < f.ViewLikeRatio {
			return false
		}
	}
	return true
}
