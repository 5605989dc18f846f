package orchestrator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/orchestrator"
)

type fakeSearch struct {
	byKeyword map[string][]crawl.Candidate
	failFor   map[string]bool
}

func (f *fakeSearch) Search(ctx context.Context, keyword string, limit int, emit func(crawl.Candidate) error) error {
	if f.failFor[keyword] {
		return apperrors.SearchFailed(keyword, nil)
	}
	for _, c := range f.byKeyword[keyword] {
		if err := emit(c); err != nil {
			return err
		}
	}
	return nil
}

type fakeCollector struct {
	mu      sync.Mutex
	failIDs map[string]bool
	calls   []string
}

func (f *fakeCollector) Collect(ctx context.Context, itemID string) (crawl.MetadataRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, itemID)
	f.mu.Unlock()
	if f.failIDs[itemID] {
		return crawl.MetadataRecord{}, apperrors.New(apperrors.KindRemoteError, "detail fetch failed")
	}
	return crawl.MetadataRecord{BasicInfo: crawl.BasicInfo{ItemID: itemID}}, nil
}

type fakeDownloader struct {
	mu      sync.Mutex
	skipIDs map[string]bool
	calls   []string
}

func (f *fakeDownloader) Download(ctx context.Context, itemID string) (orchestrator.DownloadResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, itemID)
	f.mu.Unlock()
	if f.skipIDs[itemID] {
		return orchestrator.DownloadResult{Skipped: true}, nil
	}
	return orchestrator.DownloadResult{}, nil
}

type fakeStore struct{ hasMedia map[string]bool }

func (f *fakeStore) HasMedia(itemID string) bool { return f.hasMedia[itemID] }

func candidates(ids ...string) []crawl.Candidate {
	out := make([]crawl.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, crawl.Candidate{ItemID: id, Keyword: "kw"})
	}
	return out
}

func TestRunHappyPathCommitsEverything(t *testing.T) {
	search := &fakeSearch{byKeyword: map[string][]crawl.Candidate{"kw": candidates("A", "B", "C")}}
	collector := &fakeCollector{failIDs: map[string]bool{}}
	downloader := &fakeDownloader{skipIDs: map[string]bool{}}
	store := &fakeStore{hasMedia: map[string]bool{}}

	o := orchestrator.New(orchestrator.Config{MetadataWorkers: 2, ConcurrentLimit: 2}, search, collector, downloader, store, zap.NewNop())

	report, err := o.Run(context.Background(), []string{"kw"})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.KeywordsProcessed)
	assert.Equal(t, 3, report.CandidatesSeen)
	assert.Equal(t, 3, report.MetadataCommitted)
	assert.Equal(t, 3, report.DownloadsCommitted)
	assert.Equal(t, 3, report.PerKeyword["kw"].DownloadsCommitted)
}

func TestRunResumeSkipsAlreadyPresentItems(t *testing.T) {
	search := &fakeSearch{byKeyword: map[string][]crawl.Candidate{"kw": candidates("A", "B")}}
	collector := &fakeCollector{failIDs: map[string]bool{}}
	downloader := &fakeDownloader{skipIDs: map[string]bool{}}
	store := &fakeStore{hasMedia: map[string]bool{"A": true}}

	o := orchestrator.New(orchestrator.Config{MetadataWorkers: 1, ConcurrentLimit: 1, Resume: true}, search, collector, downloader, store, zap.NewNop())

	report, err := o.Run(context.Background(), []string{"kw"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.MetadataCommitted)
	assert.Equal(t, 1, report.DownloadsCommitted)
	assert.NotContains(t, collector.calls, "A")
}

func TestRunRecordsSearchFailedWithoutAbortingRun(t *testing.T) {
	search := &fakeSearch{
		byKeyword: map[string][]crawl.Candidate{"good": candidates("A")},
		failFor:   map[string]bool{"bad": true},
	}
	collector := &fakeCollector{failIDs: map[string]bool{}}
	downloader := &fakeDownloader{skipIDs: map[string]bool{}}
	store := &fakeStore{hasMedia: map[string]bool{}}

	o := orchestrator.New(orchestrator.Config{MetadataWorkers: 1, ConcurrentLimit: 1}, search, collector, downloader, store, zap.NewNop())

	report, err := o.Run(context.Background(), []string{"bad", "good"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.ErrorsByKind[apperrors.KindSearchFailed])
	assert.Equal(t, 1, report.MetadataCommitted)
}

func TestRunSkippedDownloadCountsTowardDurationSkip(t *testing.T) {
	search := &fakeSearch{byKeyword: map[string][]crawl.Candidate{"kw": candidates("A")}}
	collector := &fakeCollector{failIDs: map[string]bool{}}
	downloader := &fakeDownloader{skipIDs: map[string]bool{"A": true}}
	store := &fakeStore{hasMedia: map[string]bool{}}

	o := orchestrator.New(orchestrator.Config{MetadataWorkers: 1, ConcurrentLimit: 1}, search, collector, downloader, store, zap.NewNop())

	report, err := o.Run(context.Background(), []string{"kw"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.DownloadsSkippedByDuration)
	assert.Equal(t, 0, report.DownloadsCommitted)
}
