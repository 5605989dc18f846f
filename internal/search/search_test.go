package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/remote"
	"github.com/vidcrawl/vidcrawl/internal/search"
	"github.com/vidcrawl/vidcrawl/internal/session"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Authenticate(ctx context.Context) (session.Credential, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).(session.Credential)
	return c, args.Error(1)
}
func (m *mockService) VerifySession(ctx context.Context, cred session.Credential) (bool, error) {
	args := m.Called(ctx, cred)
	return args.Bool(0), args.Error(1)
}
func (m *mockService) SearchVideos(ctx context.Context, keyword string, page, pageSize int) (remote.SearchPage, error) {
	args := m.Called(ctx, keyword, page, pageSize)
	sp, _ := args.Get(0).(remote.SearchPage)
	return sp, args.Error(1)
}
func (m *mockService) GetVideoDetail(ctx context.Context, itemID string) (crawl.MetadataRecord, error) {
	args := m.Called(ctx, itemID)
	r, _ := args.Get(0).(crawl.MetadataRecord)
	return r, args.Error(1)
}
func (m *mockService) AvailableQualities(ctx context.Context, itemID string) ([]remote.Quality, error) {
	args := m.Called(ctx, itemID)
	q, _ := args.Get(0).([]remote.Quality)
	return q, args.Error(1)
}
func (m *mockService) GetStreamURLs(ctx context.Context, itemID string, quality int) (remote.StreamURLs, error) {
	args := m.Called(ctx, itemID, quality)
	s, _ := args.Get(0).(remote.StreamURLs)
	return s, args.Error(1)
}

func baseConfig() search.Config {
	return search.Config{
		PageSize:       2,
		MaxPages:       5,
		PageIntervalLo: time.Millisecond,
		PageIntervalHi: 2 * time.Millisecond,
	}
}

func TestSearchDeduplicatesAcrossKeywords(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchVideos", mock.Anything, "foo", 1, 2).
		Return(remote.SearchPage{Candidates: []crawl.Candidate{{ItemID: "A"}, {ItemID: "B"}}, HasMore: false}, nil)
	svc.On("SearchVideos", mock.Anything, "bar", 1, 2).
		Return(remote.SearchPage{Candidates: []crawl.Candidate{{ItemID: "A"}, {ItemID: "C"}}, HasMore: false}, nil)

	eng := search.New(svc, baseConfig(), zap.NewNop())

	var seen []string
	emit := func(c crawl.Candidate) error { seen = append(seen, c.ItemID); return nil }

	require.NoError(t, eng.Search(context.Background(), "foo", 0, emit))
	require.NoError(t, eng.Search(context.Background(), "bar", 0, emit))

	assert.Equal(t, []string{"A", "B", "C"}, seen)
}

func TestSearchStopsAtLimit(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchVideos", mock.Anything, "foo", 1, 2).
		Return(remote.SearchPage{Candidates: []crawl.Candidate{{ItemID: "A"}, {ItemID: "B"}}, HasMore: true}, nil)

	eng := search.New(svc, baseConfig(), zap.NewNop())
	var count int
	err := eng.Search(context.Background(), "foo", 1, func(c crawl.Candidate) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSearchFiltersByDurationAndTitle(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchVideos", mock.Anything, "foo", 1, 2).
		Return(remote.SearchPage{Candidates: []crawl.Candidate{
			{ItemID: "A", Duration: 10, Title: "cats are great"},
			{ItemID: "B", Duration: 999, Title: "cats are great"},
			{ItemID: "C", Duration: 10, Title: "dogs are great"},
		}}, nil)

	cfg := baseConfig()
	cfg.MaxDuration = 100
	cfg.KeywordFilters = []string{"cats"}
	eng := search.New(svc, cfg, zap.NewNop())

	var seen []string
	require.NoError(t, eng.Search(context.Background(), "foo", 0, func(c crawl.Candidate) error {
		seen = append(seen, c.ItemID)
		return nil
	}))
	assert.Equal(t, []string{"A"}, seen)
}

func TestSearchSkipsFailedPageButContinues(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchVideos", mock.Anything, "foo", 1, 2).
		Return(remote.SearchPage{}, errors.New("boom"))
	svc.On("SearchVideos", mock.Anything, "foo", 2, 2).
		Return(remote.SearchPage{Candidates: []crawl.Candidate{{ItemID: "A"}}}, nil)

	cfg := baseConfig()
	cfg.MaxPages = 2
	eng := search.New(svc, cfg, zap.NewNop())

	var seen []string
	err := eng.Search(context.Background(), "foo", 0, func(c crawl.Candidate) error {
		seen = append(seen, c.ItemID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, seen)
}

func TestSearchAllPagesFailedSurfacesSearchFailed(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchVideos", mock.Anything, "foo", mock.Anything, 2).
		Return(remote.SearchPage{}, errors.New("boom"))

	cfg := baseConfig()
	cfg.MaxPages = 3
	eng := search.New(svc, cfg, zap.NewNop())

	err := eng.Search(context.Background(), "foo", 0, func(c crawl.Candidate) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSearchFailed, apperrors.KindOf(err))
}
