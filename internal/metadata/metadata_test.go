package metadata_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/domain/crawl"
	"github.com/vidcrawl/vidcrawl/internal/metadata"
	"github.com/vidcrawl/vidcrawl/internal/remote"
	"github.com/vidcrawl/vidcrawl/internal/session"
)

type mockService struct{ mock.Mock }

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

type mockPersister struct{ mock.Mock }

func (m *mockPersister) PutMetadata(record crawl.MetadataRecord) (crawl.CommitResult, error) {
	args := m.Called(record)
	r, _ := args.Get(0).(crawl.CommitResult)
	return r, args.Error(1)
}

func TestCollectRejectsDurationClampedToZero(t *testing.T) {
	svc := new(mockService)
	svc.On("GetVideoDetail", mock.Anything, "BV1").Return(crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{ItemID: " BV1 ", Title: " title ", Duration: -5},
		Owner:     crawl.Owner{UploaderID: "1", UploaderName: " alice "},
		Stats:     crawl.Stats{LikeCount: -1},
	}, nil)

	store := new(mockPersister)
	store.On("PutMetadata", mock.Anything).Return(crawl.Created, nil)

	c := metadata.New(svc, store, zap.NewNop())
	_, err := c.Collect(context.Background(), "BV1")
	require.Error(t, err) // duration <= 0 after clamp fails required-field validation
	store.AssertNotCalled(t, "PutMetadata", mock.Anything)
}

func TestCollectSuccessPersists(t *testing.T) {
	svc := new(mockService)
	svc.On("GetVideoDetail", mock.Anything, "BV1").Return(crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{ItemID: " BV1 ", Title: " title ", Duration: 42},
		Owner:     crawl.Owner{UploaderID: "1", UploaderName: " alice "},
	}, nil)

	store := new(mockPersister)
	store.On("PutMetadata", mock.MatchedBy(func(r crawl.MetadataRecord) bool {
		return r.BasicInfo.ItemID == "BV1" && r.BasicInfo.Title == "title" && r.Owner.UploaderName == "alice"
	})).Return(crawl.Created, nil)

	c := metadata.New(svc, store, zap.NewNop())
	rec, err := c.Collect(context.Background(), "BV1")
	require.NoError(t, err)
	assert.Equal(t, "BV1", rec.BasicInfo.ItemID)
	store.AssertExpectations(t)
}

func TestCollectRejectsMissingOwner(t *testing.T) {
	svc := new(mockService)
	svc.On("GetVideoDetail", mock.Anything, "BV1").Return(crawl.MetadataRecord{
		BasicInfo: crawl.BasicInfo{ItemID: "BV1", Title: "t", Duration: 10},
	}, nil)
	store := new(mockPersister)

	c := metadata.New(svc, store, zap.NewNop())
	_, err := c.Collect(context.Background(), "BV1")
	assert.Error(t, err)
	store.AssertNotCalled(t, "PutMetadata", mock.Anything)
}
