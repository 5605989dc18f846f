package apperrors_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
)

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := apperrors.RateLimited(2 * time.Second)
	ae, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRateLimited, ae.Kind)
	assert.Equal(t, 2*time.Second, ae.RetryAfter)
}

func TestWithItemTagsExisting(t *testing.T) {
	base := apperrors.New(apperrors.KindTransient, "boom")
	tagged := apperrors.WithItem(base, "BV123")

	ae, ok := apperrors.AsAppError(tagged)
	require.True(t, ok)
	assert.Equal(t, "BV123", ae.ItemID)
	assert.Contains(t, tagged.Error(), "BV123")
}

func TestWithItemPassesThroughPlainErrors(t *testing.T) {
	plain := errors.New("not an app error")
	assert.Equal(t, plain, apperrors.WithItem(plain, "BV123"))
}

func TestIsAndKindOf(t *testing.T) {
	err := apperrors.New(apperrors.KindDiskFull, "no space")
	assert.True(t, apperrors.Is(err, apperrors.KindDiskFull))
	assert.False(t, apperrors.Is(err, apperrors.KindTransient))
	assert.Equal(t, apperrors.KindDiskFull, apperrors.KindOf(err))
	assert.Equal(t, apperrors.Kind(""), apperrors.KindOf(errors.New("plain")))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := apperrors.Wrap(apperrors.KindTransient, "download failed", cause)
	assert.ErrorIs(t, err, cause)
}
