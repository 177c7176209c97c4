package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreUploadDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://cdn.test/blobs/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Upload(ctx, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://cdn.test/blobs/"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))

	name := strings.TrimPrefix(url, "http://cdn.test/blobs/")
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, s.Delete(ctx, url))
	require.NoError(t, s.Delete(ctx, url), "delete is idempotent")
	assert.Error(t, s.Delete(ctx, "http://elsewhere/x.jpg"))
	assert.Error(t, s.Delete(ctx, "http://cdn.test/blobs/../etc/passwd"))
}

type failingStore struct{ calls int }

func (f *failingStore) Upload(context.Context, []byte, string) (string, error) {
	f.calls++
	return "", errors.New("boom")
}

func (f *failingStore) Delete(context.Context, string) error { return nil }

func TestBreakerOpensAndMapsToUploadError(t *testing.T) {
	inner := &failingStore{}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	b := NewBreaker(inner, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Upload(ctx, []byte("x"), "image/png")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Upload(ctx, []byte("x"), "image/png")
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, 2, inner.calls, "open breaker short-circuits calls")
}
