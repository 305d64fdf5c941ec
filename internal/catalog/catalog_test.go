package catalog_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mediacore/hlsengine/internal/catalog"
	"github.com/mediacore/hlsengine/internal/engineerr"
	"github.com/mediacore/hlsengine/internal/mediacache"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cache := mediacache.New(8, 0)
	cat := catalog.New(db, cache)
	require.NoError(t, cat.Migrate())
	return cat
}

func TestRegisterAndResolve(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	id, err := cat.Register(ctx, catalog.MediaFileRecord{
		Path:       "/media/clip.mp4",
		Container:  "mp4",
		VideoCodec: "h264",
		AudioCodec: "aac",
		SizeBytes:  1024,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	path, container, videoCodec, err := cat.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/media/clip.mp4", path)
	assert.Equal(t, "mp4", container)
	assert.Equal(t, "h264", videoCodec)
}

func TestResolve_NotFound(t *testing.T) {
	cat := newTestCatalog(t)
	_, _, _, err := cat.Resolve(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestResolve_UnsupportedCodec(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	id, err := cat.Register(ctx, catalog.MediaFileRecord{
		Path:       "/media/clip.mkv",
		Container:  "mkv",
		VideoCodec: "h264",
	})
	require.NoError(t, err)

	_, _, _, err = cat.Resolve(ctx, id)
	assert.ErrorIs(t, err, engineerr.ErrUnsupportedCodec)
}

func TestInvalidate_RemovesRowAndCacheEntry(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	cache := mediacache.New(8, 0)
	cat := catalog.New(db, cache)
	require.NoError(t, cat.Migrate())
	ctx := context.Background()

	id, err := cat.Register(ctx, catalog.MediaFileRecord{
		Path: "/media/clip.mp4", Container: "mp4", VideoCodec: "h264",
	})
	require.NoError(t, err)

	_, err = cache.GetOrInsert(ctx, string(id), func(context.Context) (*mediacache.PreparedMedia, error) {
		return &mediacache.PreparedMedia{FilePath: "/media/clip.mp4"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	require.NoError(t, cat.Invalidate(ctx, id))
	assert.Equal(t, 0, cache.Len())

	_, _, _, err = cat.Resolve(ctx, id)
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}
