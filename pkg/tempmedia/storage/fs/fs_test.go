package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medox/temp-media/pkg/tempmedia"
	"github.com/medox/temp-media/pkg/tempmedia/storage/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, urlPrefix string) (*fs.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: dir, URLPrefix: urlPrefix})
	require.NoError(t, err)
	return backend, dir
}

func TestNew(t *testing.T) {
	t.Run("base dir is required", func(t *testing.T) {
		_, err := fs.New(fs.Config{})
		assert.Error(t, err)
	})

	t.Run("base dir is created", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "storage")
		_, err := fs.New(fs.Config{BaseDir: dir})
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, dir := newBackend(t, "")

	err := backend.UploadWithParams(ctx, strings.NewReader("content"), tempmedia.UploadParams{
		ObjectKey: "temp-media/abc/photo.png",
		MimeType:  "image/png",
	})
	require.NoError(t, err)

	// The key maps to a nested path under the base dir.
	_, err = os.Stat(filepath.Join(dir, "temp-media", "abc", "photo.png"))
	require.NoError(t, err)

	reader, err := backend.Download(ctx, "temp-media/abc/photo.png")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestDownloadMissing(t *testing.T) {
	ctx := context.Background()
	backend, _ := newBackend(t, "")

	_, err := backend.Download(ctx, "nope")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)
}

func TestDeleteCleansEmptyDirectories(t *testing.T) {
	ctx := context.Background()
	backend, dir := newBackend(t, "")

	require.NoError(t, backend.Upload(ctx, "temp-media/abc/photo.png", strings.NewReader("x")))
	require.NoError(t, backend.Delete(ctx, "temp-media/abc/photo.png"))

	// The now-empty record directory is removed along with the file.
	_, err := os.Stat(filepath.Join(dir, "temp-media", "abc"))
	assert.True(t, os.IsNotExist(err))

	// The base dir itself survives.
	_, err = os.Stat(dir)
	assert.NoError(t, err)

	err = backend.Delete(ctx, "temp-media/abc/photo.png")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)
}

func TestGetObjectMeta(t *testing.T) {
	ctx := context.Background()
	backend, _ := newBackend(t, "")

	pngHeader := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)
	require.NoError(t, backend.Upload(ctx, "a/photo.png", strings.NewReader(pngHeader)))

	meta, err := backend.GetObjectMeta(ctx, "a/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "a/photo.png", meta.Key)
	assert.Equal(t, int64(len(pngHeader)), meta.Size)
	assert.Equal(t, "image/png", meta.ContentType)

	_, err = backend.GetObjectMeta(ctx, "missing")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)
}

func TestURLs(t *testing.T) {
	ctx := context.Background()

	t.Run("without prefix URLs are unavailable", func(t *testing.T) {
		backend, _ := newBackend(t, "")

		_, err := backend.GetDownloadURL(ctx, "key", "a.png")
		assert.Error(t, err)

		_, err = backend.GetPreviewURL(ctx, "key")
		assert.Error(t, err)
	})

	t.Run("with prefix URLs are derived from the key", func(t *testing.T) {
		backend, _ := newBackend(t, "http://localhost:8080/files")

		url, err := backend.GetDownloadURL(ctx, "temp-media/x/a.png", "photo a.png")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/files/download/temp-media/x/a.png?filename=photo+a.png", url)

		url, err = backend.GetPreviewURL(ctx, "temp-media/x/a.png")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/files/preview/temp-media/x/a.png", url)
	})
}
