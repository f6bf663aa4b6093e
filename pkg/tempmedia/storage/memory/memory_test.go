package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/medox/temp-media/pkg/tempmedia"
	"github.com/medox/temp-media/pkg/tempmedia/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	err := backend.UploadWithParams(ctx, strings.NewReader("hello"), tempmedia.UploadParams{
		ObjectKey: "temp-media/x/a.png",
		MimeType:  "image/png",
	})
	require.NoError(t, err)

	reader, err := backend.Download(ctx, "temp-media/x/a.png")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	meta, err := backend.GetObjectMeta(ctx, "temp-media/x/a.png")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, "image/png", meta.ContentType)
}

func TestDownloadMissing(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	_, err := backend.Download(ctx, "missing")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)

	_, err = backend.GetObjectMeta(ctx, "missing")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	require.NoError(t, backend.Upload(ctx, "key", strings.NewReader("x")))
	require.NoError(t, backend.Delete(ctx, "key"))

	_, err := backend.Download(ctx, "key")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)

	err = backend.Delete(ctx, "key")
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)
}

func TestURLsUnsupported(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	_, err := backend.GetDownloadURL(ctx, "key", "a.png")
	assert.Error(t, err)

	_, err = backend.GetPreviewURL(ctx, "key")
	assert.Error(t, err)
}
