package tempmedia_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medox/temp-media/pkg/tempmedia"
	"github.com/medox/temp-media/pkg/tempmedia/repo/memory"
	memorystorage "github.com/medox/temp-media/pkg/tempmedia/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOwner struct {
	ownerType string
	ownerKey  string
}

func (o testOwner) MediaOwnerType() string { return o.ownerType }
func (o testOwner) MediaOwnerKey() string  { return o.ownerKey }

func setupTransferService(t *testing.T) (tempmedia.Service, tempmedia.TransferService, *memory.Repository, *memorystorage.Backend, *testClock) {
	repo := memory.New()
	store := memorystorage.New()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	lifecycle, err := tempmedia.New(
		tempmedia.WithRepository(repo),
		tempmedia.WithBlobStore(store),
		tempmedia.WithClock(clock.Now),
	)
	require.NoError(t, err)

	transfers, err := tempmedia.NewTransferService(lifecycle, repo, store,
		tempmedia.WithTransferClock(clock.Now))
	require.NoError(t, err)

	return lifecycle, transfers, repo, store, clock
}

func TestTransferServiceCreation(t *testing.T) {
	repo := memory.New()
	store := memorystorage.New()

	lifecycle, err := tempmedia.New(
		tempmedia.WithRepository(repo),
		tempmedia.WithBlobStore(store),
	)
	require.NoError(t, err)

	t.Run("missing dependencies fail", func(t *testing.T) {
		_, err := tempmedia.NewTransferService(nil, repo, store)
		assert.Error(t, err)

		_, err = tempmedia.NewTransferService(lifecycle, nil, store)
		assert.Error(t, err)

		_, err = tempmedia.NewTransferService(lifecycle, repo, nil)
		assert.Error(t, err)
	})

	t.Run("complete dependencies succeed", func(t *testing.T) {
		transfers, err := tempmedia.NewTransferService(lifecycle, repo, store)
		assert.NoError(t, err)
		assert.NotNil(t, transfers)
	})
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	owner := testOwner{ownerType: "product", ownerKey: "product-42"}

	t.Run("successful batch transfer", func(t *testing.T) {
		lifecycle, transfers, repo, store, _ := setupTransferService(t)
		a := uploadFixture(t, lifecycle, "a.png", "aaa")
		b := uploadFixture(t, lifecycle, "b.png", "bbbb")

		orderA, orderB := 1, 2
		result, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{
				{TempMediaID: a.ID, Order: &orderA},
				{TempMediaID: b.ID, Order: &orderB},
			},
			CollectionName:   "gallery",
			CustomProperties: map[string]interface{}{"source": "upload"},
		})
		require.NoError(t, err)

		assert.True(t, result.IsFullySuccessful())
		assert.Equal(t, 2, result.TransferredCount)
		assert.Equal(t, 0, result.FailedCount)
		assert.Equal(t, "product", result.TargetOwnerType)
		assert.Equal(t, "product-42", result.TargetOwnerKey)
		assert.Equal(t, "gallery", result.CollectionName)

		// Source records are consumed.
		_, err = lifecycle.GetTempMedia(ctx, a.ID)
		assert.ErrorIs(t, err, tempmedia.ErrTempMediaNotFound)
		_, err = lifecycle.GetTempMedia(ctx, b.ID)
		assert.ErrorIs(t, err, tempmedia.ErrTempMediaNotFound)

		// Permanent items carry the copied bytes under new keys.
		owned, err := repo.ListOwnedMedia(ctx, "product", "product-42", "gallery")
		require.NoError(t, err)
		require.Len(t, owned, 2)
		assert.Equal(t, "a.png", owned[0].OriginalName)
		assert.Equal(t, "b.png", owned[1].OriginalName)
		assert.Equal(t, map[string]interface{}{"source": "upload"}, owned[0].CustomProperties)

		reader, err := store.Download(ctx, owned[0].ObjectKey)
		require.NoError(t, err)
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		reader.Close()
		assert.Equal(t, "aaa", string(data))

		// Temp blobs remain until a cleanup pass reclaims the processed rows.
		_, err = store.Download(ctx, tempmedia.ObjectKeyFor(a.ID, "a.png"))
		assert.NoError(t, err)
	})

	t.Run("empty request transfers nothing", func(t *testing.T) {
		_, transfers, repo, _, _ := setupTransferService(t)

		result, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{})
		require.NoError(t, err)
		assert.True(t, result.IsFullySuccessful())
		assert.Equal(t, 0, result.TransferredCount)
		assert.Equal(t, tempmedia.DefaultTransferCollection, result.CollectionName)

		owned, err := repo.ListOwnedMedia(ctx, "product", "product-42", "")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("invalid id aborts before any copy", func(t *testing.T) {
		lifecycle, transfers, repo, _, _ := setupTransferService(t)
		a := uploadFixture(t, lifecycle, "a.png", "aaa")

		_, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{
				{TempMediaID: a.ID},
				{TempMediaID: uuid.New()},
			},
		})
		var invalid *tempmedia.InvalidIDsError
		require.ErrorAs(t, err, &invalid)

		// The valid item is untouched.
		_, err = lifecycle.GetTempMedia(ctx, a.ID)
		assert.NoError(t, err)

		owned, err := repo.ListOwnedMedia(ctx, "product", "product-42", "")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("missing blob fails that item only", func(t *testing.T) {
		lifecycle, transfers, _, store, _ := setupTransferService(t)
		a := uploadFixture(t, lifecycle, "a.png", "aaa")
		b := uploadFixture(t, lifecycle, "b.png", "bbb")

		require.NoError(t, store.Delete(ctx, tempmedia.ObjectKeyFor(a.ID, "a.png")))

		result, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{
				{TempMediaID: a.ID},
				{TempMediaID: b.ID},
			},
		})
		require.NoError(t, err)

		assert.True(t, result.HasFailures())
		assert.Equal(t, 1, result.TransferredCount)
		assert.Equal(t, 1, result.FailedCount)
		assert.Equal(t, []uuid.UUID{a.ID}, result.FailedIDs())

		// Only the transferred item is consumed.
		_, err = lifecycle.GetTempMedia(ctx, b.ID)
		assert.ErrorIs(t, err, tempmedia.ErrTempMediaNotFound)
	})

	t.Run("transferred items cannot transfer twice", func(t *testing.T) {
		lifecycle, transfers, _, _, _ := setupTransferService(t)
		a := uploadFixture(t, lifecycle, "a.png", "aaa")

		_, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{{TempMediaID: a.ID}},
		})
		require.NoError(t, err)

		_, err = transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{{TempMediaID: a.ID}},
		})
		var invalid *tempmedia.InvalidIDsError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("transfer event carries the result", func(t *testing.T) {
		repo := memory.New()
		store := memorystorage.New()
		sink := tempmedia.NewChannelEventSink(8)

		lifecycle, err := tempmedia.New(
			tempmedia.WithRepository(repo),
			tempmedia.WithBlobStore(store),
		)
		require.NoError(t, err)

		transfers, err := tempmedia.NewTransferService(lifecycle, repo, store,
			tempmedia.WithTransferEventSink(sink))
		require.NoError(t, err)

		a := uploadFixture(t, lifecycle, "a.png", "aaa")
		_, err = transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{{TempMediaID: a.ID}},
		})
		require.NoError(t, err)

		select {
		case ev := <-sink.Events():
			assert.Equal(t, tempmedia.EventMediaTransferred, ev.Name)
			assert.Equal(t, "product", ev.OwnerType)
			assert.Equal(t, "product-42", ev.OwnerKey)
			require.NotNil(t, ev.Transfer)
			assert.Equal(t, 1, ev.Transfer.TransferredCount)
		default:
			t.Fatal("expected a transferred event")
		}
	})
}

func TestValidateOwnership(t *testing.T) {
	ctx := context.Background()

	lifecycle, transfers, _, _, _ := setupTransferService(t)
	a := uploadFixture(t, lifecycle, "a.png", "x") // session-1
	foreign, err := lifecycle.UploadTempMedia(ctx, tempmedia.UploadTempMediaRequest{
		File:         strings.NewReader("y"),
		OriginalName: "b.png",
		MimeType:     "image/png",
		SizeBytes:    1,
		SessionID:    "session-2",
	})
	require.NoError(t, err)

	t.Run("matching session owns its uploads", func(t *testing.T) {
		ok, err := transfers.ValidateOwnership(ctx, []uuid.UUID{a.ID}, "session-1", "")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("foreign session is rejected", func(t *testing.T) {
		ok, err := transfers.ValidateOwnership(ctx, []uuid.UUID{foreign.ID}, "session-1", "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("mixed ownership fails the set", func(t *testing.T) {
		ok, err := transfers.ValidateOwnership(ctx, []uuid.UUID{a.ID, foreign.ID}, "session-1", "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty id list is owned", func(t *testing.T) {
		ok, err := transfers.ValidateOwnership(ctx, nil, "session-1", "")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestCleanupProcessed(t *testing.T) {
	ctx := context.Background()
	owner := testOwner{ownerType: "post", ownerKey: "post-1"}

	lifecycle, transfers, _, store, _ := setupTransferService(t)
	a := uploadFixture(t, lifecycle, "a.png", "aaa")
	b := uploadFixture(t, lifecycle, "b.png", "bbb")

	_, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
		Items: []tempmedia.TransferItem{{TempMediaID: a.ID}},
	})
	require.NoError(t, err)

	count, err := transfers.CleanupProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The processed record's blob is reclaimed, the active one survives.
	_, err = store.Download(ctx, tempmedia.ObjectKeyFor(a.ID, "a.png"))
	assert.ErrorIs(t, err, tempmedia.ErrBlobNotFound)
	_, err = store.Download(ctx, tempmedia.ObjectKeyFor(b.ID, "b.png"))
	assert.NoError(t, err)

	stats, err := transfers.GetTransferStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(0), stats.Processed)
}

func TestGetTransferStats(t *testing.T) {
	ctx := context.Background()

	lifecycle, transfers, _, _, clock := setupTransferService(t)
	a := uploadFixture(t, lifecycle, "a.png", "x")
	uploadFixture(t, lifecycle, "b.png", "y")

	require.NoError(t, lifecycle.MarkProcessed(ctx, []uuid.UUID{a.ID}))
	clock.Advance(25 * time.Hour)
	uploadFixture(t, lifecycle, "c.png", "z")

	stats, err := transfers.GetTransferStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Active)    // only c
	assert.Equal(t, int64(1), stats.Processed) // a
	assert.Equal(t, int64(2), stats.Expired)   // a and b
}

// consumingRepository hard-deletes ids before marking them, standing in for a
// sweep that claims the rows between the per-item copy and the batch mark.
type consumingRepository struct {
	*memory.Repository
}

func (r *consumingRepository) MarkProcessed(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	for _, id := range ids {
		if _, err := r.Repository.HardDelete(ctx, id); err != nil {
			return nil, err
		}
	}
	return r.Repository.MarkProcessed(ctx, ids)
}

type failingMarkRepository struct {
	*memory.Repository
}

func (r *failingMarkRepository) MarkProcessed(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return nil, errors.New("connection reset by peer")
}

type faultyDownloadStore struct {
	tempmedia.BlobStore
}

func (s *faultyDownloadStore) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	return nil, errors.New("connection timed out")
}

func TestTransferTerminalRace(t *testing.T) {
	ctx := context.Background()
	owner := testOwner{ownerType: "product", ownerKey: "product-42"}

	t.Run("item consumed before mark is demoted to a failure", func(t *testing.T) {
		repo := &consumingRepository{Repository: memory.New()}
		store := memorystorage.New()

		lifecycle, err := tempmedia.New(
			tempmedia.WithRepository(repo),
			tempmedia.WithBlobStore(store),
		)
		require.NoError(t, err)
		transfers, err := tempmedia.NewTransferService(lifecycle, repo, store)
		require.NoError(t, err)

		upload := uploadFixture(t, lifecycle, "racy.png", "xxx")

		result, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{{TempMediaID: upload.ID}},
		})
		require.NoError(t, err)

		// The concurrent deletion won the terminal transition, so the copy
		// must not be reported as a second winner.
		assert.Equal(t, 0, result.TransferredCount)
		assert.Equal(t, 1, result.FailedCount)
		assert.Equal(t, []uuid.UUID{upload.ID}, result.FailedIDs())

		owned, err := repo.ListOwnedMedia(ctx, "product", "product-42", "")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("mark fault rolls back the copied items", func(t *testing.T) {
		repo := &failingMarkRepository{Repository: memory.New()}
		store := memorystorage.New()

		lifecycle, err := tempmedia.New(
			tempmedia.WithRepository(repo),
			tempmedia.WithBlobStore(store),
		)
		require.NoError(t, err)
		transfers, err := tempmedia.NewTransferService(lifecycle, repo, store)
		require.NoError(t, err)

		upload := uploadFixture(t, lifecycle, "fault.png", "xxx")

		_, err = transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
			Items: []tempmedia.TransferItem{{TempMediaID: upload.ID}},
		})
		require.Error(t, err)

		// No owned rows survive the aborted batch; the source stays active
		// and can be transferred again once the store recovers.
		owned, err := repo.ListOwnedMedia(ctx, "product", "product-42", "")
		require.NoError(t, err)
		assert.Empty(t, owned)

		_, err = lifecycle.GetTempMedia(ctx, upload.ID)
		assert.NoError(t, err)
	})
}

func TestTransferDownloadFault(t *testing.T) {
	ctx := context.Background()
	owner := testOwner{ownerType: "product", ownerKey: "product-42"}

	repo := memory.New()
	store := memorystorage.New()

	lifecycle, err := tempmedia.New(
		tempmedia.WithRepository(repo),
		tempmedia.WithBlobStore(store),
	)
	require.NoError(t, err)

	// The transfer engine sees only the faulty wrapper.
	transfers, err := tempmedia.NewTransferService(lifecycle, repo, &faultyDownloadStore{BlobStore: store})
	require.NoError(t, err)

	upload := uploadFixture(t, lifecycle, "flaky.png", "xxx")

	result, err := transfers.Transfer(ctx, owner, tempmedia.TransferRequest{
		Items: []tempmedia.TransferItem{{TempMediaID: upload.ID}},
	})
	require.NoError(t, err)

	require.Equal(t, 1, result.FailedCount)
	// A transient outage is reported as a storage fault, not a missing blob.
	assert.Contains(t, result.FailedTransfers[0].Reason, "connection timed out")
	assert.NotContains(t, result.FailedTransfers[0].Reason, "stored file not found")
}
