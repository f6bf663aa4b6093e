package tempmedia

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTransferCollection is the owner collection used when a transfer
// request does not name one.
const DefaultTransferCollection = "default"

// transferService implements the TransferService interface
type transferService struct {
	lifecycle         Service
	repository        Repository
	blobStore         BlobStore
	eventSink         EventSink
	now               func() time.Time
	defaultCollection string
}

// TransferOption represents a functional option for configuring the transfer service
type TransferOption func(*transferService)

// WithTransferEventSink sets the event sink for transfer notifications
func WithTransferEventSink(sink EventSink) TransferOption {
	return func(t *transferService) {
		t.eventSink = sink
	}
}

// WithDefaultCollection sets the collection used when a request names none
func WithDefaultCollection(name string) TransferOption {
	return func(t *transferService) {
		if name != "" {
			t.defaultCollection = name
		}
	}
}

// WithTransferClock overrides the time source. Used by tests to control expiry.
func WithTransferClock(now func() time.Time) TransferOption {
	return func(t *transferService) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTransferService creates a transfer engine over the same repository and
// blob store as the lifecycle service. Dependencies are explicit; there is no
// ambient lookup.
func NewTransferService(lifecycle Service, repo Repository, store BlobStore, options ...TransferOption) (TransferService, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	t := &transferService{
		lifecycle:         lifecycle,
		repository:        repo,
		blobStore:         store,
		now:               func() time.Time { return time.Now().UTC() },
		defaultCollection: DefaultTransferCollection,
	}

	for _, option := range options {
		option(t)
	}

	return t, nil
}

func (t *transferService) Transfer(ctx context.Context, owner MediaOwner, req TransferRequest) (*TransferResult, error) {
	collection := req.CollectionName
	if collection == "" {
		collection = t.defaultCollection
	}

	if req.IsEmpty() {
		return NewTransferResult([]TransferredMedia{}, []FailedTransfer{}, owner.MediaOwnerType(), owner.MediaOwnerKey(), collection), nil
	}

	// All-or-nothing gate: a single invalid id fails the call before any copy.
	if _, err := t.lifecycle.ValidateTempMediaIDs(ctx, req.TempMediaIDs()); err != nil {
		return nil, err
	}

	transferred := make([]TransferredMedia, 0, len(req.Items))
	var failed []FailedTransfer

	for _, item := range req.Items {
		media, err := t.transferSingle(ctx, owner, item, collection, req.CustomProperties)
		if err != nil {
			failed = append(failed, FailedTransfer{TempMediaID: item.TempMediaID, Reason: err.Error()})
			continue
		}
		transferred = append(transferred, *media)
	}

	if len(transferred) > 0 {
		ids := make([]uuid.UUID, 0, len(transferred))
		for _, media := range transferred {
			ids = append(ids, media.TempMediaID)
		}

		flipped, err := t.repository.MarkProcessed(ctx, ids)
		if err != nil {
			// Abort-worthy fault: the batch must not leave durable side
			// effects behind, so take back every copy made above.
			for _, media := range transferred {
				t.undoTransferred(ctx, media)
			}
			return nil, fmt.Errorf("failed to mark transferred media processed: %w", err)
		}

		// MarkProcessed only flips rows that still exist unprocessed. An id
		// missing from the flipped set lost its terminal transition to a
		// racing sweep or delete; its copy must not stand as a second winner.
		if len(flipped) != len(ids) {
			flippedSet := make(map[uuid.UUID]bool, len(flipped))
			for _, id := range flipped {
				flippedSet[id] = true
			}
			kept := transferred[:0]
			for _, media := range transferred {
				if flippedSet[media.TempMediaID] {
					kept = append(kept, media)
					continue
				}
				t.undoTransferred(ctx, media)
				failed = append(failed, FailedTransfer{
					TempMediaID: media.TempMediaID,
					Reason:      "media item not found or already processed",
				})
			}
			transferred = kept
		}
	}

	result := NewTransferResult(transferred, failed, owner.MediaOwnerType(), owner.MediaOwnerKey(), collection)

	if t.eventSink != nil {
		_ = t.eventSink.MediaTransferred(ctx, owner.MediaOwnerType(), owner.MediaOwnerKey(), result)
	}

	return result, nil
}

// undoTransferred removes a copied item's owned row and blob. Both deletes
// are best-effort; the source record's state is authoritative either way.
func (t *transferService) undoTransferred(ctx context.Context, media TransferredMedia) {
	_ = t.repository.DeleteOwnedMedia(ctx, media.ID)
	_ = t.blobStore.Delete(ctx, PermanentObjectKeyFor(media.ID, media.OriginalName))
}

// transferSingle copies one temp item onto the owner. Failures are per-item:
// the caller reports them and continues with the rest of the batch.
func (t *transferService) transferSingle(ctx context.Context, owner MediaOwner, item TransferItem, collection string, customProps map[string]interface{}) (*TransferredMedia, error) {
	// Re-fetch restricted to active: the record may have expired or been
	// consumed between validation and copy.
	media, err := t.repository.GetActiveTempMedia(ctx, item.TempMediaID, t.now())
	if err != nil {
		if errors.Is(err, ErrTempMediaNotFound) {
			return nil, errors.New("media item not found or already processed")
		}
		return nil, err
	}

	reader, err := t.blobStore.Download(ctx, media.ObjectKey())
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Key: media.ObjectKey(), Op: "download", Err: err}
	}
	defer reader.Close()

	now := t.now()
	newID := uuid.New()
	newKey := PermanentObjectKeyFor(newID, media.OriginalName)

	if err := t.blobStore.UploadWithParams(ctx, reader, UploadParams{ObjectKey: newKey, MimeType: media.MimeType}); err != nil {
		return nil, &StorageError{Key: newKey, Op: "copy", Err: err}
	}

	owned := &OwnedMedia{
		ID:               newID,
		OwnerType:        owner.MediaOwnerType(),
		OwnerKey:         owner.MediaOwnerKey(),
		Collection:       collection,
		ObjectKey:        newKey,
		FileName:         media.OriginalName,
		OriginalName:     media.OriginalName,
		MimeType:         media.MimeType,
		SizeBytes:        media.SizeBytes,
		OrderColumn:      item.Order,
		CustomProperties: customProps,
		CreatedAt:        now,
	}

	if err := t.repository.CreateOwnedMedia(ctx, owned); err != nil {
		// Do not leave an unreferenced copy behind.
		_ = t.blobStore.Delete(ctx, newKey)
		return nil, fmt.Errorf("failed to record transferred media: %w", err)
	}

	url, err := t.blobStore.GetDownloadURL(ctx, newKey, media.OriginalName)
	if err != nil {
		url = ""
	}

	return &TransferredMedia{
		ID:           newID,
		TempMediaID:  media.ID,
		URL:          url,
		Collection:   collection,
		OriginalName: media.OriginalName,
		SizeBytes:    media.SizeBytes,
		MimeType:     media.MimeType,
		Order:        item.Order,
	}, nil
}

func (t *transferService) ValidateOwnership(ctx context.Context, ids []uuid.UUID, sessionID, userID string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	found, err := t.repository.CountMatchingOwner(ctx, ids, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to count owned temp media: %w", err)
	}

	return found == int64(len(ids)), nil
}

func (t *transferService) CleanupProcessed(ctx context.Context) (int, error) {
	processed, err := t.repository.ListProcessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list processed temp media: %w", err)
	}

	count := 0
	for _, media := range processed {
		removed, err := t.repository.HardDelete(ctx, media.ID)
		if err != nil {
			return count, &MediaError{MediaID: media.ID, Op: "cleanup_processed", Err: err}
		}
		if !removed {
			continue
		}
		_ = t.blobStore.Delete(ctx, media.ObjectKey())
		count++
	}

	return count, nil
}

func (t *transferService) GetTransferStats(ctx context.Context) (*TransferStats, error) {
	return t.repository.CountStats(ctx, t.now())
}
