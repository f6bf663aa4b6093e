package tempmedia

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends holding the uploaded
// bytes. A record's blob is addressed by the key from TempMedia.ObjectKey.
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetDownloadURL returns a URL for downloading content
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// GetPreviewURL returns a URL for inline display of content
	GetPreviewURL(ctx context.Context, objectKey string) (string, error)

	// GetObjectMeta retrieves metadata for a stored object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// Repository defines the interface for temp media persistence.
//
// The row for a given id is the unit of mutual exclusion: MarkProcessed and
// HardDelete are compare-and-set operations, so two racing terminal
// transitions on the same id can never both apply.
type Repository interface {
	// Temp media operations
	CreateTempMedia(ctx context.Context, media *TempMedia) error
	// GetTempMedia returns the record regardless of expiry or processed
	// state, as long as it is not deleted.
	GetTempMedia(ctx context.Context, id uuid.UUID) (*TempMedia, error)
	// GetActiveTempMedia returns the record only while it is active.
	GetActiveTempMedia(ctx context.Context, id uuid.UUID, now time.Time) (*TempMedia, error)
	// ListActiveByIDs returns the active records among ids, in no particular order.
	ListActiveByIDs(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*TempMedia, error)
	// ListExpired returns records whose TTL elapsed, regardless of processed state.
	ListExpired(ctx context.Context, now time.Time) ([]*TempMedia, error)
	// ListProcessed returns records consumed by a successful transfer.
	ListProcessed(ctx context.Context) ([]*TempMedia, error)
	// CountMatchingOwner counts records among ids that also match the given
	// session and/or user filters (empty string means no filter).
	CountMatchingOwner(ctx context.Context, ids []uuid.UUID, sessionID, userID string) (int64, error)

	// MarkProcessed flips is_processed to true for the given ids and returns
	// the ids actually flipped. Already-processed and missing ids are
	// silently skipped, which makes the call idempotent.
	MarkProcessed(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	// SoftDelete marks the record deleted but retains the row for audit.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// HardDelete removes the row and reports whether it was present. A false
	// return means a concurrent transition already removed it.
	HardDelete(ctx context.Context, id uuid.UUID) (bool, error)

	// CountStats returns point-in-time lifecycle counts.
	CountStats(ctx context.Context, now time.Time) (*TransferStats, error)

	// Owned media operations (permanent collections written by transfers)
	CreateOwnedMedia(ctx context.Context, media *OwnedMedia) error
	// DeleteOwnedMedia removes a permanent row; transfers use it to take back
	// a copy whose source lost the terminal-transition race.
	DeleteOwnedMedia(ctx context.Context, id uuid.UUID) error
	ListOwnedMedia(ctx context.Context, ownerType, ownerKey, collection string) ([]*OwnedMedia, error)
}

// EventSink defines the interface for lifecycle event handling. Dispatch is
// best-effort after the corresponding state change commits; sink errors never
// fail the primary operation.
type EventSink interface {
	// TempMediaUploaded is fired when a record is created and its blob stored
	TempMediaUploaded(ctx context.Context, media *TempMedia) error

	// TempMediaExpired is fired for each expired record reclaimed by a sweep
	TempMediaExpired(ctx context.Context, media *TempMedia) error

	// MediaTransferred is fired once per completed transfer call
	MediaTransferred(ctx context.Context, ownerType, ownerKey string, result *TransferResult) error
}

// ObjectMeta contains metadata about an object in blob storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}
