package tempmedia

import (
	"context"

	"github.com/google/uuid"
)

// Service is the temp media lifecycle manager: upload, lookup, deletion,
// processed-marking and expiry reclamation.
type Service interface {
	// UploadTempMedia validates and stores a file under the configured TTL.
	// Fails with ErrInvalidFile before any persistence when the file is
	// oversize or of a disallowed type; a blob storage failure after the
	// record insert rolls the record back.
	UploadTempMedia(ctx context.Context, req UploadTempMediaRequest) (*TempMediaUpload, error)

	// GetTempMedia returns the record only while it is active. Expired,
	// processed and missing ids all yield ErrTempMediaNotFound.
	GetTempMedia(ctx context.Context, id uuid.UUID) (*TempMedia, error)

	// DeleteTempMedia unconditionally removes the record and its blob.
	// Returns false when no record with the id exists.
	DeleteTempMedia(ctx context.Context, id uuid.UUID) (bool, error)

	// ValidateTempMediaIDs returns the active records for ids, failing with
	// *InvalidIDsError naming the missing ids when any id has no active
	// match (all-or-nothing).
	ValidateTempMediaIDs(ctx context.Context, ids []uuid.UUID) ([]*TempMedia, error)

	// MarkProcessed idempotently flips is_processed for ids; unknown ids are
	// ignored.
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error

	// CleanupExpired reclaims every expired record and its blob, returning
	// the number removed.
	CleanupExpired(ctx context.Context) (int, error)

	// DownloadURL returns an access URL for the record's stored file.
	DownloadURL(ctx context.Context, media *TempMedia) (string, error)

	// ThumbnailURL returns a best-effort preview URL for the record's stored
	// file, or "" when the backend cannot provide one.
	ThumbnailURL(ctx context.Context, media *TempMedia) string
}

// TransferService is the transfer engine: it moves validated temp items onto
// a permanent owner's collection and finalizes their lifecycle.
type TransferService interface {
	// Transfer copies the requested items' blobs into owner's collection.
	// An empty request returns an empty successful result without touching
	// storage. Validation failures abort before any copy; per-item copy
	// failures are collected into the result instead of aborting the batch.
	Transfer(ctx context.Context, owner MediaOwner, req TransferRequest) (*TransferResult, error)

	// ValidateOwnership reports whether every id matches a record owned by
	// the given session and/or user. A boolean gate, not validation with
	// detail.
	ValidateOwnership(ctx context.Context, ids []uuid.UUID, sessionID, userID string) (bool, error)

	// CleanupProcessed reclaims every processed record and its blob,
	// returning the number removed.
	CleanupProcessed(ctx context.Context) (int, error)

	// GetTransferStats returns point-in-time lifecycle counts.
	GetTransferStats(ctx context.Context) (*TransferStats, error)
}
