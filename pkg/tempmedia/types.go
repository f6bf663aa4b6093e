package tempmedia

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TempMedia represents an uploaded file held under a time-to-live until it is
// either transferred onto a permanent owner or reclaimed by a sweep.
//
// A record is "active" while it is unexpired, unprocessed and not deleted.
// ExpiresAt is fixed at upload time and never mutated; IsProcessed flips
// false->true exactly once, when a transfer consumes the record.
type TempMedia struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    string     `json:"session_id,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
	OriginalName string     `json:"original_name"`
	MimeType     string     `json:"mime_type"`
	SizeBytes    int64      `json:"size"`
	ExpiresAt    time.Time  `json:"expires_at"`
	IsProcessed  bool       `json:"is_processed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// IsExpired reports whether the record's TTL has elapsed at the given time.
func (m *TempMedia) IsExpired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// IsActive reports whether the record is eligible for fetch and transfer.
func (m *TempMedia) IsActive(now time.Time) bool {
	return m.ExpiresAt.After(now) && !m.IsProcessed && m.DeletedAt == nil
}

// ObjectKey returns the blob storage key for the record's single stored file.
func (m *TempMedia) ObjectKey() string {
	return ObjectKeyFor(m.ID, m.OriginalName)
}

// ObjectKeyFor derives the stable blob key for a temp media record. Every
// record owns exactly one blob under this key.
func ObjectKeyFor(id uuid.UUID, fileName string) string {
	return fmt.Sprintf("temp-media/%s/%s", id, fileName)
}

// PermanentObjectKeyFor derives the blob key for a transferred copy, keyed by
// the new permanent media id.
func PermanentObjectKeyFor(id uuid.UUID, fileName string) string {
	return fmt.Sprintf("media/%s/%s", id, fileName)
}

// TempMediaUpload is the caller-facing view of a freshly uploaded record.
// IsTemporary is always true; it marks the record for clients that mix
// temporary and permanent media in one response shape.
type TempMediaUpload struct {
	ID           uuid.UUID `json:"id"`
	URL          string    `json:"url"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsTemporary  bool      `json:"is_temporary"`
	SessionID    string    `json:"session_id,omitempty"`
}

// OwnedMedia is a permanent media item attached to an owning entity's
// collection by a successful transfer.
type OwnedMedia struct {
	ID               uuid.UUID              `json:"id"`
	OwnerType        string                 `json:"owner_type"`
	OwnerKey         string                 `json:"owner_key"`
	Collection       string                 `json:"collection"`
	ObjectKey        string                 `json:"object_key"`
	FileName         string                 `json:"file_name"`
	OriginalName     string                 `json:"original_name"`
	MimeType         string                 `json:"mime_type"`
	SizeBytes        int64                  `json:"size"`
	OrderColumn      *int                   `json:"order_column,omitempty"`
	CustomProperties map[string]interface{} `json:"custom_properties,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// MediaOwner is implemented by any entity that can receive transferred media
// into one of its collections.
type MediaOwner interface {
	MediaOwnerType() string
	MediaOwnerKey() string
}

// TransferredMedia summarizes one temp item successfully copied onto an owner.
type TransferredMedia struct {
	ID           uuid.UUID `json:"id"`
	TempMediaID  uuid.UUID `json:"temp_media_id"`
	URL          string    `json:"url"`
	Collection   string    `json:"collection"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	Order        *int      `json:"order,omitempty"`
}

// FailedTransfer records a per-item transfer failure. These are reported, not
// fatal: the rest of the batch still goes through.
type FailedTransfer struct {
	TempMediaID uuid.UUID `json:"temp_media_id"`
	Reason      string    `json:"error"`
}

// TransferResult is the outcome of one Transfer call.
type TransferResult struct {
	TransferredMedia []TransferredMedia `json:"transferred_media"`
	TransferredCount int                `json:"transferred_count"`
	FailedTransfers  []FailedTransfer   `json:"failed_transfers"`
	FailedCount      int                `json:"failed_count"`
	TargetOwnerType  string             `json:"target_owner_type"`
	TargetOwnerKey   string             `json:"target_owner_key"`
	CollectionName   string             `json:"collection_name"`
}

// NewTransferResult assembles a result from per-item outcomes.
func NewTransferResult(transferred []TransferredMedia, failed []FailedTransfer, ownerType, ownerKey, collection string) *TransferResult {
	return &TransferResult{
		TransferredMedia: transferred,
		TransferredCount: len(transferred),
		FailedTransfers:  failed,
		FailedCount:      len(failed),
		TargetOwnerType:  ownerType,
		TargetOwnerKey:   ownerKey,
		CollectionName:   collection,
	}
}

// IsFullySuccessful reports whether every requested item transferred.
func (r *TransferResult) IsFullySuccessful() bool {
	return r.FailedCount == 0
}

// HasFailures reports whether any item failed.
func (r *TransferResult) HasFailures() bool {
	return r.FailedCount > 0
}

// TransferredIDs returns the new permanent media ids in transfer order.
func (r *TransferResult) TransferredIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.TransferredMedia))
	for _, m := range r.TransferredMedia {
		ids = append(ids, m.ID)
	}
	return ids
}

// FailedIDs returns the temp media ids that failed to transfer.
func (r *TransferResult) FailedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.FailedTransfers))
	for _, f := range r.FailedTransfers {
		ids = append(ids, f.TempMediaID)
	}
	return ids
}

// TransferStats is a point-in-time count of temp media by lifecycle state.
type TransferStats struct {
	Total     int64 `json:"total_temp_media"`
	Active    int64 `json:"active_temp_media"`
	Processed int64 `json:"processed_temp_media"`
	Expired   int64 `json:"expired_temp_media"`
}

// SweepResult reports one execution of the cleanup engine.
type SweepResult struct {
	ExpiredRemoved   int  `json:"expired_removed"`
	ProcessedRemoved int  `json:"processed_removed"`
	DryRun           bool `json:"dry_run"`
}

// TotalRemoved returns the combined number of records removed (or, for a dry
// run, the number that would have been removed).
func (r *SweepResult) TotalRemoved() int {
	return r.ExpiredRemoved + r.ProcessedRemoved
}
