package tempmedia

import (
	"io"

	"github.com/google/uuid"
)

// Request DTOs

// UploadTempMediaRequest contains parameters for uploading a temporary file
type UploadTempMediaRequest struct {
	File         io.Reader
	OriginalName string
	MimeType     string
	SizeBytes    int64
	SessionID    string
	UserID       string
	// TTLHours overrides the configured default TTL when > 0.
	TTLHours int
}

// TransferItem names one temp media record to transfer, with an optional
// ordering key to persist on the new permanent item.
type TransferItem struct {
	TempMediaID uuid.UUID `json:"temp_media_id"`
	Order       *int      `json:"order,omitempty"`
}

// TransferRequest contains parameters for transferring temp media onto an owner
type TransferRequest struct {
	Items            []TransferItem
	CollectionName   string
	CustomProperties map[string]interface{}
}

// IsEmpty reports whether the request names no items.
func (r TransferRequest) IsEmpty() bool {
	return len(r.Items) == 0
}

// TempMediaIDs returns the requested ids in input order.
func (r TransferRequest) TempMediaIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.TempMediaID)
	}
	return ids
}

// SweepOptions control one cleanup sweep.
type SweepOptions struct {
	// ExpiredOnly limits the sweep to expired records.
	ExpiredOnly bool
	// ProcessedOnly limits the sweep to processed records.
	ProcessedOnly bool
	// DryRun selects and counts without deleting rows or blobs.
	DryRun bool
}
