package tempmedia

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrTempMediaNotFound indicates no active record exists for the id.
	// Expired, processed and missing records are indistinguishable to callers.
	ErrTempMediaNotFound = errors.New("temp media not found")

	// ErrInvalidFile indicates an upload failed size or MIME validation
	ErrInvalidFile = errors.New("invalid file upload")

	// ErrFileTooLarge indicates the uploaded file exceeds the configured maximum
	ErrFileTooLarge = fmt.Errorf("%w: file size exceeds maximum allowed size", ErrInvalidFile)

	// ErrFileTypeNotAllowed indicates the uploaded MIME type is not in the allowed set
	ErrFileTypeNotAllowed = fmt.Errorf("%w: file type not allowed", ErrInvalidFile)

	// ErrBlobNotFound indicates a record's stored file is missing from the blob store
	ErrBlobNotFound = errors.New("stored file not found")

	// ErrSweepInProgress indicates a sweep was skipped because another is still running
	ErrSweepInProgress = errors.New("cleanup sweep already in progress")
)

// InvalidIDsError is returned when one or more requested temp media ids have
// no matching active record. Validation is all-or-nothing: a single bad id
// fails the whole set.
type InvalidIDsError struct {
	MissingIDs []uuid.UUID
}

func (e *InvalidIDsError) Error() string {
	ids := make([]string, 0, len(e.MissingIDs))
	for _, id := range e.MissingIDs {
		ids = append(ids, id.String())
	}
	return "invalid or expired temp media IDs: " + strings.Join(ids, ", ")
}

// MediaError represents an error related to a temp media operation
type MediaError struct {
	MediaID uuid.UUID
	Op      string
	Err     error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("temp media operation %s failed for %s: %v", e.Op, e.MediaID, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
