package tempmedia

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default validation limits, matching the package configuration defaults.
const (
	DefaultTTLHours    = 24
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// service implements the Service interface
type service struct {
	repository       Repository
	blobStore        BlobStore
	eventSink        EventSink
	now              func() time.Time
	defaultTTLHours  int
	maxFileSize      int64
	allowedMimeTypes map[string]bool
	conversions      bool
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithDefaultTTLHours sets the TTL applied when an upload carries no override
func WithDefaultTTLHours(hours int) Option {
	return func(s *service) {
		if hours > 0 {
			s.defaultTTLHours = hours
		}
	}
}

// WithMaxFileSize sets the maximum accepted upload size in bytes
func WithMaxFileSize(bytes int64) Option {
	return func(s *service) {
		if bytes > 0 {
			s.maxFileSize = bytes
		}
	}
}

// WithAllowedMimeTypes sets the accepted MIME type set. An empty set accepts
// any type.
func WithAllowedMimeTypes(mimeTypes []string) Option {
	return func(s *service) {
		s.allowedMimeTypes = make(map[string]bool, len(mimeTypes))
		for _, mt := range mimeTypes {
			s.allowedMimeTypes[mt] = true
		}
	}
}

// WithConversions enables best-effort thumbnail URLs for stored media
func WithConversions(enabled bool) Option {
	return func(s *service) {
		s.conversions = enabled
	}
}

// WithClock overrides the time source. Used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new temp media service with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		now:             func() time.Time { return time.Now().UTC() },
		defaultTTLHours: DefaultTTLHours,
		maxFileSize:     DefaultMaxFileSize,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

func (s *service) UploadTempMedia(ctx context.Context, req UploadTempMediaRequest) (*TempMediaUpload, error) {
	if err := s.validateFile(req); err != nil {
		return nil, err
	}

	ttl := req.TTLHours
	if ttl <= 0 {
		ttl = s.defaultTTLHours
	}

	now := s.now()
	media := &TempMedia{
		ID:           uuid.New(),
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		OriginalName: req.OriginalName,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		ExpiresAt:    now.Add(time.Duration(ttl) * time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repository.CreateTempMedia(ctx, media); err != nil {
		return nil, &MediaError{MediaID: media.ID, Op: "upload", Err: err}
	}

	params := UploadParams{ObjectKey: media.ObjectKey(), MimeType: media.MimeType}
	if err := s.blobStore.UploadWithParams(ctx, req.File, params); err != nil {
		// Roll the record back so a failed upload leaves nothing behind.
		if _, delErr := s.repository.HardDelete(ctx, media.ID); delErr != nil {
			return nil, &MediaError{MediaID: media.ID, Op: "upload_rollback", Err: delErr}
		}
		return nil, &StorageError{Key: params.ObjectKey, Op: "upload", Err: err}
	}

	url, err := s.DownloadURL(ctx, media)
	if err != nil {
		// Backends without URL support still accept uploads.
		url = ""
	}

	if s.eventSink != nil {
		_ = s.eventSink.TempMediaUploaded(ctx, media)
	}

	return &TempMediaUpload{
		ID:           media.ID,
		URL:          url,
		OriginalName: media.OriginalName,
		MimeType:     media.MimeType,
		SizeBytes:    media.SizeBytes,
		ExpiresAt:    media.ExpiresAt,
		IsTemporary:  true,
		SessionID:    media.SessionID,
	}, nil
}

func (s *service) GetTempMedia(ctx context.Context, id uuid.UUID) (*TempMedia, error) {
	return s.repository.GetActiveTempMedia(ctx, id, s.now())
}

func (s *service) DeleteTempMedia(ctx context.Context, id uuid.UUID) (bool, error) {
	media, err := s.repository.GetTempMedia(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTempMediaNotFound) {
			return false, nil
		}
		return false, &MediaError{MediaID: id, Op: "delete", Err: err}
	}

	// Row first, blob second: a row must never point at a missing blob.
	removed, err := s.repository.HardDelete(ctx, id)
	if err != nil {
		return false, &MediaError{MediaID: id, Op: "delete", Err: err}
	}
	if !removed {
		return false, nil
	}

	if err := s.blobStore.Delete(ctx, media.ObjectKey()); err != nil {
		return true, &StorageError{Key: media.ObjectKey(), Op: "delete", Err: err}
	}

	return true, nil
}

func (s *service) ValidateTempMediaIDs(ctx context.Context, ids []uuid.UUID) ([]*TempMedia, error) {
	if len(ids) == 0 {
		return []*TempMedia{}, nil
	}

	found, err := s.repository.ListActiveByIDs(ctx, ids, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to look up temp media ids: %w", err)
	}

	foundSet := make(map[uuid.UUID]bool, len(found))
	for _, media := range found {
		foundSet[media.ID] = true
	}

	var missing []uuid.UUID
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !foundSet[id] {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		return nil, &InvalidIDsError{MissingIDs: missing}
	}

	return found, nil
}

func (s *service) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.repository.MarkProcessed(ctx, ids)
	return err
}

func (s *service) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.repository.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired temp media: %w", err)
	}

	count := 0
	for _, media := range expired {
		if s.eventSink != nil {
			_ = s.eventSink.TempMediaExpired(ctx, media)
		}

		removed, err := s.repository.HardDelete(ctx, media.ID)
		if err != nil {
			return count, &MediaError{MediaID: media.ID, Op: "cleanup_expired", Err: err}
		}
		if !removed {
			// Lost the race to a concurrent delete; nothing left to reclaim.
			continue
		}

		// Blob removal is best-effort once the row is gone; a failure here
		// must not stall the rest of the sweep.
		_ = s.blobStore.Delete(ctx, media.ObjectKey())
		count++
	}

	return count, nil
}

func (s *service) DownloadURL(ctx context.Context, media *TempMedia) (string, error) {
	return s.blobStore.GetDownloadURL(ctx, media.ObjectKey(), media.OriginalName)
}

func (s *service) ThumbnailURL(ctx context.Context, media *TempMedia) string {
	if !s.conversions {
		return ""
	}
	url, err := s.blobStore.GetPreviewURL(ctx, media.ObjectKey())
	if err != nil {
		return ""
	}
	return url
}

func (s *service) validateFile(req UploadTempMediaRequest) error {
	if req.File == nil || req.OriginalName == "" {
		return ErrInvalidFile
	}
	if req.SizeBytes > s.maxFileSize {
		return ErrFileTooLarge
	}
	if len(s.allowedMimeTypes) > 0 && !s.allowedMimeTypes[req.MimeType] {
		return ErrFileTypeNotAllowed
	}
	return nil
}
