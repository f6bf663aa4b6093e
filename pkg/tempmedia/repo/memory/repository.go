package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medox/temp-media/pkg/tempmedia"
)

// Repository implements tempmedia.Repository using in-memory storage. The
// single mutex makes every row transition atomic, which is what gives the
// compare-and-set guarantees the interface requires.
type Repository struct {
	mu         sync.RWMutex
	media      map[uuid.UUID]*tempmedia.TempMedia
	ownedMedia map[uuid.UUID]*tempmedia.OwnedMedia
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		media:      make(map[uuid.UUID]*tempmedia.TempMedia),
		ownedMedia: make(map[uuid.UUID]*tempmedia.OwnedMedia),
	}
}

// Temp media operations

func (r *Repository) CreateTempMedia(ctx context.Context, media *tempmedia.TempMedia) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	mediaCopy := *media
	r.media[media.ID] = &mediaCopy

	return nil
}

func (r *Repository) GetTempMedia(ctx context.Context, id uuid.UUID) (*tempmedia.TempMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	media, exists := r.media[id]
	if !exists || media.DeletedAt != nil {
		return nil, tempmedia.ErrTempMediaNotFound
	}

	mediaCopy := *media
	return &mediaCopy, nil
}

func (r *Repository) GetActiveTempMedia(ctx context.Context, id uuid.UUID, now time.Time) (*tempmedia.TempMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	media, exists := r.media[id]
	if !exists || !media.IsActive(now) {
		return nil, tempmedia.ErrTempMediaNotFound
	}

	mediaCopy := *media
	return &mediaCopy, nil
}

func (r *Repository) ListActiveByIDs(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*tempmedia.TempMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*tempmedia.TempMedia, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if media, exists := r.media[id]; exists && media.IsActive(now) {
			mediaCopy := *media
			result = append(result, &mediaCopy)
		}
	}

	return result, nil
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]*tempmedia.TempMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*tempmedia.TempMedia
	for _, media := range r.media {
		if media.IsExpired(now) && media.DeletedAt == nil {
			mediaCopy := *media
			result = append(result, &mediaCopy)
		}
	}

	sortByCreatedAt(result)
	return result, nil
}

func (r *Repository) ListProcessed(ctx context.Context) ([]*tempmedia.TempMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*tempmedia.TempMedia
	for _, media := range r.media {
		if media.IsProcessed && media.DeletedAt == nil {
			mediaCopy := *media
			result = append(result, &mediaCopy)
		}
	}

	sortByCreatedAt(result)
	return result, nil
}

func (r *Repository) CountMatchingOwner(ctx context.Context, ids []uuid.UUID, sessionID, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		media, exists := r.media[id]
		if !exists || media.DeletedAt != nil {
			continue
		}
		if sessionID != "" && media.SessionID != sessionID {
			continue
		}
		if userID != "" && media.UserID != userID {
			continue
		}
		count++
	}

	return count, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []uuid.UUID
	now := time.Now().UTC()
	for _, id := range ids {
		media, exists := r.media[id]
		if !exists || media.DeletedAt != nil || media.IsProcessed {
			continue
		}
		media.IsProcessed = true
		media.UpdatedAt = now
		flipped = append(flipped, id)
	}

	return flipped, nil
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	media, exists := r.media[id]
	if !exists || media.DeletedAt != nil {
		return tempmedia.ErrTempMediaNotFound
	}

	now := time.Now().UTC()
	media.DeletedAt = &now
	media.UpdatedAt = now
	return nil
}

func (r *Repository) HardDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.media[id]; !exists {
		return false, nil
	}

	delete(r.media, id)
	return true, nil
}

func (r *Repository) CountStats(ctx context.Context, now time.Time) (*tempmedia.TransferStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &tempmedia.TransferStats{}
	for _, media := range r.media {
		if media.DeletedAt != nil {
			continue
		}
		stats.Total++
		if media.IsActive(now) {
			stats.Active++
		}
		if media.IsProcessed {
			stats.Processed++
		}
		if media.IsExpired(now) {
			stats.Expired++
		}
	}

	return stats, nil
}

// Owned media operations

func (r *Repository) CreateOwnedMedia(ctx context.Context, media *tempmedia.OwnedMedia) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mediaCopy := *media
	r.ownedMedia[media.ID] = &mediaCopy

	return nil
}

func (r *Repository) DeleteOwnedMedia(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.ownedMedia, id)
	return nil
}

func (r *Repository) ListOwnedMedia(ctx context.Context, ownerType, ownerKey, collection string) ([]*tempmedia.OwnedMedia, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*tempmedia.OwnedMedia
	for _, media := range r.ownedMedia {
		if media.OwnerType != ownerType || media.OwnerKey != ownerKey {
			continue
		}
		if collection != "" && media.Collection != collection {
			continue
		}
		mediaCopy := *media
		result = append(result, &mediaCopy)
	}

	// Collections are ordered by the transfer-assigned order column, then by
	// creation time for items without one.
	sort.SliceStable(result, func(i, j int) bool {
		oi, oj := result[i].OrderColumn, result[j].OrderColumn
		switch {
		case oi != nil && oj != nil:
			return *oi < *oj
		case oi != nil:
			return true
		case oj != nil:
			return false
		default:
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
	})

	return result, nil
}

func sortByCreatedAt(media []*tempmedia.TempMedia) {
	sort.Slice(media, func(i, j int) bool {
		return media[i].CreatedAt.Before(media[j].CreatedAt)
	})
}
