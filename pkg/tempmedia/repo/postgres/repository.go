package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medox/temp-media/pkg/tempmedia"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements tempmedia.Repository using PostgreSQL. Row-level
// compare-and-set is expressed in the statements themselves: MarkProcessed
// only touches unprocessed rows and HardDelete reports its row count, so two
// racing terminal transitions on the same id cannot both apply.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const tempMediaColumns = `id, session_id, user_id, original_name, mime_type, size_bytes,
	       expires_at, is_processed, created_at, updated_at, deleted_at`

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateTempMedia(ctx context.Context, media *tempmedia.TempMedia) error {
	query := `
		INSERT INTO temp_media (
			id, session_id, user_id, original_name, mime_type, size_bytes,
			expires_at, is_processed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		media.ID, media.SessionID, media.UserID, media.OriginalName,
		media.MimeType, media.SizeBytes, media.ExpiresAt, media.IsProcessed,
		media.CreatedAt, media.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("create temp media", err)
	}

	return nil
}

func (r *Repository) GetTempMedia(ctx context.Context, id uuid.UUID) (*tempmedia.TempMedia, error) {
	query := `SELECT ` + tempMediaColumns + `
		FROM temp_media WHERE id = $1 AND deleted_at IS NULL`

	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) GetActiveTempMedia(ctx context.Context, id uuid.UUID, now time.Time) (*tempmedia.TempMedia, error) {
	query := `SELECT ` + tempMediaColumns + `
		FROM temp_media
		WHERE id = $1 AND expires_at > $2 AND is_processed = false AND deleted_at IS NULL`

	return r.scanOne(r.db.QueryRow(ctx, query, id, now))
}

func (r *Repository) ListActiveByIDs(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*tempmedia.TempMedia, error) {
	query := `SELECT ` + tempMediaColumns + `
		FROM temp_media
		WHERE id = ANY($1) AND expires_at > $2 AND is_processed = false AND deleted_at IS NULL
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, ids, now)
	if err != nil {
		return nil, r.handlePostgresError("list active temp media", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]*tempmedia.TempMedia, error) {
	query := `SELECT ` + tempMediaColumns + `
		FROM temp_media
		WHERE expires_at <= $1 AND deleted_at IS NULL
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, r.handlePostgresError("list expired temp media", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *Repository) ListProcessed(ctx context.Context) ([]*tempmedia.TempMedia, error) {
	query := `SELECT ` + tempMediaColumns + `
		FROM temp_media
		WHERE is_processed = true AND deleted_at IS NULL
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list processed temp media", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *Repository) CountMatchingOwner(ctx context.Context, ids []uuid.UUID, sessionID, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM temp_media
		WHERE id = ANY($1) AND deleted_at IS NULL
		  AND ($2 = '' OR session_id = $2)
		  AND ($3 = '' OR user_id = $3)`

	var count int64
	if err := r.db.QueryRow(ctx, query, ids, sessionID, userID).Scan(&count); err != nil {
		return 0, r.handlePostgresError("count matching owner", err)
	}

	return count, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	query := `
		UPDATE temp_media SET is_processed = true, updated_at = NOW()
		WHERE id = ANY($1) AND is_processed = false AND deleted_at IS NULL
		RETURNING id`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, r.handlePostgresError("mark processed", err)
	}
	defer rows.Close()

	var flipped []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		flipped = append(flipped, id)
	}

	return flipped, rows.Err()
}

func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE temp_media SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return r.handlePostgresError("soft delete temp media", err)
	}
	if tag.RowsAffected() == 0 {
		return tempmedia.ErrTempMediaNotFound
	}

	return nil
}

func (r *Repository) HardDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM temp_media WHERE id = $1`, id)
	if err != nil {
		return false, r.handlePostgresError("hard delete temp media", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CountStats(ctx context.Context, now time.Time) (*tempmedia.TransferStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE expires_at > $1 AND is_processed = false),
		       COUNT(*) FILTER (WHERE is_processed = true),
		       COUNT(*) FILTER (WHERE expires_at <= $1)
		FROM temp_media WHERE deleted_at IS NULL`

	var stats tempmedia.TransferStats
	err := r.db.QueryRow(ctx, query, now).Scan(&stats.Total, &stats.Active, &stats.Processed, &stats.Expired)
	if err != nil {
		return nil, r.handlePostgresError("count stats", err)
	}

	return &stats, nil
}

// Owned media operations

func (r *Repository) CreateOwnedMedia(ctx context.Context, media *tempmedia.OwnedMedia) error {
	query := `
		INSERT INTO owned_media (
			id, owner_type, owner_key, collection, object_key, file_name,
			original_name, mime_type, size_bytes, order_column, custom_properties, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		media.ID, media.OwnerType, media.OwnerKey, media.Collection,
		media.ObjectKey, media.FileName, media.OriginalName, media.MimeType,
		media.SizeBytes, media.OrderColumn, media.CustomProperties, media.CreatedAt)

	if err != nil {
		return r.handlePostgresError("create owned media", err)
	}

	return nil
}

func (r *Repository) DeleteOwnedMedia(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM owned_media WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete owned media", err)
	}

	return nil
}

func (r *Repository) ListOwnedMedia(ctx context.Context, ownerType, ownerKey, collection string) ([]*tempmedia.OwnedMedia, error) {
	query := `
		SELECT id, owner_type, owner_key, collection, object_key, file_name,
		       original_name, mime_type, size_bytes, order_column, custom_properties, created_at
		FROM owned_media
		WHERE owner_type = $1 AND owner_key = $2 AND ($3 = '' OR collection = $3)
		ORDER BY order_column NULLS LAST, created_at`

	rows, err := r.db.Query(ctx, query, ownerType, ownerKey, collection)
	if err != nil {
		return nil, r.handlePostgresError("list owned media", err)
	}
	defer rows.Close()

	var result []*tempmedia.OwnedMedia
	for rows.Next() {
		var media tempmedia.OwnedMedia
		if err := rows.Scan(
			&media.ID, &media.OwnerType, &media.OwnerKey, &media.Collection,
			&media.ObjectKey, &media.FileName, &media.OriginalName, &media.MimeType,
			&media.SizeBytes, &media.OrderColumn, &media.CustomProperties, &media.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &media)
	}

	return result, rows.Err()
}

// Scan helpers

func (r *Repository) scanOne(row pgx.Row) (*tempmedia.TempMedia, error) {
	var media tempmedia.TempMedia
	err := row.Scan(
		&media.ID, &media.SessionID, &media.UserID, &media.OriginalName,
		&media.MimeType, &media.SizeBytes, &media.ExpiresAt, &media.IsProcessed,
		&media.CreatedAt, &media.UpdatedAt, &media.DeletedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tempmedia.ErrTempMediaNotFound
		}
		return nil, err
	}

	return &media, nil
}

func (r *Repository) scanAll(rows pgx.Rows) ([]*tempmedia.TempMedia, error) {
	var result []*tempmedia.TempMedia
	for rows.Next() {
		var media tempmedia.TempMedia
		if err := rows.Scan(
			&media.ID, &media.SessionID, &media.UserID, &media.OriginalName,
			&media.MimeType, &media.SizeBytes, &media.ExpiresAt, &media.IsProcessed,
			&media.CreatedAt, &media.UpdatedAt, &media.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, &media)
	}

	return result, rows.Err()
}
