package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photobot/internal/domain"
)

// ImageRepositoryPG implements domain.ImageRepository backed by PostgreSQL.
type ImageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageRepository creates a new image repository backed by PostgreSQL.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepositoryPG {
	return &ImageRepositoryPG{pool: pool}
}

const imageColumns = `
id, user_id, image_key,
original_ref,
std_transparent_ref, std_mono_ref, std_transparent_wm_ref, std_mono_wm_ref,
imp_transparent_ref, imp_mono_ref, imp_transparent_wm_ref, imp_mono_wm_ref,
paid, stage, created_at, updated_at`

// Create inserts a new image record and fills in the generated id and timestamps.
func (r *ImageRepositoryPG) Create(ctx context.Context, img *domain.Image) error {
	query := `
INSERT INTO images (
    user_id, image_key, original_ref,
    std_transparent_ref, std_mono_ref, std_transparent_wm_ref, std_mono_wm_ref
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query,
		img.UserID,
		img.Key,
		img.Original,
		img.StdTransparent,
		img.StdMono,
		img.StdTransparentWM,
		img.StdMonoWM,
	)
	return row.Scan(&img.ID, &img.CreatedAt, &img.UpdatedAt)
}

// GetByKey fetches an image by its opaque key.
func (r *ImageRepositoryPG) GetByKey(ctx context.Context, key string) (*domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE image_key = $1;`
	return scanImage(r.pool.QueryRow(ctx, query, key))
}

// GetByID fetches an image by its numeric identifier.
func (r *ImageRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1;`
	return scanImage(r.pool.QueryRow(ctx, query, id))
}

// MarkPaid flips the image into its terminal state. The write is idempotent.
func (r *ImageRepositoryPG) MarkPaid(ctx context.Context, key string) error {
	query := `
UPDATE images
SET paid = TRUE, stage = $2, updated_at = NOW()
WHERE image_key = $1;
`
	tag, err := r.pool.Exec(ctx, query, key, domain.StagePaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveImprovedRefs persists the improved artifact references in one write.
func (r *ImageRepositoryPG) SaveImprovedRefs(ctx context.Context, key string, refs domain.ImprovedRefs) error {
	query := `
UPDATE images
SET imp_transparent_ref = $2,
    imp_mono_ref = $3,
    imp_transparent_wm_ref = $4,
    imp_mono_wm_ref = $5,
    updated_at = NOW()
WHERE image_key = $1;
`
	tag, err := r.pool.Exec(ctx, query, key, refs.Transparent, refs.Mono, refs.TransparentWM, refs.MonoWM)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveStageMessageIDs replaces the stage's outbound message id list wholesale.
func (r *ImageRepositoryPG) SaveStageMessageIDs(ctx context.Context, key string, stage domain.Stage, ids []int64) error {
	column, err := stageMessageColumn(stage)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []int64{}
	}
	query := fmt.Sprintf(`UPDATE images SET %s = $2, updated_at = NOW() WHERE image_key = $1;`, column)
	tag, err := r.pool.Exec(ctx, query, key, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// StageMessageIDs returns the message ids recorded for the stage's offer.
func (r *ImageRepositoryPG) StageMessageIDs(ctx context.Context, key string, stage domain.Stage) ([]int64, error) {
	column, err := stageMessageColumn(stage)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM images WHERE image_key = $1;`, column)
	var ids []int64
	if err := r.pool.QueryRow(ctx, query, key).Scan(&ids); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ids, nil
}

// MarkStageSent advances the image to the given stage. The conditional update
// enforces the stage chain and excludes paid images, so an out-of-order or
// post-payment transition never reaches the row.
func (r *ImageRepositoryPG) MarkStageSent(ctx context.Context, key string, stage domain.Stage) error {
	if stage <= domain.StageNew || stage >= domain.StagePaid {
		return fmt.Errorf("%w: cannot mark stage %s", domain.ErrStageOrder, stage)
	}
	query := `
UPDATE images
SET stage = $2, updated_at = NOW()
WHERE image_key = $1 AND paid = FALSE AND stage = $2 - 1;
`
	tag, err := r.pool.Exec(ctx, query, key, stage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	img, err := r.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	if img.Paid {
		return domain.ErrImagePaid
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrStageOrder, img.Stage, stage)
}

// CountUnpaidSince counts a requester's unpaid images created within the window.
func (r *ImageRepositoryPG) CountUnpaidSince(ctx context.Context, telegramID int64, window time.Duration) (int, error) {
	query := `
SELECT COUNT(*)
FROM images i
JOIN users u ON u.id = i.user_id
WHERE u.telegram_id = $1 AND i.paid = FALSE AND i.created_at >= $2;
`
	var count int
	err := r.pool.QueryRow(ctx, query, telegramID, time.Now().UTC().Add(-window)).Scan(&count)
	return count, err
}

// ListUnpaid returns every unpaid image, oldest first, together with the
// requester chat id of its owner.
func (r *ImageRepositoryPG) ListUnpaid(ctx context.Context) ([]domain.UnpaidImage, error) {
	query := `
SELECT i.id, i.user_id, i.image_key,
       i.original_ref,
       i.std_transparent_ref, i.std_mono_ref, i.std_transparent_wm_ref, i.std_mono_wm_ref,
       i.imp_transparent_ref, i.imp_mono_ref, i.imp_transparent_wm_ref, i.imp_mono_wm_ref,
       i.paid, i.stage, i.created_at, i.updated_at,
       u.telegram_id
FROM images i
JOIN users u ON u.id = i.user_id
WHERE i.paid = FALSE
ORDER BY i.created_at ASC;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.UnpaidImage
	for rows.Next() {
		var item domain.UnpaidImage
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Key,
			&item.Original,
			&item.StdTransparent,
			&item.StdMono,
			&item.StdTransparentWM,
			&item.StdMonoWM,
			&item.ImpTransparent,
			&item.ImpMono,
			&item.ImpTransparentWM,
			&item.ImpMonoWM,
			&item.Paid,
			&item.Stage,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.RequesterID,
		); err != nil {
			return nil, err
		}
		images = append(images, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

// CountUnpaid returns the total number of unpaid images.
func (r *ImageRepositoryPG) CountUnpaid(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images WHERE paid = FALSE;`).Scan(&count)
	return count, err
}

func stageMessageColumn(stage domain.Stage) (string, error) {
	switch stage {
	case domain.StageNew:
		return "initial_message_ids", nil
	case domain.StageImprovedOffered:
		return "improved_message_ids", nil
	case domain.StageDiscount290Offered:
		return "discount_290_message_ids", nil
	case domain.StageDiscount190Offered:
		return "discount_190_message_ids", nil
	case domain.StageDiscount99Offered:
		return "discount_99_message_ids", nil
	default:
		return "", fmt.Errorf("no message column for stage %s", stage)
	}
}

func scanImage(row pgx.Row) (*domain.Image, error) {
	var img domain.Image
	if err := row.Scan(
		&img.ID,
		&img.UserID,
		&img.Key,
		&img.Original,
		&img.StdTransparent,
		&img.StdMono,
		&img.StdTransparentWM,
		&img.StdMonoWM,
		&img.ImpTransparent,
		&img.ImpMono,
		&img.ImpTransparentWM,
		&img.ImpMonoWM,
		&img.Paid,
		&img.Stage,
		&img.CreatedAt,
		&img.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}
