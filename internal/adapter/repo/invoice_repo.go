package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"photobot/internal/domain"
)

// InvoiceRepositoryPG implements domain.InvoiceRepository backed by PostgreSQL.
type InvoiceRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository constructs a new invoice repository instance.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepositoryPG {
	return &InvoiceRepositoryPG{pool: pool}
}

// Create inserts a new invoice record.
func (r *InvoiceRepositoryPG) Create(ctx context.Context, inv *domain.Invoice) error {
	query := `
INSERT INTO invoices (user_id, image_id, invoice_id, amount, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at;
`
	status := inv.Status
	if status == "" {
		status = domain.InvoiceStatusPending
	}
	row := r.pool.QueryRow(ctx, query, inv.UserID, nullableID(inv.ImageID), inv.InvoiceID, inv.Amount, status)
	return row.Scan(&inv.ID, &inv.CreatedAt)
}

// MarkSucceeded transitions a pending invoice to succeeded. It reports whether
// this call performed the transition; repeated calls return false.
func (r *InvoiceRepositoryPG) MarkSucceeded(ctx context.Context, invoiceID string) (bool, error) {
	query := `
UPDATE invoices
SET status = $2
WHERE invoice_id = $1 AND status = $3;
`
	tag, err := r.pool.Exec(ctx, query, invoiceID, domain.InvoiceStatusSucceeded, domain.InvoiceStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// LatestForImage returns the most recent invoice issued for the image.
func (r *InvoiceRepositoryPG) LatestForImage(ctx context.Context, imageID int64) (*domain.Invoice, error) {
	query := `
SELECT id, user_id, COALESCE(image_id, 0), invoice_id, amount, status, created_at
FROM invoices
WHERE image_id = $1
ORDER BY created_at DESC
LIMIT 1;
`
	var inv domain.Invoice
	if err := r.pool.QueryRow(ctx, query, imageID).Scan(
		&inv.ID,
		&inv.UserID,
		&inv.ImageID,
		&inv.InvoiceID,
		&inv.Amount,
		&inv.Status,
		&inv.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
