package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for requesters.
type UserRepository interface {
	GetOrCreate(ctx context.Context, telegramID int64, username, firstName string) (*User, error)
	HasSucceededInvoice(ctx context.Context, telegramID int64) (bool, error)
	Stats(ctx context.Context) (*UserStats, error)
}

// ImageRepository defines persistence for processed images. Every write is
// atomic; MarkStageSent enforces the stage chain and refuses transitions on
// paid images.
type ImageRepository interface {
	Create(ctx context.Context, img *Image) error
	GetByKey(ctx context.Context, key string) (*Image, error)
	GetByID(ctx context.Context, id int64) (*Image, error)
	MarkPaid(ctx context.Context, key string) error
	SaveImprovedRefs(ctx context.Context, key string, refs ImprovedRefs) error
	SaveStageMessageIDs(ctx context.Context, key string, stage Stage, ids []int64) error
	StageMessageIDs(ctx context.Context, key string, stage Stage) ([]int64, error)
	MarkStageSent(ctx context.Context, key string, stage Stage) error
	CountUnpaidSince(ctx context.Context, telegramID int64, window time.Duration) (int, error)
	ListUnpaid(ctx context.Context) ([]UnpaidImage, error)
	CountUnpaid(ctx context.Context) (int64, error)
}

// InvoiceRepository handles persistence for payment invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	// MarkSucceeded flips a pending invoice to succeeded and reports whether
	// this call performed the transition. A second call returns false, which
	// keeps delivery idempotent.
	MarkSucceeded(ctx context.Context, invoiceID string) (bool, error)
	LatestForImage(ctx context.Context, imageID int64) (*Invoice, error)
}
