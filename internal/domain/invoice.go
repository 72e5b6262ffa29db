package domain

import "time"

// InvoiceStatus enumerates gateway-visible settlement states.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusSucceeded InvoiceStatus = "succeeded"
)

// Invoice is the persistent record of one payment request. InvoiceID is the
// gateway identifier and is unique.
type Invoice struct {
	ID        int64
	UserID    int64
	ImageID   int64
	InvoiceID string
	Amount    int
	Status    InvoiceStatus
	CreatedAt time.Time
}
