package domain

import "time"

// User is a requester identified by a stable Telegram id.
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	CreatedAt  time.Time
}

// UserStats is the aggregate exposed on the stats endpoint.
type UserStats struct {
	NewToday     int64
	NewYesterday int64
	Total        int64
}
