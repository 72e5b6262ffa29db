package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"photobot/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// GetOrCreate upserts a user keyed by Telegram id and returns the record.
func (r *UserRepositoryPG) GetOrCreate(ctx context.Context, telegramID int64, username, firstName string) (*domain.User, error) {
	query := `
INSERT INTO users (telegram_id, username, first_name)
VALUES ($1, $2, $3)
ON CONFLICT (telegram_id) DO UPDATE
SET username = EXCLUDED.username,
    first_name = EXCLUDED.first_name
RETURNING id, telegram_id, username, first_name, created_at;
`
	var user domain.User
	row := r.pool.QueryRow(ctx, query, telegramID, username, firstName)
	if err := row.Scan(&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// HasSucceededInvoice reports whether the requester has ever settled an invoice.
func (r *UserRepositoryPG) HasSucceededInvoice(ctx context.Context, telegramID int64) (bool, error) {
	query := `
SELECT EXISTS (
    SELECT 1
    FROM invoices i
    JOIN users u ON u.id = i.user_id
    WHERE u.telegram_id = $1 AND i.status = $2
);
`
	var exists bool
	err := r.pool.QueryRow(ctx, query, telegramID, domain.InvoiceStatusSucceeded).Scan(&exists)
	return exists, err
}

// Stats returns user counters for the stats endpoint.
func (r *UserRepositoryPG) Stats(ctx context.Context) (*domain.UserStats, error) {
	query := `
SELECT
    COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())),
    COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW()) - INTERVAL '1 day'
                       AND created_at < date_trunc('day', NOW())),
    COUNT(*)
FROM users;
`
	var stats domain.UserStats
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.NewToday, &stats.NewYesterday, &stats.Total); err != nil {
		return nil, err
	}
	return &stats, nil
}
