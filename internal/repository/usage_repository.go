package repository

import (
	"context"
	"fmt"
	"time"

	"chatdesk/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

// IncrementSent increments messages_sent for today
func (r *UsageRepository) IncrementSent(ctx context.Context, tenantID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_usage (tenant_id, date, messages_sent, messages_received)
		VALUES ($1, CURRENT_DATE, 1, 0)
		ON CONFLICT (tenant_id, date)
		DO UPDATE SET messages_sent = message_usage.messages_sent + 1
	`, tenantID)
	if err != nil {
		return fmt.Errorf("increment sent: %w", err)
	}
	return nil
}

// IncrementReceived increments messages_received for today
func (r *UsageRepository) IncrementReceived(ctx context.Context, tenantID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_usage (tenant_id, date, messages_sent, messages_received)
		VALUES ($1, CURRENT_DATE, 0, 1)
		ON CONFLICT (tenant_id, date)
		DO UPDATE SET messages_received = message_usage.messages_received + 1
	`, tenantID)
	if err != nil {
		return fmt.Errorf("increment received: %w", err)
	}
	return nil
}

// GetUsageHistory returns last N days of usage
func (r *UsageRepository) GetUsageHistory(ctx context.Context, tenantID string, days int) ([]entities.DailyUsage, error) {
	startDate := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Query(ctx, `
		SELECT date, messages_sent, messages_received
		FROM message_usage
		WHERE tenant_id = $1 AND date >= $2
		ORDER BY date ASC
	`, tenantID, startDate)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	usage := []entities.DailyUsage{}
	for rows.Next() {
		var u entities.DailyUsage
		if err := rows.Scan(&u.Date, &u.MessagesSent, &u.MessagesReceived); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
