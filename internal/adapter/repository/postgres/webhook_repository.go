package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

type WebhookLogRepository struct {
	db *sqlx.DB
}

func NewWebhookLogRepository(db *sqlx.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) CreateWebhookLog(ctx context.Context, log *domain.WebhookLog) error {
	query := `
	INSERT INTO webhook_logs (id, provider, payload, signature, verified)
	VALUES (:id, :provider, :payload, :signature, :verified)
	`

	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}

	return nil
}
