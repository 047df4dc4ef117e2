package postgres

import (
	"context"
	"fmt"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
)

// PaymentRepository implements repository.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	pool database.DBTX
}

// NewPaymentRepository creates a new PostgreSQL-backed payment transaction repository.
func NewPaymentRepository(pool database.DBTX) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a payment transaction record.
func (r *PaymentRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (id, subscription_id, amount, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.SubscriptionID,
		tx.Amount,
		tx.Status,
		tx.Reference,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}

	return nil
}

// AggregateRevenue sums completed transaction amounts.
func (r *PaymentRepository) AggregateRevenue(ctx context.Context) (*domain.RevenueSummary, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM payment_transactions
		WHERE status = 'completed'`

	var summary domain.RevenueSummary
	err := r.pool.QueryRow(ctx, query).Scan(&summary.TotalRevenue, &summary.TransactionCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate revenue: %w", err)
	}

	return &summary, nil
}
