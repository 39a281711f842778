package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// TransactionRepository reads the append-only transaction log. Writes
// happen only inside the ledger operations in UserRepository and
// RedemptionRepository, in the same database transaction as the balance
// change they describe.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// ListByUser retrieves a user's transactions, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, cardID int, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Type,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// SumByUser returns the sum of a user's transaction amounts. At all times
// this must equal the user's denormalized balance.
func (r *TransactionRepository) SumByUser(ctx context.Context, cardID int) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, cardID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}
