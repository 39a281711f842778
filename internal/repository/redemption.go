package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// RedemptionRepository handles point-redemption requests and their
// admin-moderated lifecycle: pending -> approved | rejected, exactly once.
type RedemptionRepository struct {
	pool *pgxpool.Pool
}

// NewRedemptionRepository creates a new RedemptionRepository instance.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// PendingRequest pairs a pending request with its requesting user, for the
// admin review list.
type PendingRequest struct {
	Request *model.RedemptionRequest
	User    *model.User
}

// Create inserts a pending redemption request after checking the amount
// against the user's current balance. The balance is not debited here;
// that happens only on approval.
//
// Returns ErrInsufficientBalance when amount exceeds the balance and
// ErrUserNotFound for an unknown card id.
func (r *RedemptionRepository) Create(ctx context.Context, cardID int, amount int64) (*model.RedemptionRequest, error) {
	// Insert conditionally so a concurrent debit between the read and the
	// write cannot slip an over-balance request in.
	const query = `
		INSERT INTO redemption_requests (user_id, amount, status)
		SELECT id, $2, $3 FROM users
		WHERE id = $1 AND registration_complete AND balance >= $2
		RETURNING id, user_id, amount, status, admin_id, processed_at, created_at
	`

	request, err := scanRedemption(r.pool.QueryRow(ctx, query, cardID, amount, model.RedemptionPending))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to create redemption request: %w", err)
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND registration_complete)`, cardID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientBalance
	}

	return request, nil
}

// ListPending retrieves all pending requests with their requesting users,
// oldest first.
func (r *RedemptionRepository) ListPending(ctx context.Context) ([]*PendingRequest, error) {
	const query = `
		SELECT r.id, r.user_id, r.amount, r.status, r.admin_id, r.processed_at, r.created_at,
		       ` + prefixedUserColumns + `
		FROM redemption_requests r
		JOIN users u ON u.id = r.user_id
		WHERE r.status = $1
		ORDER BY r.created_at, r.id
	`

	rows, err := r.pool.Query(ctx, query, model.RedemptionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending redemptions: %w", err)
	}
	defer rows.Close()

	var pending []*PendingRequest
	for rows.Next() {
		var req model.RedemptionRequest
		var user model.User
		err := rows.Scan(
			&req.ID, &req.UserID, &req.Amount, &req.Status, &req.AdminID, &req.ProcessedAt, &req.CreatedAt,
			&user.ID, &user.TelegramID, &user.FirstName, &user.LastName, &user.Phone,
			&user.Balance, &user.RegistrationComplete, &user.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending redemption: %w", err)
		}
		pending = append(pending, &PendingRequest{Request: &req, User: &user})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending redemptions: %w", err)
	}

	return pending, nil
}

const prefixedUserColumns = `u.id, u.telegram_id, u.first_name, u.last_name, u.phone, u.balance, u.registration_complete, u.created_at`

// Resolution describes the outcome of a resolved redemption request.
type Resolution struct {
	Request    *model.RedemptionRequest
	User       *model.User
	NewBalance int64
}

// Resolve moves a pending request to its terminal state. On approval the
// user's balance is debited and the transaction row written in the same
// database transaction; if the balance has dropped below the requested
// amount since creation, the whole resolution fails with
// ErrInsufficientBalance and the request stays pending.
//
// Returns ErrRequestNotFound when no pending request has the given id
// (already-resolved requests are not found on purpose: a terminal request
// is immutable).
func (r *RedemptionRepository) Resolve(ctx context.Context, requestID int64, adminID int64, approve bool) (*Resolution, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	request, err := scanRedemption(tx.QueryRow(ctx, `
		SELECT id, user_id, amount, status, admin_id, processed_at, created_at
		FROM redemption_requests
		WHERE id = $1 AND status = $2
		FOR UPDATE
	`, requestID, model.RedemptionPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to load redemption request: %w", err)
	}

	res := &Resolution{Request: request}

	status := model.RedemptionRejected
	if approve {
		status = model.RedemptionApproved
		desc := fmt.Sprintf("Списание %d баллов по запросу #%d", request.Amount, request.ID)
		newBalance, err := adjustBalanceTx(ctx, tx, request.UserID, -request.Amount, model.TxTypeRedemption, desc)
		if err != nil {
			// ErrInsufficientBalance rolls everything back: the request
			// stays pending and the admin is told why.
			return nil, err
		}
		res.NewBalance = newBalance
	}

	err = tx.QueryRow(ctx, `
		UPDATE redemption_requests
		SET status = $2, admin_id = $3, processed_at = NOW()
		WHERE id = $1
		RETURNING status, admin_id, processed_at
	`, requestID, status, adminID).Scan(&request.Status, &request.AdminID, &request.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize redemption request: %w", err)
	}

	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, request.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to load requesting user: %w", err)
	}
	res.User = user
	if !approve {
		res.NewBalance = user.Balance
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit redemption resolution: %w", err)
	}

	return res, nil
}

// CountPending returns the number of pending redemption requests.
func (r *RedemptionRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM redemption_requests WHERE status = $1`, model.RedemptionPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending redemptions: %w", err)
	}
	return count, nil
}

func scanRedemption(row pgx.Row) (*model.RedemptionRequest, error) {
	var req model.RedemptionRequest
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.Amount,
		&req.Status,
		&req.AdminID,
		&req.ProcessedAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
