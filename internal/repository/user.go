// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateUser       = errors.New("user already registered")
	ErrCapacityExceeded    = errors.New("card id pool exhausted")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRequestNotFound     = errors.New("redemption request not found")
)

// cardAllocLockKey is the advisory lock key serializing card id assignment.
// Two concurrent registrations must not pick the same smallest free id.
const cardAllocLockKey = 8811001

// UserRepository handles user data persistence and the balance side of the
// ledger. Every balance mutation and its transaction-log row commit in one
// database transaction.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `COALESCE(id, 0), telegram_id, first_name, last_name, phone, balance, registration_complete, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Balance,
		&user.RegistrationComplete,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// EnsurePlaceholder creates an incomplete user row for a Telegram identity
// on first contact. Returns the user and whether the row was newly created.
// The card id stays unassigned until registration completes.
func (r *UserRepository) EnsurePlaceholder(ctx context.Context, telegramID int64) (*model.User, bool, error) {
	const insert = `
		INSERT INTO users (telegram_id)
		VALUES ($1)
		ON CONFLICT (telegram_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, insert, telegramID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create placeholder user: %w", err)
	}

	user, err := r.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}

	return user, tag.RowsAffected() > 0, nil
}

// GetByTelegramID retrieves a user by their Telegram identity.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByCardID retrieves a registered user by loyalty card id.
func (r *UserRepository) GetByCardID(ctx context.Context, cardID int) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, cardID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by card id: %w", err)
	}
	return user, nil
}

// FindByPhone retrieves a registered user by exact phone match.
func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1 AND registration_complete`

	user, err := scanUser(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return user, nil
}

// ListRegistered retrieves all fully registered users in creation order.
func (r *UserRepository) ListRegistered(ctx context.Context) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE registration_complete
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// CompleteRegistration finishes enrollment for a Telegram identity: assigns
// the smallest free card id in [1, maxCardID], stores the profile, credits
// the welcome bonus and writes its transaction row, all atomically.
//
// Returns ErrDuplicateUser if the identity already completed registration
// and ErrCapacityExceeded when the card id pool is full.
func (r *UserRepository) CompleteRegistration(ctx context.Context, telegramID int64, firstName, lastName, phone string, welcomeBonus int64, maxCardID int) (*model.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize card id assignment across concurrent registrations.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, cardAllocLockKey); err != nil {
		return nil, fmt.Errorf("failed to acquire card allocation lock: %w", err)
	}

	var complete bool
	err = tx.QueryRow(ctx,
		`SELECT registration_complete FROM users WHERE telegram_id = $1 FOR UPDATE`,
		telegramID,
	).Scan(&complete)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to check registration state: %w", err)
		}
		// First contact happened without a placeholder; create the row here.
		if _, err := tx.Exec(ctx, `INSERT INTO users (telegram_id) VALUES ($1)`, telegramID); err != nil {
			return nil, fmt.Errorf("failed to create user row: %w", err)
		}
	}
	if complete {
		return nil, ErrDuplicateUser
	}

	// Smallest unused card id in range. Printed cards dictate the pool.
	var cardID int
	err = tx.QueryRow(ctx, `
		SELECT gs.id
		FROM generate_series(1, $1) AS gs(id)
		LEFT JOIN users u ON u.id = gs.id
		WHERE u.id IS NULL
		ORDER BY gs.id
		LIMIT 1
	`, maxCardID).Scan(&cardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCapacityExceeded
		}
		return nil, fmt.Errorf("failed to allocate card id: %w", err)
	}

	user, err := scanUser(tx.QueryRow(ctx, `
		UPDATE users
		SET id = $2,
		    first_name = $3,
		    last_name = $4,
		    phone = $5,
		    balance = $6,
		    registration_complete = TRUE
		WHERE telegram_id = $1
		RETURNING `+userColumns,
		telegramID, cardID, firstName, lastName, phone, welcomeBonus,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to complete registration: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, amount, type, description)
		VALUES ($1, $2, $3, $4)
	`, cardID, welcomeBonus, model.TxTypeWelcome, "Приветственный бонус за регистрацию")
	if err != nil {
		return nil, fmt.Errorf("failed to record welcome bonus: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}

	return user, nil
}

// AdjustBalance applies a signed delta to a user's balance and appends the
// matching transaction row in the same database transaction. The update is
// conditional on the resulting balance staying non-negative, so concurrent
// debits cannot overdraw the account.
//
// Returns the new balance, ErrInsufficientBalance when the delta would make
// the balance negative, or ErrUserNotFound.
func (r *UserRepository) AdjustBalance(ctx context.Context, cardID int, delta int64, txType, description string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := adjustBalanceTx(ctx, tx, cardID, delta, txType, description)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit balance adjustment: %w", err)
	}

	return newBalance, nil
}

// adjustBalanceTx performs the conditional balance update and the
// transaction-log insert inside the caller's database transaction.
func adjustBalanceTx(ctx context.Context, tx pgx.Tx, cardID int, delta int64, txType, description string) (int64, error) {
	const update = `
		UPDATE users
		SET balance = balance + $2
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance
	`

	var newBalance int64
	err := tx.QueryRow(ctx, update, cardID, delta).Scan(&newBalance)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("failed to adjust balance: %w", err)
		}
		// No row updated: either the user is missing or the debit would
		// overdraw. Tell the two apart for the error taxonomy.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, cardID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientBalance
	}

	const insert = `
		INSERT INTO transactions (user_id, amount, type, description)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insert, cardID, delta, txType, description); err != nil {
		return 0, fmt.Errorf("failed to record transaction: %w", err)
	}

	return newBalance, nil
}

// CountRegistered returns the number of fully registered users.
func (r *UserRepository) CountRegistered(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE registration_complete`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registered users: %w", err)
	}
	return count, nil
}

// SumBalances returns the total outstanding points across all users.
func (r *UserRepository) SumBalances(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM users`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum balances: %w", err)
	}
	return total, nil
}
