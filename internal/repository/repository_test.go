// Tests use testcontainers-go to spin up a PostgreSQL container and run
// the same schema the production migrations apply.
package repository

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the same schema the bot applies on startup.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			id INT UNIQUE CHECK (id >= 1),
			first_name VARCHAR(100) NOT NULL DEFAULT '',
			last_name VARCHAR(100) NOT NULL DEFAULT '',
			phone VARCHAR(20) NOT NULL DEFAULT '',
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			registration_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGSERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			date VARCHAR(20) NOT NULL,
			time VARCHAR(10) NOT NULL,
			guests INT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS redemption_requests (
			id BIGSERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			amount BIGINT NOT NULL CHECK (amount > 0),
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			admin_id BIGINT,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const (
	testWelcomeBonus = 100
	testMaxCardID    = 3000
)

// registerUser completes enrollment for a fresh Telegram identity and
// returns the resulting user.
func registerUser(t *testing.T, repo *UserRepository, telegramID int64) *model.User {
	t.Helper()
	user, err := repo.CompleteRegistration(
		context.Background(), telegramID,
		"Иван", "Петров", fmt.Sprintf("+7916%07d", telegramID),
		testWelcomeBonus, testMaxCardID,
	)
	require.NoError(t, err)
	return user
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_EnsurePlaceholder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// First contact creates an incomplete row
	user, created, err := repo.EnsurePlaceholder(ctx, 12345)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, 0, user.ID) // no card id yet
	assert.False(t, user.RegistrationComplete)
	assert.Equal(t, int64(0), user.Balance)

	// Second contact is a no-op
	user, created, err = repo.EnsurePlaceholder(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(12345), user.TelegramID)
}

func TestUserRepository_CompleteRegistration(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, _, err := repo.EnsurePlaceholder(ctx, 12345)
	require.NoError(t, err)

	user, err := repo.CompleteRegistration(ctx, 12345, "Иван", "Петров", "+79161234567", testWelcomeBonus, testMaxCardID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID) // first card in the pool
	assert.Equal(t, "Иван", user.FirstName)
	assert.Equal(t, "Петров", user.LastName)
	assert.Equal(t, "+79161234567", user.Phone)
	assert.True(t, user.RegistrationComplete)
	assert.Equal(t, int64(testWelcomeBonus), user.Balance)

	// Exactly one transaction: the welcome bonus
	transactions, err := txRepo.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, int64(testWelcomeBonus), transactions[0].Amount)
	assert.Equal(t, model.TxTypeWelcome, transactions[0].Type)

	// Registering the same identity again is rejected
	_, err = repo.CompleteRegistration(ctx, 12345, "Иван", "Петров", "+79161234567", testWelcomeBonus, testMaxCardID)
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestUserRepository_CompleteRegistrationWithoutPlaceholder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// No prior /start happened; registration still succeeds
	user, err := repo.CompleteRegistration(ctx, 99999, "Анна", "Смирнова", "+79160000001", testWelcomeBonus, testMaxCardID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.True(t, user.RegistrationComplete)
}

func TestUserRepository_SmallestFreeCardID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)

	// Sequential registrations get sequential card ids
	u1 := registerUser(t, repo, 1001)
	u2 := registerUser(t, repo, 1002)
	u3 := registerUser(t, repo, 1003)
	assert.Equal(t, 1, u1.ID)
	assert.Equal(t, 2, u2.ID)
	assert.Equal(t, 3, u3.ID)
}

func TestUserRepository_CapacityExceeded(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	// A two-card pool fills after two registrations
	for i, telegramID := range []int64{2001, 2002} {
		user, err := repo.CompleteRegistration(ctx, telegramID, "Иван", "Петров", fmt.Sprintf("+7916%07d", telegramID), testWelcomeBonus, 2)
		require.NoError(t, err)
		assert.Equal(t, i+1, user.ID)
	}

	_, err := repo.CompleteRegistration(ctx, 2003, "Иван", "Петров", "+79160002003", testWelcomeBonus, 2)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestUserRepository_GetByCardID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	registered := registerUser(t, repo, 3001)

	user, err := repo.GetByCardID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3001), user.TelegramID)

	_, err = repo.GetByCardID(ctx, 2999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_FindByPhone(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	registered := registerUser(t, repo, 3001)

	user, err := repo.FindByPhone(ctx, registered.Phone)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = repo.FindByPhone(ctx, "+70000000000")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ListRegistered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	registerUser(t, repo, 4001)
	registerUser(t, repo, 4002)

	// Placeholders never appear in the list
	_, _, err := repo.EnsurePlaceholder(ctx, 4003)
	require.NoError(t, err)

	users, err := repo.ListRegistered(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, 1, users[0].ID)
	assert.Equal(t, 2, users[1].ID)

	count, err := repo.CountRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUserRepository_AdjustBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user := registerUser(t, repo, 5001) // balance 100

	// Credit
	balance, err := repo.AdjustBalance(ctx, user.ID, 500, model.TxTypeAdminCredit, "test credit")
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)

	// Debit
	balance, err = repo.AdjustBalance(ctx, user.ID, -300, model.TxTypeAdminDebit, "test debit")
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	// Debit to exactly zero is allowed
	balance, err = repo.AdjustBalance(ctx, user.ID, -300, model.TxTypeAdminDebit, "test debit")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// Unknown card id
	_, err = repo.AdjustBalance(ctx, 2999, 100, model.TxTypeAdminCredit, "test")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_AdjustBalanceOverdraw(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, repo, 5001) // balance 100

	_, err := repo.AdjustBalance(ctx, user.ID, -101, model.TxTypeAdminDebit, "overdraw attempt")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Balance untouched and no transaction row written
	reloaded, err := repo.GetByCardID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.Balance)

	transactions, err := txRepo.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, transactions, 1) // welcome bonus only
}

func TestUserRepository_BalanceMatchesTransactionSum(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, repo, 6001)

	deltas := []int64{250, -80, 1000, -170, -1000, 42}
	for _, delta := range deltas {
		txType := model.TxTypeAdminCredit
		if delta < 0 {
			txType = model.TxTypeAdminDebit
		}
		_, err := repo.AdjustBalance(ctx, user.ID, delta, txType, "ledger check")
		require.NoError(t, err)
	}

	// The balance is exactly the sum of the transaction log
	reloaded, err := repo.GetByCardID(ctx, user.ID)
	require.NoError(t, err)
	sum, err := txRepo.SumByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, reloaded.Balance, sum)

	total, err := repo.SumBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, reloaded.Balance, total)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_ListByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, repo, 7001)
	for i := 1; i <= 5; i++ {
		_, err := repo.AdjustBalance(ctx, user.ID, int64(i*10), model.TxTypeAdminCredit, fmt.Sprintf("credit %d", i))
		require.NoError(t, err)
	}

	// Newest first, limit honored
	transactions, err := txRepo.ListByUser(ctx, user.ID, 3)
	require.NoError(t, err)
	require.Len(t, transactions, 3)
	assert.Equal(t, int64(50), transactions[0].Amount)
	assert.Equal(t, int64(40), transactions[1].Amount)
	assert.Equal(t, int64(30), transactions[2].Amount)

	// Other users see nothing
	other := registerUser(t, repo, 7002)
	transactions, err = txRepo.ListByUser(ctx, other.ID, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, model.TxTypeWelcome, transactions[0].Type)
}

// ============================================================================
// BookingRepository Tests
// ============================================================================

func TestBookingRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	bookingRepo := NewBookingRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 8001)

	booking, err := bookingRepo.Create(ctx, user.ID, "25.12.2024", "19:30", 4)
	require.NoError(t, err)
	assert.Equal(t, user.ID, booking.UserID)
	assert.Equal(t, "25.12.2024", booking.Date)
	assert.Equal(t, "19:30", booking.Time)
	assert.Equal(t, 4, booking.Guests)
	assert.Equal(t, model.BookingPending, booking.Status)
	assert.False(t, booking.CreatedAt.IsZero())

	bookings, err := bookingRepo.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	count, err := bookingRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBookingRepository_SetStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	bookingRepo := NewBookingRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 8001)
	booking, err := bookingRepo.Create(ctx, user.ID, "25.12.2024", "19:30", 2)
	require.NoError(t, err)

	err = bookingRepo.SetStatus(ctx, booking.ID, model.BookingConfirmed)
	require.NoError(t, err)

	bookings, err := bookingRepo.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, model.BookingConfirmed, bookings[0].Status)
}

// ============================================================================
// RedemptionRepository Tests
// ============================================================================

func TestRedemptionRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 9001) // balance 100

	request, err := redemptionRepo.Create(ctx, user.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, user.ID, request.UserID)
	assert.Equal(t, int64(60), request.Amount)
	assert.Equal(t, model.RedemptionPending, request.Status)
	assert.Nil(t, request.AdminID)
	assert.Nil(t, request.ProcessedAt)

	// Creation never touches the balance
	reloaded, err := userRepo.GetByCardID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.Balance)

	count, err := redemptionRepo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedemptionRepository_CreateOverBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 9001) // balance 100

	_, err := redemptionRepo.Create(ctx, user.ID, 150)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// One point over is still over
	_, err = redemptionRepo.Create(ctx, user.ID, 101)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = redemptionRepo.Create(ctx, 2999, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)

	count, err := redemptionRepo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRedemptionRepository_Approve(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 9001) // balance 100
	request, err := redemptionRepo.Create(ctx, user.ID, 60)
	require.NoError(t, err)

	const adminID = int64(777)
	res, err := redemptionRepo.Resolve(ctx, request.ID, adminID, true)
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionApproved, res.Request.Status)
	require.NotNil(t, res.Request.AdminID)
	assert.Equal(t, adminID, *res.Request.AdminID)
	assert.NotNil(t, res.Request.ProcessedAt)
	assert.Equal(t, int64(40), res.NewBalance)
	assert.Equal(t, user.ID, res.User.ID)

	// The debit landed in the transaction log
	transactions, err := txRepo.ListByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, int64(-60), transactions[0].Amount)
	assert.Equal(t, model.TxTypeRedemption, transactions[0].Type)

	count, err := redemptionRepo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRedemptionRepository_Reject(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 9001) // balance 100
	request, err := redemptionRepo.Create(ctx, user.ID, 60)
	require.NoError(t, err)

	res, err := redemptionRepo.Resolve(ctx, request.ID, 777, false)
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionRejected, res.Request.Status)
	assert.Equal(t, int64(100), res.NewBalance) // untouched

	reloaded, err := userRepo.GetByCardID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.Balance)
}

func TestRedemptionRepository_ApproveAfterBalanceDrop(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 9001) // balance 100
	request, err := redemptionRepo.Create(ctx, user.ID, 80)
	require.NoError(t, err)

	// The balance drops below the requested amount before review
	_, err = userRepo.AdjustBalance(ctx, user.ID, -50, model.TxTypeAdminDebit, "spent elsewhere")
	require.NoError(t, err)

	_, err = redemptionRepo.Resolve(ctx, request.ID, 777, true)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// The request stays pending and the balance is untouched
	pending, err := redemptionRepo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, request.ID, pending[0].Request.ID)

	reloaded, err := userRepo.GetByCardID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), reloaded.Balance)
}

func TestRedemptionRepository_ResolveTwice(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	user := registerUser(t, userRepo, 9001)
	request, err := redemptionRepo.Create(ctx, user.ID, 60)
	require.NoError(t, err)

	_, err = redemptionRepo.Resolve(ctx, request.ID, 777, true)
	require.NoError(t, err)

	// A finalized request is immutable; a second resolution finds nothing
	_, err = redemptionRepo.Resolve(ctx, request.ID, 888, false)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	_, err = redemptionRepo.Resolve(ctx, 424242, 777, true)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRedemptionRepository_ListPending(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	redemptionRepo := NewRedemptionRepository(pool)
	ctx := context.Background()

	u1 := registerUser(t, userRepo, 9001)
	u2 := registerUser(t, userRepo, 9002)

	r1, err := redemptionRepo.Create(ctx, u1.ID, 30)
	require.NoError(t, err)
	r2, err := redemptionRepo.Create(ctx, u2.ID, 40)
	require.NoError(t, err)

	// Oldest first, each with its requesting user attached
	pending, err := redemptionRepo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, r1.ID, pending[0].Request.ID)
	assert.Equal(t, u1.ID, pending[0].User.ID)
	assert.Equal(t, r2.ID, pending[1].Request.ID)
	assert.Equal(t, u2.ID, pending[1].User.ID)
}
