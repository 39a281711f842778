// Package main is the entry point for the loyalty Telegram bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/bot"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/config"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/pkg/db"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/repository"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if len(cfg.Admin.IDs) == 0 {
		log.Warn().Msg("No administrator ids configured; admin features are unreachable")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	bookingRepo := repository.NewBookingRepository(dbPool.Pool)
	redemptionRepo := repository.NewRedemptionRepository(dbPool.Pool)

	// Initialize services
	loyaltyService := service.NewLoyaltyService(
		userRepo,
		txRepo,
		bookingRepo,
		redemptionRepo,
		cfg.Loyalty.WelcomeBonus,
		cfg.Loyalty.CashbackPercent,
		cfg.Loyalty.MaxCardID,
	)
	broadcaster := service.NewBroadcaster(userRepo)

	// Initialize bot
	loyaltyBot, err := bot.New(&bot.Dependencies{
		Config:      cfg,
		Loyalty:     loyaltyService,
		Broadcaster: broadcaster,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	if err := loyaltyBot.SetCommands(); err != nil {
		log.Warn().Err(err).Msg("Failed to register bot command menu")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		loyaltyBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	loyaltyBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table. The card id (id) stays NULL until
	// registration completes; telegram_id identifies the chat account.
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			id INT UNIQUE CHECK (id >= 1),
			first_name VARCHAR(100) NOT NULL DEFAULT '',
			last_name VARCHAR(100) NOT NULL DEFAULT '',
			phone VARCHAR(20) NOT NULL DEFAULT '',
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			registration_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone) WHERE registration_complete;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: Create bookings table. Date and time are stored as the
	// user typed them; staff read and confirm by hand.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bookings (
			id BIGSERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			date VARCHAR(20) NOT NULL,
			time VARCHAR(10) NOT NULL,
			guests INT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: bookings table created")

	// Migration 4: Create redemption_requests table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS redemption_requests (
			id BIGSERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id),
			amount BIGINT NOT NULL CHECK (amount > 0),
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			admin_id BIGINT,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemption_requests(status, created_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: redemption_requests table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
