// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/repository"
)

// Common errors for loyalty operations.
var (
	ErrInvalidAmount = errors.New("invalid amount: must be positive")
)

// LoyaltyService orchestrates the loyalty ledger: enrollment, balance
// mutations, purchase cashback and the redemption lifecycle. Atomicity
// lives in the repositories; this layer owns the business rules around it.
type LoyaltyService struct {
	userRepo        *repository.UserRepository
	txRepo          *repository.TransactionRepository
	bookingRepo     *repository.BookingRepository
	redemptionRepo  *repository.RedemptionRepository
	welcomeBonus    int64
	cashbackPercent int64
	maxCardID       int
}

// NewLoyaltyService creates a new LoyaltyService instance.
func NewLoyaltyService(
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	bookingRepo *repository.BookingRepository,
	redemptionRepo *repository.RedemptionRepository,
	welcomeBonus int64,
	cashbackPercent int64,
	maxCardID int,
) *LoyaltyService {
	return &LoyaltyService{
		userRepo:        userRepo,
		txRepo:          txRepo,
		bookingRepo:     bookingRepo,
		redemptionRepo:  redemptionRepo,
		welcomeBonus:    welcomeBonus,
		cashbackPercent: cashbackPercent,
		maxCardID:       maxCardID,
	}
}

// WelcomeBonus returns the configured registration credit.
func (s *LoyaltyService) WelcomeBonus() int64 {
	return s.welcomeBonus
}

// CashbackPercent returns the configured purchase cashback percentage.
func (s *LoyaltyService) CashbackPercent() int64 {
	return s.cashbackPercent
}

// EnsureUser guarantees a (possibly incomplete) user row exists for a
// Telegram identity. Returns the user and whether it was newly created.
func (s *LoyaltyService) EnsureUser(ctx context.Context, telegramID int64) (*model.User, bool, error) {
	user, created, err := s.userRepo.EnsurePlaceholder(ctx, telegramID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}
	return user, created, nil
}

// GetUser retrieves a user by their Telegram identity.
func (s *LoyaltyService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// Register completes enrollment: assigns a card id, stores the profile and
// credits the welcome bonus, atomically.
func (s *LoyaltyService) Register(ctx context.Context, telegramID int64, firstName, lastName, phone string) (*model.User, error) {
	return s.userRepo.CompleteRegistration(ctx, telegramID, firstName, lastName, phone, s.welcomeBonus, s.maxCardID)
}

// ResolveTarget finds a registered user by card id (short numeric input)
// or by exact phone match. Used by admin credit/debit flows.
func (s *LoyaltyService) ResolveTarget(ctx context.Context, cardID int, phone string) (*model.User, error) {
	if cardID > 0 {
		user, err := s.userRepo.GetByCardID(ctx, cardID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}
	if phone != "" {
		return s.userRepo.FindByPhone(ctx, phone)
	}
	return nil, repository.ErrUserNotFound
}

// Credit adds points to a user's balance.
func (s *LoyaltyService) Credit(ctx context.Context, cardID int, amount int64, adminID int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	desc := fmt.Sprintf("Начисление %d баллов администратором", amount)
	return s.userRepo.AdjustBalance(ctx, cardID, amount, model.TxTypeAdminCredit, desc)
}

// Debit removes points from a user's balance. Fails with
// repository.ErrInsufficientBalance when the balance would go negative.
func (s *LoyaltyService) Debit(ctx context.Context, cardID int, amount int64, adminID int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	desc := fmt.Sprintf("Списание %d баллов администратором", amount)
	return s.userRepo.AdjustBalance(ctx, cardID, -amount, model.TxTypeAdminDebit, desc)
}

// RecordPurchase credits cashback for a recorded purchase:
// floor(amountSpent * cashbackPercent / 100) points.
// Returns the credited amount and the new balance.
func (s *LoyaltyService) RecordPurchase(ctx context.Context, cardID int, amountSpent int64) (credited int64, newBalance int64, err error) {
	if amountSpent <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	credited = cashbackFor(amountSpent, s.cashbackPercent)
	desc := fmt.Sprintf("Кэшбэк %d%% за покупку на сумму %d", s.cashbackPercent, amountSpent)
	newBalance, err = s.userRepo.AdjustBalance(ctx, cardID, credited, model.TxTypePurchase, desc)
	if err != nil {
		return 0, 0, err
	}
	return credited, newBalance, nil
}

// cashbackFor computes the points credited for a purchase. Integer
// division floors, which is what the program promises.
func cashbackFor(amountSpent, percent int64) int64 {
	return amountSpent * percent / 100
}

// RequestRedemption creates a pending redemption request for the amount.
// The balance stays untouched until an administrator approves.
func (s *LoyaltyService) RequestRedemption(ctx context.Context, cardID int, amount int64) (*model.RedemptionRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.redemptionRepo.Create(ctx, cardID, amount)
}

// PendingRedemptions lists all pending requests with their users.
func (s *LoyaltyService) PendingRedemptions(ctx context.Context) ([]*repository.PendingRequest, error) {
	return s.redemptionRepo.ListPending(ctx)
}

// ResolveRedemption approves or rejects a pending request. Approval
// re-checks the balance; on insufficiency the request stays pending and
// repository.ErrInsufficientBalance is returned.
func (s *LoyaltyService) ResolveRedemption(ctx context.Context, requestID int64, adminID int64, approve bool) (*repository.Resolution, error) {
	return s.redemptionRepo.Resolve(ctx, requestID, adminID, approve)
}

// CreateBooking persists a reservation request.
func (s *LoyaltyService) CreateBooking(ctx context.Context, cardID int, date, timeOfDay string, guests int) (*model.Booking, error) {
	return s.bookingRepo.Create(ctx, cardID, date, timeOfDay, guests)
}

// ListRegistered returns all registered users in creation order.
func (s *LoyaltyService) ListRegistered(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.ListRegistered(ctx)
}

// Transactions returns a user's recent transactions, newest first.
func (s *LoyaltyService) Transactions(ctx context.Context, cardID int, limit int) ([]*model.Transaction, error) {
	return s.txRepo.ListByUser(ctx, cardID, limit)
}

// Stats aggregates program-wide counters for the admin panel.
func (s *LoyaltyService) Stats(ctx context.Context) (*model.Stats, error) {
	users, err := s.userRepo.CountRegistered(ctx)
	if err != nil {
		return nil, err
	}
	points, err := s.userRepo.SumBalances(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookingRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.redemptionRepo.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Stats{
		RegisteredUsers:    users,
		OutstandingPoints:  points,
		Bookings:           bookings,
		PendingRedemptions: pending,
	}, nil
}
