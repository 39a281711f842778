// Package model defines the data models for the loyalty bot.
package model

import "time"

// User represents a loyalty-program member.
// ID is the loyalty card number, assigned from a bounded pool when
// registration completes; TelegramID is the external chat identity.
// A placeholder row (RegistrationComplete=false) is created on first
// contact and completed once the registration dialogue finishes.
type User struct {
	ID                   int       `db:"id"`
	TelegramID           int64     `db:"telegram_id"`
	FirstName            string    `db:"first_name"`
	LastName             string    `db:"last_name"`
	Phone                string    `db:"phone"`
	Balance              int64     `db:"balance"`
	RegistrationComplete bool      `db:"registration_complete"`
	CreatedAt            time.Time `db:"created_at"`
}

// FullName returns "First Last" for display.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Transaction represents one signed balance change. The log is
// append-only: the sum of a user's amounts always equals the balance.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int       `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Booking represents a table reservation request. Status transitions are
// informational only; staff confirm by hand.
type Booking struct {
	ID        int64     `db:"id"`
	UserID    int       `db:"user_id"`
	Date      string    `db:"date"`
	Time      string    `db:"time"`
	Guests    int       `db:"guests"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// RedemptionRequest represents a user request to spend points, pending
// until an administrator approves or rejects it. Once terminal it is
// immutable.
type RedemptionRequest struct {
	ID          int64      `db:"id"`
	UserID      int        `db:"user_id"`
	Amount      int64      `db:"amount"`
	Status      string     `db:"status"`
	AdminID     *int64     `db:"admin_id"`
	ProcessedAt *time.Time `db:"processed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Stats aggregates program-wide counters for the admin panel.
type Stats struct {
	RegisteredUsers    int64
	OutstandingPoints  int64
	Bookings           int64
	PendingRedemptions int64
}

// Transaction types for categorizing balance changes.
const (
	TxTypeWelcome     = "welcome"      // Welcome bonus on registration
	TxTypeAdminCredit = "admin_credit" // Admin credited points
	TxTypeAdminDebit  = "admin_debit"  // Admin debited points
	TxTypePurchase    = "purchase"     // Cashback for a recorded purchase
	TxTypeRedemption  = "redemption"   // Approved redemption debit
)

// Booking statuses.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Redemption request statuses.
const (
	RedemptionPending  = "pending"
	RedemptionApproved = "approved"
	RedemptionRejected = "rejected"
)
