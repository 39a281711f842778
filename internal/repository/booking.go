package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/model"
)

// BookingRepository handles table reservation persistence.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a new BookingRepository instance.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// Create inserts a pending reservation. There is deliberately no conflict
// check against existing reservations: capacity is enforced by staff.
func (r *BookingRepository) Create(ctx context.Context, cardID int, date, timeOfDay string, guests int) (*model.Booking, error) {
	const query = `
		INSERT INTO bookings (user_id, date, time, guests, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, date, time, guests, status, created_at
	`

	var booking model.Booking
	err := r.pool.QueryRow(ctx, query, cardID, date, timeOfDay, guests, model.BookingPending).Scan(
		&booking.ID,
		&booking.UserID,
		&booking.Date,
		&booking.Time,
		&booking.Guests,
		&booking.Status,
		&booking.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	return &booking, nil
}

// SetStatus updates a booking's status. Transitions are informational
// only; nothing downstream depends on them.
func (r *BookingRepository) SetStatus(ctx context.Context, bookingID int64, status string) error {
	const query = `UPDATE bookings SET status = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, bookingID, status)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("booking not found")
	}
	return nil
}

// ListByUser retrieves a user's reservations, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, cardID int, limit int) ([]*model.Booking, error) {
	const query = `
		SELECT id, user_id, date, time, guests, status, created_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// Count returns the total number of reservations ever made.
func (r *BookingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func scanBookings(rows pgx.Rows) ([]*model.Booking, error) {
	var bookings []*model.Booking
	for rows.Next() {
		var booking model.Booking
		err := rows.Scan(
			&booking.ID,
			&booking.UserID,
			&booking.Date,
			&booking.Time,
			&booking.Guests,
			&booking.Status,
			&booking.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, &booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
