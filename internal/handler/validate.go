// Package handler provides Telegram bot dialogue handlers.
package handler

import (
	"errors"
	"strconv"
	"strings"
)

// Input validation errors. Handlers map these to corrective re-prompts,
// never to dropped input.
var (
	ErrBadDate   = errors.New("date must look like DD.MM.YYYY")
	ErrBadTime   = errors.New("time must look like HH:MM")
	ErrBadGuests = errors.New("guest count must be an integer between 1 and 20")
	ErrBadAmount = errors.New("amount must be a positive integer")
)

// Guest count bounds for a table reservation.
const (
	minGuests = 1
	maxGuests = 20
)

// ValidateDate checks the DD.MM.YYYY shape: length 10, dots at fixed
// offsets, digits elsewhere. The calendar is deliberately not consulted;
// staff see the raw string and confirm by hand.
func ValidateDate(s string) error {
	if len(s) != 10 || s[2] != '.' || s[5] != '.' {
		return ErrBadDate
	}
	for i, r := range s {
		if i == 2 || i == 5 {
			continue
		}
		if r < '0' || r > '9' {
			return ErrBadDate
		}
	}
	return nil
}

// ValidateTime checks the HH:MM shape: length 5, colon at offset 2,
// digits elsewhere.
func ValidateTime(s string) error {
	if len(s) != 5 || s[2] != ':' {
		return ErrBadTime
	}
	for i, r := range s {
		if i == 2 {
			continue
		}
		if r < '0' || r > '9' {
			return ErrBadTime
		}
	}
	return nil
}

// ParseGuests parses a party size in [1, 20].
func ParseGuests(s string) (int, error) {
	guests, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || guests < minGuests || guests > maxGuests {
		return 0, ErrBadGuests
	}
	return guests, nil
}

// ParseAmount parses a positive integer point or currency amount.
func ParseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || amount <= 0 {
		return 0, ErrBadAmount
	}
	return amount, nil
}

// ParseTarget interprets admin input identifying a user: a short numeric
// string is a loyalty card id, anything else an exact phone number.
func ParseTarget(s string) (cardID int, phone string) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil && n > 0 && len(s) <= 4 {
		return n, ""
	}
	return 0, s
}
