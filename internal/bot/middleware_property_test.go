// Property-based tests for the admin allow-list check behind the bot's
// middleware and per-action authorization.
package bot

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/config"
)

// TestAdminAllowListProperty verifies that a user is treated as an
// administrator if and only if their id appears in the configured list.
func TestAdminAllowListProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(0, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
		}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if got := cfg.IsAdmin(userID); got != expected {
			t.Fatalf("admin check mismatch: userID=%d adminIDs=%v expected=%v got=%v",
				userID, adminIDs, expected, got)
		}
	})
}

// TestAdminAllowListKnownAdmin verifies that an id drawn from the list is
// always recognized, regardless of its position.
func TestAdminAllowListKnownAdmin(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
		}

		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
		}

		pick := rapid.IntRange(0, numAdmins-1).Draw(t, "pick")
		if !cfg.IsAdmin(adminIDs[pick]) {
			t.Fatalf("known admin %d not recognized in %v", adminIDs[pick], adminIDs)
		}
	})
}

// TestEmptyAllowListRejectsEveryone covers the locked-down default: with
// no configured administrators nobody passes the check.
func TestEmptyAllowListRejectsEveryone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if cfg.IsAdmin(userID) {
			t.Fatalf("empty allow-list must reject user %d", userID)
		}
	})
}
