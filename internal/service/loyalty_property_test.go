// Property-based tests for the loyalty ledger rules. The simulate
// functions mirror the validation and execution logic the repositories
// enforce in SQL, without database dependencies.
package service

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/xxxzadok-sketch/loyalty-telegram-bot/internal/repository"
)

// AdjustResult represents the outcome of a balance adjustment for testing.
type AdjustResult struct {
	BalanceBefore int64
	BalanceAfter  int64
	Delta         int64
	Success       bool
	Error         error
}

// simulateAdjust mirrors the conditional balance update: the delta applies
// only if the resulting balance stays non-negative, otherwise nothing
// changes and ErrInsufficientBalance is reported.
func simulateAdjust(balance, delta int64) AdjustResult {
	result := AdjustResult{
		BalanceBefore: balance,
		Delta:         delta,
	}

	if balance+delta < 0 {
		result.Success = false
		result.Error = repository.ErrInsufficientBalance
		result.BalanceAfter = balance
		return result
	}

	result.Success = true
	result.BalanceAfter = balance + delta
	return result
}

// TestAdjustNeverOverdraws verifies that for any balance and any delta
// the adjustment either applies fully or leaves the balance untouched,
// and the balance never goes negative.
func TestAdjustNeverOverdraws(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(0, 1000000).Draw(t, "balance")
		delta := rapid.Int64Range(-2000000, 2000000).Draw(t, "delta")

		result := simulateAdjust(balance, delta)

		if result.BalanceAfter < 0 {
			t.Fatalf("balance went negative: before=%d delta=%d after=%d",
				balance, delta, result.BalanceAfter)
		}

		if result.Success {
			if result.BalanceAfter != balance+delta {
				t.Fatalf("successful adjust did not apply fully: before=%d delta=%d after=%d",
					balance, delta, result.BalanceAfter)
			}
		} else {
			if result.BalanceAfter != balance {
				t.Fatalf("failed adjust changed the balance: before=%d after=%d",
					balance, result.BalanceAfter)
			}
			if !errors.Is(result.Error, repository.ErrInsufficientBalance) {
				t.Fatalf("failed adjust reported wrong error: %v", result.Error)
			}
		}
	})
}

// TestCashbackFloorProperty verifies the cashback formula: credited
// points are floor(amount * percent / 100), never negative, and never
// more than the purchase amount for percentages up to 100.
func TestCashbackFloorProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 10000000).Draw(t, "amount")
		percent := rapid.Int64Range(0, 100).Draw(t, "percent")

		credited := cashbackFor(amount, percent)

		if credited < 0 {
			t.Fatalf("negative cashback: amount=%d percent=%d credited=%d",
				amount, percent, credited)
		}
		if credited > amount {
			t.Fatalf("cashback exceeds purchase: amount=%d percent=%d credited=%d",
				amount, percent, credited)
		}
		if expected := amount * percent / 100; credited != expected {
			t.Fatalf("cashback mismatch: amount=%d percent=%d expected=%d got=%d",
				amount, percent, expected, credited)
		}
	})
}

func TestCashbackKnownValues(t *testing.T) {
	tests := []struct {
		amount  int64
		percent int64
		want    int64
	}{
		{1000, 5, 50},
		{999, 5, 49},   // floors, never rounds up
		{19, 5, 0},     // too small to earn a point
		{100, 10, 10},
		{1, 100, 1},
	}
	for _, tt := range tests {
		if got := cashbackFor(tt.amount, tt.percent); got != tt.want {
			t.Errorf("cashbackFor(%d, %d) = %d, want %d", tt.amount, tt.percent, got, tt.want)
		}
	}
}

// redemptionState is the simulated lifecycle of one redemption request.
type redemptionState struct {
	balance int64
	amount  int64
	status  string
}

// simulateResolve mirrors RedemptionRepository.Resolve: rejection always
// finalizes, approval re-checks the balance at resolution time and leaves
// the request pending on insufficiency.
func simulateResolve(st redemptionState, approve bool) (redemptionState, error) {
	if st.status != "pending" {
		return st, repository.ErrRequestNotFound
	}
	if !approve {
		st.status = "rejected"
		return st, nil
	}
	if st.balance < st.amount {
		return st, repository.ErrInsufficientBalance
	}
	st.balance -= st.amount
	st.status = "approved"
	return st, nil
}

// TestRedemptionLifecycleProperty drives a request through creation and an
// arbitrary sequence of resolution attempts, checking that:
//   - a request resolves at most once
//   - approval deducts exactly the requested amount
//   - approval against a shrunken balance leaves the request pending
func TestRedemptionLifecycleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := rapid.Int64Range(1, 100000).Draw(t, "balance")
		amount := rapid.Int64Range(1, balance).Draw(t, "amount")

		st := redemptionState{balance: balance, amount: amount, status: "pending"}

		// The balance may drop between request and review (another
		// redemption, an admin debit).
		drop := rapid.Int64Range(0, balance).Draw(t, "drop")
		st.balance -= drop

		approve := rapid.Bool().Draw(t, "approve")
		after, err := simulateResolve(st, approve)

		switch {
		case !approve:
			if err != nil || after.status != "rejected" {
				t.Fatalf("rejection must always finalize: err=%v status=%s", err, after.status)
			}
			if after.balance != st.balance {
				t.Fatalf("rejection touched the balance: before=%d after=%d", st.balance, after.balance)
			}
		case st.balance >= amount:
			if err != nil || after.status != "approved" {
				t.Fatalf("approval with sufficient balance failed: err=%v status=%s", err, after.status)
			}
			if after.balance != st.balance-amount {
				t.Fatalf("approval deducted wrong amount: before=%d amount=%d after=%d",
					st.balance, amount, after.balance)
			}
		default:
			if !errors.Is(err, repository.ErrInsufficientBalance) {
				t.Fatalf("approval over balance must report insufficiency, got %v", err)
			}
			if after.status != "pending" || after.balance != st.balance {
				t.Fatalf("failed approval must leave request pending and balance untouched: status=%s balance=%d",
					after.status, after.balance)
			}
		}

		// A finalized request cannot be resolved again.
		if after.status != "pending" {
			_, err := simulateResolve(after, true)
			if !errors.Is(err, repository.ErrRequestNotFound) {
				t.Fatalf("double resolution must fail, got %v", err)
			}
		}
	})
}
