package repository

import (
	"context"
	"time"

	"github.com/moozedealer/dealer/internal/assetid"
)

// Repository is the SQL-agnostic store contract. TransactionService and
// the other actors depend only on this interface; Postgres (see
// postgres.go) is one implementation of it.
type Repository interface {
	// InsertUser resolves referralCode to its owner (if any; an unknown
	// code stores nothing, not an error) and inserts a new User row.
	InsertUser(ctx context.Context, referralCode *string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	VerifyUser(ctx context.Context, id string) error

	InsertPix(ctx context.Context, transactionID, eulenID, address string, amountInCents int64, expiresAt *time.Time) (*PixDeposit, error)
	// UpdatePixStatus updates the PixDeposit row keyed by eulenID and
	// returns the associated transaction id.
	UpdatePixStatus(ctx context.Context, eulenID, status string) (transactionID string, err error)

	// InsertTransaction enforces the tier/daily spending caps atomically
	// and inserts the row with status pending. Returns a *CapError if a
	// cap is exceeded.
	InsertTransaction(ctx context.Context, userID, address, feeAddress string, amountInCents int64, asset assetid.Asset, network string) (*Transaction, error)
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// UpdateTransactionStatus is monotone: it is a no-op if the row is
	// already in a terminal status.
	UpdateTransactionStatus(ctx context.Context, id string, status TxStatus) error
	UpdateFeeCollected(ctx context.Context, id string, feeCollected uint64) error

	// GetTransactionCount counts a user's historical transactions in the
	// given status (callers pass StatusEulenDepixSent to count confirmed
	// payouts).
	GetTransactionCount(ctx context.Context, userID string, statusFilter TxStatus) (int64, error)
	// GetDailySpending sums today's confirmed-status transaction amounts
	// for a user, in cents.
	GetDailySpending(ctx context.Context, userID string) (int64, error)

	GetReferrerAddress(ctx context.Context, userID string) (address *string, err error)

	// InsertSwap and UpdateSwapStatus persist the swaps table rows: every
	// liquidity- or pending-queue-triggered swap is inserted; only the
	// liquidity controller's swaps get their resolution recorded.
	InsertSwap(ctx context.Context, quoteSubID int64, sell, receive assetid.Asset, amount uint64) (*Swap, error)
	UpdateSwapStatus(ctx context.Context, quoteSubID int64, status SwapStatus, txid *string) error
}

// CapError reports which of the spending caps was exceeded.
type CapError struct {
	Code string // "ExceededAllowedTransactionAmount" | "ExceededDailyAmount"
}

func (e *CapError) Error() string {
	return e.Code
}
