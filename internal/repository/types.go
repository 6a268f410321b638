// Package repository defines the transactional store contract the rest of
// the dealer depends on, plus a Postgres implementation backing it.
package repository

import (
	"time"

	"github.com/moozedealer/dealer/internal/assetid"
)

// TxStatus is a Transaction's lifecycle state. Values other than
// the named constants are valid: every "eulen_<pix-status>" string the PSP
// sends is also a legal status, so this is a string type rather than a
// closed enum.
type TxStatus string

const (
	StatusPending        TxStatus = "pending"
	StatusEulenDepixSent TxStatus = "eulen_depix_sent"
	StatusFinished       TxStatus = "finished"
	StatusFailed         TxStatus = "failed"
)

// EulenStatus builds the "eulen_<status>" status string the PSP webhook
// maps into.
func EulenStatus(pspStatus string) TxStatus {
	return TxStatus("eulen_" + pspStatus)
}

// Terminal reports whether no further status transition is accepted.
func (s TxStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Transaction is the unit of deposit-to-payout work.
type Transaction struct {
	ID            string
	UserID        string
	Address       string
	FeeAddress    string
	AmountInCents int64
	Asset         assetid.Asset
	Network       string
	Status        TxStatus
	FeeCollected  *uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PixDeposit is the PSP-side record, one-to-one with a Transaction.
type PixDeposit struct {
	ID            string
	TransactionID string
	EulenID       string
	Address       string
	AmountInCents int64
	Status        string
	ExpiresAt     *time.Time
}

// User is a dealer end-user.
type User struct {
	ID         string
	Verified   bool
	ReferredBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Referral maps a referral code to its owner's payout address.
type Referral struct {
	UserID         string
	ReferralCode   string
	PaymentAddress string
}

// SwapStatus mirrors the swapclient.QuoteStatusKind values, persisted.
type SwapStatus string

const (
	SwapPending    SwapStatus = "pending"
	SwapSuccess    SwapStatus = "success"
	SwapLowBalance SwapStatus = "low_balance"
	SwapFailed     SwapStatus = "failed"
)

// Swap is one row of the swaps table, recording a liquidity- or
// pending-queue-triggered swap request and its eventual resolution.
type Swap struct {
	ID           string
	QuoteSubID   int64
	SellAsset    assetid.Asset
	ReceiveAsset assetid.Asset
	Amount       uint64
	Status       SwapStatus
	Txid         *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
