// Package walletgw defines the wallet gateway contract: the opaque Liquid
// wallet collaborator. Address generation, UTXO enumeration, PSET
// build/sign/broadcast, and chain scanning all live behind this interface;
// the core orchestrator only ever calls through it.
package walletgw

import (
	"context"

	"github.com/moozedealer/dealer/internal/assetid"
)

// Recipient is one output of a payout transaction: an address and an
// asset-denominated base-unit amount.
type Recipient struct {
	Address string
	Asset   assetid.Asset
	Amount  uint64
}

// UnsignedTx is an opaque, wallet-constructed but unsigned transaction
// (a Liquid PSET in practice). The core never inspects its bytes; it only
// threads the value through Sign and FinalizeAndBroadcast.
type UnsignedTx struct {
	Pset []byte
}

// SignedTx is an opaque wallet-signed transaction, ready for
// FinalizeAndBroadcast (or, in the SwapClient path, for TakerSign).
type SignedTx struct {
	Pset []byte
}

// Gateway defines the wallet operations the core orchestrator depends on.
// Implementors must closely adhere to the documented behavior of every
// method so the core behaves identically regardless of which concrete
// Liquid wallet backs it.
type Gateway interface {
	// NewAddress returns a fresh external address for the wallet: the
	// dealer-owned fee_address correlation handle a new transaction is
	// keyed on, and the receive/change addresses of a liquidity swap.
	NewAddress(ctx context.Context) (string, error)

	// AssetBalance returns the wallet's current confirmed balance of the
	// given asset, in base units. Never cached by the core; every call
	// queries the wallet fresh.
	AssetBalance(ctx context.Context, asset assetid.Asset) (uint64, error)

	// BuildTx constructs an unsigned transaction paying out to the given
	// recipients, funded from the wallet's own UTXOs of the recipients'
	// assets.
	//
	// NOTE: the wallet alone is responsible for coin selection; the core
	// never enumerates UTXOs itself.
	BuildTx(ctx context.Context, recipients []Recipient) (*UnsignedTx, error)

	// Sign signs an unsigned transaction, returning the wallet's partial
	// or complete signature set. Used both for payout transactions built
	// by BuildTx and for the taker side of a swap PSET obtained from the
	// swap venue.
	Sign(ctx context.Context, tx *UnsignedTx) (*SignedTx, error)

	// FinalizeAndBroadcast finalizes a fully-signed transaction and
	// broadcasts it. Idempotent rebroadcast is harmless; the core calls
	// this at most once per status transition.
	FinalizeAndBroadcast(ctx context.Context, tx *SignedTx) (txid string, err error)
}

// BalanceUpdate is what the wallet-scan loop emits once per minute; the
// daemon's loop reports the DEPIX balance only. LiquidityController
// consumes these.
type BalanceUpdate struct {
	Asset  assetid.Asset
	Amount uint64
}
