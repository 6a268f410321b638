// Package pspgw defines the PspGateway contract: the opaque Pix payment
// service provider collaborator (Eulen, in the original deployment).
// PspService depends only on this interface.
package pspgw

import (
	"context"
	"time"
)

// DepositRequest is one Pix-deposit creation request.
type DepositRequest struct {
	Address       string
	AmountInCents int64
	Nonce         string
}

// Deposit is the PSP's reply to a deposit request: its own id, the two
// renderings of the Pix charge a wallet app needs, and the charge's expiry
// (nil when the PSP omits it or sends an unparseable timestamp).
type Deposit struct {
	ID          string
	QRCopyPaste string
	QRImageURL  string
	ExpiresAt   *time.Time
}

// Gateway is the PSP operation set PspService drives.
type Gateway interface {
	// CreateDeposit posts a Pix charge request, tagged with req.Nonce as
	// an idempotency key (sent as the X-Nonce header).
	CreateDeposit(ctx context.Context, req DepositRequest) (*Deposit, error)
}
