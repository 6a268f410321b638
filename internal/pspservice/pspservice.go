// Package pspservice creates Pix deposits through a PspGateway and, on
// webhook-driven status updates, resolves the owning transaction and
// forwards the mapped status to the transaction service.
package pspservice

import (
	"context"

	"github.com/google/uuid"
	"github.com/moozedealer/dealer/internal/pspgw"
	"github.com/moozedealer/dealer/internal/repository"
)

// StatusUpdater is the slice of the transaction service this package
// needs: it depends on the narrow interface rather than the concrete type
// so the two packages don't import each other. RequestStatusUpdate is the
// mailbox-backed entry point, so webhook deliveries queue behind the
// transaction actor instead of calling into it concurrently.
type StatusUpdater interface {
	RequestStatusUpdate(ctx context.Context, transactionID string, status repository.TxStatus) error
}

type Service struct {
	gw   pspgw.Gateway
	repo repository.Repository
	tx   StatusUpdater
}

// New constructs a Service without its TransactionService collaborator;
// the two services reference each other (deposit creation vs. status
// forwarding), so wiring builds this one first and calls SetStatusUpdater
// once TransactionService exists.
func New(gw pspgw.Gateway, repo repository.Repository) *Service {
	return &Service{gw: gw, repo: repo}
}

// SetStatusUpdater binds the TransactionService collaborator. Must be
// called once, before UpdateEulenStatus is ever invoked.
func (s *Service) SetStatusUpdater(tx StatusUpdater) {
	s.tx = tx
}

// Deposit creates a Pix charge bound to feeAddress and persists the
// resulting PixDeposit row.
func (s *Service) Deposit(ctx context.Context, transactionID, feeAddress string, amountInCents int64) (*pspgw.Deposit, error) {
	deposit, err := s.gw.CreateDeposit(ctx, pspgw.DepositRequest{
		Address:       feeAddress,
		AmountInCents: amountInCents,
		Nonce:         uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.InsertPix(ctx, transactionID, deposit.ID, feeAddress, amountInCents, deposit.ExpiresAt); err != nil {
		return nil, err
	}
	return deposit, nil
}

// UpdateEulenStatus handles a PSP webhook delivery: it updates the
// PixDeposit row keyed by eulenID, resolves the owning transaction, and
// forwards "eulen_<status>" to TransactionService.
func (s *Service) UpdateEulenStatus(ctx context.Context, eulenID, status string) error {
	transactionID, err := s.repo.UpdatePixStatus(ctx, eulenID, status)
	if err != nil {
		return err
	}
	return s.tx.RequestStatusUpdate(ctx, transactionID, repository.EulenStatus(status))
}
