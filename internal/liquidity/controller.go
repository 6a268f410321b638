// Package liquidity implements the liquidity controller: it
// watches the wallet's DEPIX balance and keeps it under a configured
// ceiling by offloading the excess to L-BTC through the swap venue.
package liquidity

import (
	"context"

	"github.com/decred/slog"
	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/repository"
	"github.com/moozedealer/dealer/internal/swapclient"
	"github.com/moozedealer/dealer/internal/walletgw"
)

var log slog.Logger = slog.Disabled

// UseLogger binds the package-level logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// inFlightSwap tracks one outstanding quote subscription from StartQuotes
// through its terminal notification, so the controller knows which
// quote_sub_ids are its own and the amount each one sells.
type inFlightSwap struct {
	sellAmount uint64
}

// Controller owns no mailbox of its own for balance updates: it is driven
// directly by the wallet-scan loop's channel and by the SwapClient's
// notification stream, reacting to every balance update as it arrives
// rather than routing through the general message bus.
type Controller struct {
	ceiling uint64
	wallet  walletgw.Gateway
	swaps   *swapclient.Client
	repo    repository.Repository

	pending map[int64]inFlightSwap
}

// New constructs a Controller with the configured DEPIX ceiling, in base
// units.
func New(ceiling uint64, wallet walletgw.Gateway, swaps *swapclient.Client, repo repository.Repository) *Controller {
	return &Controller{
		ceiling: ceiling,
		wallet:  wallet,
		swaps:   swaps,
		repo:    repo,
		pending: make(map[int64]inFlightSwap),
	}
}

// Run consumes balance updates from updates and swap-venue notifications
// from the SwapClient until ctx is done. It is meant to be run in its own
// goroutine by the wiring step.
func (c *Controller) Run(ctx context.Context, updates <-chan walletgw.BalanceUpdate) {
	notifs := c.swaps.Notifications()
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.handleBalanceUpdate(ctx, u)
		case n, ok := <-notifs:
			if !ok {
				return
			}
			c.handleNotification(ctx, n)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) handleBalanceUpdate(ctx context.Context, u walletgw.BalanceUpdate) {
	if u.Asset != assetid.DEPIX {
		log.Warnf("liquidity: ignoring balance update for unmanaged asset %s", u.Asset)
		return
	}
	if u.Amount <= c.ceiling {
		return
	}

	excess := u.Amount - c.ceiling
	changeAddr, err := c.wallet.NewAddress(ctx)
	if err != nil {
		log.Errorf("liquidity: new address for swap change: %v", err)
		return
	}
	receiveAddr, err := c.wallet.NewAddress(ctx)
	if err != nil {
		log.Errorf("liquidity: new address for swap receive: %v", err)
		return
	}

	req := swapclient.QuoteRequest{
		BaseAsset:   assetid.DepixHex,
		QuoteAsset:  assetid.MustHex(assetid.LBTC),
		Side:        swapclient.SideBase,
		Direction:   swapclient.DirectionSell,
		Amount:      excess,
		ReceiveAddr: receiveAddr,
		ChangeAddr:  changeAddr,
	}

	result, err := c.swaps.StartQuotes(ctx, req)
	if err != nil {
		log.Errorf("liquidity: start_quotes failed, will retry on next tick: %v", err)
		return
	}

	c.pending[result.QuoteSubID] = inFlightSwap{sellAmount: excess}
	if _, err := c.repo.InsertSwap(ctx, result.QuoteSubID, assetid.DEPIX, assetid.LBTC, excess); err != nil {
		log.Errorf("liquidity: persist swap row: %v", err)
	}
}

func (c *Controller) handleNotification(ctx context.Context, n swapclient.Notification) {
	if _, ok := c.pending[n.QuoteSubID]; !ok {
		log.Warnf("liquidity: notification for unknown quote_sub_id %d", n.QuoteSubID)
		return
	}

	switch n.Status.Kind {
	case swapclient.QuoteSuccess:
		c.completeSwap(ctx, n)
	case swapclient.QuoteLowBalance:
		log.Warnf("liquidity: quote %d reported low balance, stopping", n.QuoteSubID)
		c.swaps.StopQuotes(n.QuoteSubID)
		delete(c.pending, n.QuoteSubID)
		if err := c.repo.UpdateSwapStatus(ctx, n.QuoteSubID, repository.SwapLowBalance, nil); err != nil {
			log.Errorf("liquidity: persist low-balance swap status: %v", err)
		}
	case swapclient.QuoteError:
		log.Errorf("liquidity: quote %d errored: %s", n.QuoteSubID, n.Status.ErrorMsg)
		c.swaps.StopQuotes(n.QuoteSubID)
		delete(c.pending, n.QuoteSubID)
		if err := c.repo.UpdateSwapStatus(ctx, n.QuoteSubID, repository.SwapFailed, nil); err != nil {
			log.Errorf("liquidity: persist failed swap status: %v", err)
		}
	}
}

func (c *Controller) completeSwap(ctx context.Context, n swapclient.Notification) {
	defer delete(c.pending, n.QuoteSubID)

	pset, err := c.swaps.GetQuotePset(ctx, n.Status.QuoteID)
	if err != nil {
		log.Errorf("liquidity: get_quote_pset for %d: %v", n.QuoteSubID, err)
		return
	}
	signed, err := c.wallet.Sign(ctx, &walletgw.UnsignedTx{Pset: []byte(pset.Pset)})
	if err != nil {
		log.Errorf("liquidity: sign swap pset for %d: %v", n.QuoteSubID, err)
		return
	}
	result, err := c.swaps.TakerSign(ctx, n.Status.QuoteID, signed.Pset)
	if err != nil {
		log.Errorf("liquidity: taker_sign for %d: %v", n.QuoteSubID, err)
		return
	}
	if err := c.repo.UpdateSwapStatus(ctx, n.QuoteSubID, repository.SwapSuccess, &result.Txid); err != nil {
		log.Errorf("liquidity: persist successful swap status: %v", err)
	}
}
