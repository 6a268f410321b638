// Package priceagg maintains a cached best price for L-BTC and USDt from
// two upstreams, applying a fixed spread on read. The ticker-driven poll
// loop publishes an atomically-swapped immutable snapshot, so readers
// never block the poller and vice versa.
package priceagg

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/dealererr"
	"github.com/prometheus/client_golang/prometheus"
)

// PollInterval is the upstream poll period.
const PollInterval = 60 * time.Second

// Spread is the fixed markup applied to L-BTC/USDt reads (2%).
const Spread = 1.02

var log slog.Logger = slog.Disabled

// UseLogger binds the package-level logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// snapshot is the immutable cache published on every successful-or-partial
// tick. An asset absent from prices has never been successfully priced.
type snapshot struct {
	prices    map[assetid.Asset]float64
	updatedAt time.Time
}

// Endpoints configures the two upstream price sources.
type Endpoints struct {
	CoingeckoURL string
	BinanceURL   string
}

// Aggregator owns the price cache and the poll loop.
type Aggregator struct {
	endpoints Endpoints
	current   atomic.Pointer[snapshot]
	cacheAge  prometheus.Gauge
}

// New constructs an Aggregator with an empty cache; call Start to begin
// polling.
func New(endpoints Endpoints) *Aggregator {
	a := &Aggregator{
		endpoints: endpoints,
		cacheAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dealer",
			Subsystem: "priceagg",
			Name:      "cache_age_seconds",
			Help:      "Seconds since the price cache was last successfully refreshed.",
		}),
	}
	_ = prometheus.Register(a.cacheAge)
	a.current.Store(&snapshot{prices: map[assetid.Asset]float64{}})
	return a
}

// Start launches the 60-second poll loop. It returns once ctx is done.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	a.tick()
	for {
		select {
		case <-ticker.C:
			a.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (a *Aggregator) tick() {
	prev := a.current.Load()
	next := &snapshot{
		prices:    make(map[assetid.Asset]float64, len(prev.prices)),
		updatedAt: prev.updatedAt,
	}
	for k, v := range prev.prices {
		next.prices[k] = v
	}

	cgBTC, cgUSDT, cgErr := coingeckoPrices(a.endpoints.CoingeckoURL)
	if cgErr != nil {
		log.Warnf("priceagg: coingecko fetch failed: %v", cgErr)
	}
	bnBTC, bnUSDT, bnErr := binancePrices(a.endpoints.BinanceURL)
	if bnErr != nil {
		log.Warnf("priceagg: binance fetch failed: %v", bnErr)
	}

	updated := false
	if best, ok := bestOf(cgErr == nil, cgBTC, bnErr == nil, bnBTC); ok {
		next.prices[assetid.LBTC] = best
		updated = true
	}
	if best, ok := bestOf(cgErr == nil, cgUSDT, bnErr == nil, bnUSDT); ok {
		next.prices[assetid.USDt] = best
		updated = true
	}

	if updated {
		next.updatedAt = time.Now()
	}
	if !next.updatedAt.IsZero() {
		a.cacheAge.Set(time.Since(next.updatedAt).Seconds())
	}

	a.current.Store(next)
}

// bestOf picks the max of whatever subset of the two readings is available.
// If neither is available, ok is false and the prior value (already copied
// into next.prices by the caller) is left untouched.
func bestOf(aOK bool, aVal float64, bOK bool, bVal float64) (float64, bool) {
	switch {
	case aOK && bOK:
		if aVal > bVal {
			return aVal, true
		}
		return bVal, true
	case aOK:
		return aVal, true
	case bOK:
		return bVal, true
	default:
		return 0, false
	}
}

// GetAssetPriceWithSpread returns the spread-adjusted BRL price of one unit
// of asset.
func (a *Aggregator) GetAssetPriceWithSpread(asset assetid.Asset) (float64, error) {
	switch asset {
	case assetid.DEPIX:
		return 1.0, nil
	case assetid.LBTC, assetid.USDt:
		snap := a.current.Load()
		price, ok := snap.prices[asset]
		if !ok {
			return 0, dealererr.New(dealererr.ExternalService, "PriceUnavailable",
				"no cached price for "+asset.String())
		}
		return price * Spread, nil
	default:
		return 0, dealererr.New(dealererr.Validation, "UnsupportedAsset", asset.String())
	}
}
