// Command moozedealerd is the dealer daemon: it loads configuration, wires
// every actor together, and serves the HTTP ingress until a shutdown signal
// arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/decred/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	dealer "github.com/moozedealer/dealer"
	"github.com/moozedealer/dealer/build"
	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/httpapi"
	"github.com/moozedealer/dealer/internal/liquidity"
	"github.com/moozedealer/dealer/internal/priceagg"
	"github.com/moozedealer/dealer/internal/pspgw"
	"github.com/moozedealer/dealer/internal/pspservice"
	"github.com/moozedealer/dealer/internal/repository"
	"github.com/moozedealer/dealer/internal/rpclink"
	"github.com/moozedealer/dealer/internal/swapclient"
	"github.com/moozedealer/dealer/internal/txservice"
	"github.com/moozedealer/dealer/internal/userservice"
	"github.com/moozedealer/dealer/internal/walletgw"
	"github.com/moozedealer/dealer/signal"
)

// walletScanInterval is the wallet-scan loop's cadence.
const walletScanInterval = 60 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := dealer.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rootLogWriter, err := cfg.NewRootLogWriter()
	if err != nil {
		return fmt.Errorf("init log rotator: %w", err)
	}
	dealer.SetupLoggers(rootLogWriter)
	dealer.AddSubLogger(rootLogWriter, "RPCL", rpclink.UseLogger)
	dealer.AddSubLogger(rootLogWriter, "SWAP", swapclient.UseLogger)
	dealer.AddSubLogger(rootLogWriter, "PRCA", priceagg.UseLogger)
	dealer.AddSubLogger(rootLogWriter, "LIQC", liquidity.UseLogger)
	dealer.AddSubLogger(rootLogWriter, "TXSV", txservice.UseLogger)
	dealer.AddSubLogger(rootLogWriter, "HTTP", httpapi.UseLogger)
	signal.Intercept()

	daemonLog := build.NewSubLogger("DAEMON", rootLogWriter.GenSubLogger)
	dealer.SetSubLogger(rootLogWriter, "DAEMON", daemonLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-signal.ShutdownChannel()
		cancel()
	}()

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	repo := repository.NewPostgres(pool)

	wallet, err := walletgw.Open("electrum", map[string]string{
		"url":      cfg.Electrum.URL,
		"mnemonic": cfg.Wallet.Mnemonic,
		"mainnet":  strconv.FormatBool(cfg.Wallet.Mainnet),
	})
	if err != nil {
		return fmt.Errorf("open wallet gateway: %w (register a backend via a blank import of its driver package)", err)
	}

	link, err := dialVenue(ctx, daemonLog, cfg.Sideswap.URL)
	if err != nil {
		return fmt.Errorf("dial swap venue: %w", err)
	}
	swaps := swapclient.New(link)
	swaps.Start(ctx)
	if err := swaps.Login(ctx, cfg.Sideswap.APIKey); err != nil {
		return fmt.Errorf("swap venue login: %w", err)
	}
	checkMarketAvailability(ctx, daemonLog, swaps)

	prices := priceagg.New(priceagg.Endpoints{
		CoingeckoURL: cfg.PriceProviders.CoingeckoURL,
		BinanceURL:   cfg.PriceProviders.BinanceURL,
	})
	go prices.Start(ctx)

	pspGW := pspgw.NewHTTPGateway(cfg.Depix.URL, cfg.Depix.AuthToken)
	psp := pspservice.New(pspGW, repo)

	tx := txservice.New(repo, wallet, prices, psp, swaps)
	psp.SetStatusUpdater(tx)
	go tx.RunStatusLoop(ctx)
	go tx.RunSweeper(ctx)
	go tx.RunHintDispatcher(ctx)

	users := userservice.New(repo)

	liq := liquidity.New(cfg.Liquidity.MaxDepixAmount, wallet, swaps, repo)
	balanceUpdates := make(chan walletgw.BalanceUpdate, 1)
	go liq.Run(ctx, balanceUpdates)
	go runWalletScan(ctx, wallet, balanceUpdates)

	server := httpapi.NewServer(users, tx, psp)
	httpServer := &http.Server{Addr: cfg.HTTPListen, Handler: server.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	daemonLog.Infof("listening on %s", cfg.HTTPListen)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// dialVenue retries the venue WebSocket dial a few times at startup. The
// link itself never reconnects once established; this loop only smooths
// over the venue coming up slower than the dealer during a deployment.
func dialVenue(ctx context.Context, log slog.Logger, url string) (*rpclink.Link, error) {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		link, err := rpclink.Dial(ctx, url)
		if err == nil {
			return link, nil
		}
		lastErr = err
		log.Warnf("dial swap venue attempt %d failed: %v", attempt, err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// checkMarketAvailability confirms after login that the DEPIX/L-BTC pair is
// listed. Its absence is logged, not fatal: the venue's market list can
// change independently of the dealer's deployment.
func checkMarketAvailability(ctx context.Context, log slog.Logger, swaps *swapclient.Client) {
	markets, err := swaps.GetMarkets(ctx)
	if err != nil {
		log.Warnf("could not fetch markets at startup: %v", err)
		return
	}
	depixHex := assetid.DepixHex
	lbtcHex := assetid.MustHex(assetid.LBTC)
	for _, m := range markets {
		if (m.BaseAsset == depixHex && m.QuoteAsset == lbtcHex) || (m.BaseAsset == lbtcHex && m.QuoteAsset == depixHex) {
			return
		}
	}
	log.Warnf("DEPIX/L-BTC market not found among %d listed markets at startup", len(markets))
}

func runWalletScan(ctx context.Context, wallet walletgw.Gateway, out chan<- walletgw.BalanceUpdate) {
	ticker := time.NewTicker(walletScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			balance, err := wallet.AssetBalance(ctx, assetid.DEPIX)
			if err != nil {
				continue
			}
			select {
			case out <- walletgw.BalanceUpdate{Asset: assetid.DEPIX, Amount: balance}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
