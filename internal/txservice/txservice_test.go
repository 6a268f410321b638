package txservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/priceagg"
	"github.com/moozedealer/dealer/internal/pspgw"
	"github.com/moozedealer/dealer/internal/repository"
	"github.com/moozedealer/dealer/internal/rpclink"
	"github.com/moozedealer/dealer/internal/swapclient"
	"github.com/moozedealer/dealer/internal/walletgw"
	"github.com/stretchr/testify/require"
)

// fakeRepo implements repository.Repository in memory, enough to drive
// NewTransaction/UpdateTransactionStatus/finishTransaction.
type fakeRepo struct {
	mu           sync.Mutex
	transactions map[string]*repository.Transaction
	referrer     map[string]*string
	feeCollected map[string]uint64
	swapInserts  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		transactions: make(map[string]*repository.Transaction),
		referrer:     make(map[string]*string),
		feeCollected: make(map[string]uint64),
	}
}

func (f *fakeRepo) InsertUser(ctx context.Context, referralCode *string) (*repository.User, error) {
	return &repository.User{ID: "u1"}, nil
}
func (f *fakeRepo) GetUserByID(ctx context.Context, id string) (*repository.User, error) {
	return &repository.User{ID: id}, nil
}
func (f *fakeRepo) VerifyUser(ctx context.Context, id string) error { return nil }
func (f *fakeRepo) InsertPix(ctx context.Context, transactionID, eulenID, address string, amountInCents int64, expiresAt *time.Time) (*repository.PixDeposit, error) {
	return &repository.PixDeposit{ID: "pix1", TransactionID: transactionID}, nil
}
func (f *fakeRepo) UpdatePixStatus(ctx context.Context, eulenID, status string) (string, error) {
	return "", nil
}
func (f *fakeRepo) InsertTransaction(ctx context.Context, userID, address, feeAddress string, amountInCents int64, asset assetid.Asset, network string) (*repository.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "tx-" + userID
	tx := &repository.Transaction{
		ID: id, UserID: userID, Address: address, FeeAddress: feeAddress,
		AmountInCents: amountInCents, Asset: asset, Network: network, Status: repository.StatusPending,
	}
	f.transactions[id] = tx
	return tx, nil
}
func (f *fakeRepo) GetTransaction(ctx context.Context, id string) (*repository.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[id]
	if !ok {
		return nil, nil
	}
	cpy := *tx
	return &cpy, nil
}
func (f *fakeRepo) UpdateTransactionStatus(ctx context.Context, id string, status repository.TxStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.transactions[id]
	if !ok || tx.Status.Terminal() {
		return nil
	}
	tx.Status = status
	return nil
}
func (f *fakeRepo) UpdateFeeCollected(ctx context.Context, id string, feeCollected uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeCollected[id] = feeCollected
	return nil
}
func (f *fakeRepo) GetTransactionCount(ctx context.Context, userID string, statusFilter repository.TxStatus) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) GetDailySpending(ctx context.Context, userID string) (int64, error) { return 0, nil }
func (f *fakeRepo) GetReferrerAddress(ctx context.Context, userID string) (*string, error) {
	return f.referrer[userID], nil
}
func (f *fakeRepo) InsertSwap(ctx context.Context, quoteSubID int64, sell, receive assetid.Asset, amount uint64) (*repository.Swap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapInserts++
	return &repository.Swap{}, nil
}
func (f *fakeRepo) UpdateSwapStatus(ctx context.Context, quoteSubID int64, status repository.SwapStatus, txid *string) error {
	return nil
}

// fakeWallet implements walletgw.Gateway with a settable DEPIX balance and
// call counters.
type fakeWallet struct {
	mu             sync.Mutex
	balance        uint64
	broadcasts     int
	lastRecipients []walletgw.Recipient
}

func (w *fakeWallet) NewAddress(ctx context.Context) (string, error) { return "lq1fee", nil }
func (w *fakeWallet) AssetBalance(ctx context.Context, asset assetid.Asset) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}
func (w *fakeWallet) BuildTx(ctx context.Context, recipients []walletgw.Recipient) (*walletgw.UnsignedTx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRecipients = recipients
	return &walletgw.UnsignedTx{Pset: []byte("unsigned")}, nil
}
func (w *fakeWallet) Sign(ctx context.Context, tx *walletgw.UnsignedTx) (*walletgw.SignedTx, error) {
	return &walletgw.SignedTx{Pset: []byte("signed")}, nil
}
func (w *fakeWallet) FinalizeAndBroadcast(ctx context.Context, tx *walletgw.SignedTx) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadcasts++
	return "txid123", nil
}

type fakeDepositor struct{}

func (fakeDepositor) Deposit(ctx context.Context, transactionID, feeAddress string, amountInCents int64) (*pspgw.Deposit, error) {
	return &pspgw.Deposit{ID: "deposit1", QRCopyPaste: "qr", QRImageURL: "url"}, nil
}

// echoSwapServer answers any market action with an empty object under that
// action's key, enough for a drained replenishment hint's start_quotes call
// to complete without erroring.
func echoSwapServer(t *testing.T) *httptest.Server {
	var upgrader websocket.Upgrader
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in struct {
				ID     string          `json:"id"`
				Params json.RawMessage `json:"params"`
			}
			json.Unmarshal(data, &in)
			var params map[string]json.RawMessage
			json.Unmarshal(in.Params, &params)
			var action string
			for k := range params {
				action = k
			}
			result, _ := json.Marshal(map[string]interface{}{action: map[string]interface{}{"quote_sub_id": 1}})
			out, _ := json.Marshal(map[string]interface{}{"id": in.ID, "result": json.RawMessage(result)})
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}))
}

func newTestSwapClient(t *testing.T) (*swapclient.Client, func()) {
	srv := echoSwapServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	link, err := rpclink.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	client := swapclient.New(link)
	client.Start(context.Background())
	return client, func() { link.Close(); srv.Close() }
}

func TestUpdateTransactionStatusIsMonotone(t *testing.T) {
	repo := newFakeRepo()
	wallet := &fakeWallet{balance: 10_000_000_000}
	prices := priceagg.New(priceagg.Endpoints{})
	swaps, cleanup := newTestSwapClient(t)
	defer cleanup()

	svc := New(repo, wallet, prices, fakeDepositor{}, swaps)
	tx, err := repo.InsertTransaction(context.Background(), "u1", "lq1addrA", "lq1fee", 10_000, assetid.DEPIX, "liquid")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTransactionStatus(context.Background(), tx.ID, repository.StatusFinished))
	require.NoError(t, svc.UpdateTransactionStatus(context.Background(), tx.ID, repository.StatusFailed))

	reloaded, err := repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusFinished, reloaded.Status)
}

// RequestStatusUpdate round-trips through the status mailbox: the caller
// blocks until the actor loop has run the payout, and observes its result.
func TestStatusUpdateRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	wallet := &fakeWallet{balance: 10_000_000_000}
	prices := priceagg.New(priceagg.Endpoints{})
	swaps, cleanup := newTestSwapClient(t)
	defer cleanup()

	svc := New(repo, wallet, prices, fakeDepositor{}, swaps)
	tx, err := repo.InsertTransaction(context.Background(), "u1", "lq1addrA", "lq1fee", 10_000, assetid.DEPIX, "liquid")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunStatusLoop(ctx)

	require.NoError(t, svc.RequestStatusUpdate(context.Background(), tx.ID, repository.StatusEulenDepixSent))

	reloaded, err := repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusFinished, reloaded.Status)
	require.Equal(t, 1, wallet.broadcasts)
}

// A confirmed DEPIX deposit with ample inventory pays out in one pass.
func TestHappyPathDepositPaysOut(t *testing.T) {
	repo := newFakeRepo()
	wallet := &fakeWallet{balance: 10_000_000_000}
	prices := priceagg.New(priceagg.Endpoints{})
	swaps, cleanup := newTestSwapClient(t)
	defer cleanup()

	svc := New(repo, wallet, prices, fakeDepositor{}, swaps)
	tx, err := repo.InsertTransaction(context.Background(), "u1", "lq1addrA", "lq1fee", 10_000, assetid.DEPIX, "liquid")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTransactionStatus(context.Background(), tx.ID, repository.StatusEulenDepixSent))

	reloaded, err := repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusFinished, reloaded.Status)
	require.Equal(t, 1, wallet.broadcasts)
	require.Len(t, wallet.lastRecipients, 1)
	require.Equal(t, uint64(10_000_000_000-350_000_000), wallet.lastRecipients[0].Amount)
	require.Equal(t, uint64(350_000_000), repo.feeCollected[tx.ID])
}

func TestInsufficientInventoryThenSweep(t *testing.T) {
	repo := newFakeRepo()
	wallet := &fakeWallet{balance: 1_000_000}
	prices := priceagg.New(priceagg.Endpoints{})
	swaps, cleanup := newTestSwapClient(t)
	defer cleanup()

	svc := New(repo, wallet, prices, fakeDepositor{}, swaps)
	tx, err := repo.InsertTransaction(context.Background(), "u1", "lq1addrA", "lq1fee", 10_000, assetid.DEPIX, "liquid")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTransactionStatus(context.Background(), tx.ID, repository.StatusEulenDepixSent))

	reloaded, err := repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusEulenDepixSent, reloaded.Status)
	require.Equal(t, 1, svc.queue.len())

	wallet.mu.Lock()
	wallet.balance = 10_000_000_000
	wallet.mu.Unlock()

	svc.sweep(context.Background())

	reloaded, err = repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusFinished, reloaded.Status)
	require.Equal(t, 0, svc.queue.len())
}

// An under-inventory payout enqueues the transaction AND emits a
// best-effort swap hint, which a single consumer (RunHintDispatcher)
// turns into a start_quotes call and a persisted swap row.
func TestReplenishmentHintGoesThroughMailbox(t *testing.T) {
	repo := newFakeRepo()
	wallet := &fakeWallet{balance: 1_000_000}
	prices := priceagg.New(priceagg.Endpoints{})
	swaps, cleanup := newTestSwapClient(t)
	defer cleanup()

	svc := New(repo, wallet, prices, fakeDepositor{}, swaps)
	tx, err := repo.InsertTransaction(context.Background(), "u1", "lq1addrA", "lq1fee", 10_000, assetid.DEPIX, "liquid")
	require.NoError(t, err)

	ctx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	go svc.RunHintDispatcher(ctx)

	require.NoError(t, svc.UpdateTransactionStatus(context.Background(), tx.ID, repository.StatusEulenDepixSent))

	reloaded, err := repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusEulenDepixSent, reloaded.Status)
	require.Equal(t, 1, svc.queue.len())

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.swapInserts == 1
	}, time.Second, 10*time.Millisecond, "dispatcher should start quotes and persist the swap row")
}

// The referrer gets the bonus as a second recipient and the user's share
// is netted down by fee and bonus.
func TestReferralPayoutRecipients(t *testing.T) {
	coingecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 490196.08 * 1.02 spread = 500000.00 BRL, the S4 price point.
		w.Write([]byte(`{"bitcoin":{"brl":490196.08},"tether":{"brl":5.0}}`))
	}))
	defer coingecko.Close()

	prices := priceagg.New(priceagg.Endpoints{CoingeckoURL: coingecko.URL})
	priceCtx, priceCancel := context.WithCancel(context.Background())
	defer priceCancel()
	go prices.Start(priceCtx)
	require.Eventually(t, func() bool {
		_, err := prices.GetAssetPriceWithSpread(assetid.LBTC)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	repo := newFakeRepo()
	referrerAddr := "lq1addrR"
	repo.referrer["u3"] = &referrerAddr
	wallet := &fakeWallet{balance: 10_000_000_000}
	swaps, cleanup := newTestSwapClient(t)
	defer cleanup()

	svc := New(repo, wallet, prices, fakeDepositor{}, swaps)
	tx, err := repo.InsertTransaction(context.Background(), "u3", "lq1addrA", "lq1fee", 100_000, assetid.LBTC, "liquid")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTransactionStatus(context.Background(), tx.ID, repository.StatusEulenDepixSent))

	reloaded, err := repo.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusFinished, reloaded.Status)

	require.Len(t, wallet.lastRecipients, 2)
	require.Equal(t, "lq1addrA", wallet.lastRecipients[0].Address)
	require.Equal(t, uint64(193_500), wallet.lastRecipients[0].Amount)
	require.Equal(t, "lq1addrR", wallet.lastRecipients[1].Address)
	require.Equal(t, uint64(1_000), wallet.lastRecipients[1].Amount)
	require.Equal(t, uint64(5_500), repo.feeCollected[tx.ID])
}
