package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/priceagg"
	"github.com/moozedealer/dealer/internal/pspgw"
	"github.com/moozedealer/dealer/internal/pspservice"
	"github.com/moozedealer/dealer/internal/repository"
	"github.com/moozedealer/dealer/internal/swapclient"
	"github.com/moozedealer/dealer/internal/txservice"
	"github.com/moozedealer/dealer/internal/userservice"
	"github.com/moozedealer/dealer/internal/walletgw"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	users map[string]*repository.User
	txs   map[string]*repository.Transaction
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*repository.User{}, txs: map[string]*repository.Transaction{}}
}

func (r *memRepo) InsertUser(ctx context.Context, referralCode *string) (*repository.User, error) {
	u := &repository.User{ID: "u-new"}
	r.users[u.ID] = u
	return u, nil
}
func (r *memRepo) GetUserByID(ctx context.Context, id string) (*repository.User, error) {
	return r.users[id], nil
}
func (r *memRepo) VerifyUser(ctx context.Context, id string) error {
	if u, ok := r.users[id]; ok {
		u.Verified = true
	}
	return nil
}
func (r *memRepo) InsertPix(ctx context.Context, transactionID, eulenID, address string, amountInCents int64, expiresAt *time.Time) (*repository.PixDeposit, error) {
	return &repository.PixDeposit{}, nil
}
func (r *memRepo) UpdatePixStatus(ctx context.Context, eulenID, status string) (string, error) {
	return "", nil
}
func (r *memRepo) InsertTransaction(ctx context.Context, userID, address, feeAddress string, amountInCents int64, asset assetid.Asset, network string) (*repository.Transaction, error) {
	tx := &repository.Transaction{ID: "tx1", UserID: userID, Status: repository.StatusPending}
	r.txs["tx1"] = tx
	return tx, nil
}
func (r *memRepo) GetTransaction(ctx context.Context, id string) (*repository.Transaction, error) {
	return r.txs[id], nil
}
func (r *memRepo) UpdateTransactionStatus(ctx context.Context, id string, status repository.TxStatus) error {
	return nil
}
func (r *memRepo) UpdateFeeCollected(ctx context.Context, id string, feeCollected uint64) error {
	return nil
}
func (r *memRepo) GetTransactionCount(ctx context.Context, userID string, statusFilter repository.TxStatus) (int64, error) {
	return 0, nil
}
func (r *memRepo) GetDailySpending(ctx context.Context, userID string) (int64, error) { return 0, nil }
func (r *memRepo) GetReferrerAddress(ctx context.Context, userID string) (*string, error) {
	return nil, nil
}
func (r *memRepo) InsertSwap(ctx context.Context, quoteSubID int64, sell, receive assetid.Asset, amount uint64) (*repository.Swap, error) {
	return &repository.Swap{}, nil
}
func (r *memRepo) UpdateSwapStatus(ctx context.Context, quoteSubID int64, status repository.SwapStatus, txid *string) error {
	return nil
}

type stubWallet struct{}

func (stubWallet) NewAddress(ctx context.Context) (string, error) { return "lq1fee", nil }
func (stubWallet) AssetBalance(ctx context.Context, asset assetid.Asset) (uint64, error) {
	return 0, nil
}
func (stubWallet) BuildTx(ctx context.Context, recipients []walletgw.Recipient) (*walletgw.UnsignedTx, error) {
	return &walletgw.UnsignedTx{}, nil
}
func (stubWallet) Sign(ctx context.Context, tx *walletgw.UnsignedTx) (*walletgw.SignedTx, error) {
	return &walletgw.SignedTx{}, nil
}
func (stubWallet) FinalizeAndBroadcast(ctx context.Context, tx *walletgw.SignedTx) (string, error) {
	return "txid", nil
}

type stubPsp struct{}

func (stubPsp) CreateDeposit(ctx context.Context, req pspgw.DepositRequest) (*pspgw.Deposit, error) {
	return &pspgw.Deposit{ID: "d1", QRCopyPaste: "qr", QRImageURL: "url"}, nil
}

func newTestServer(t *testing.T) *Server {
	repo := newMemRepo()
	users := userservice.New(repo)
	psp := pspservice.New(stubPsp{}, repo)

	// SwapClient is only exercised by the payout path when the inventory
	// check fails; none of these tests reach it, so a nil-link client that
	// is never called is sufficient.
	swaps := swapclient.New(nil)

	prices := priceagg.New(priceagg.Endpoints{})
	tx := txservice.New(repo, stubWallet{}, prices, psp, swaps)
	psp.SetStatusUpdater(tx)

	return NewServer(users, tx, psp)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestDepositRejectsNonDepixAsset(t *testing.T) {
	srv := newTestServer(t)
	body := `{"user_id":"u1","address":"lq1addrA","amount_in_cents":10000,"asset":"` + assetid.MustHex(assetid.LBTC) + `","network":"liquid"}`
	req := httptest.NewRequest(http.MethodPost, "/deposit", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRegisterThenGetUser(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "u-new", created["user_id"])

	req2 := httptest.NewRequest(http.MethodGet, "/user/u-new", nil)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}
