package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moozedealer/dealer/internal/assetid"
)

// Daily and tier spending caps, in cents.
const (
	tier0CapCents = 25000
	tier1CapCents = 75000
	tier2CapCents = 150000
	dailyCapCents = 500000
)

// tierCapCents maps a user's historical confirmed-payout count to the
// per-transaction cap: counts 0/1/2 get their own cap, count 3 and beyond
// are bounded only by the daily cap.
func tierCapCents(count int64) int64 {
	switch count {
	case 0:
		return tier0CapCents
	case 1:
		return tier1CapCents
	case 2:
		return tier2CapCents
	default:
		return dailyCapCents
	}
}

// Postgres is the pgx/squirrel-backed Repository implementation. Every
// statement carries an explicit column list rather than `SELECT *`.
type Postgres struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
}

// NewPostgres wraps an already-connected pool. Connection lifecycle
// (pgxpool.New, pool.Close) belongs to the caller, per the wallet/link
// gateways' own "we own the handle, core owns the lifetime" convention.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (p *Postgres) InsertUser(ctx context.Context, referralCode *string) (*User, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	var referredBy *string
	if referralCode != nil {
		sqlStr, args, err := p.psql.Select("user_id").From("referrals").
			Where(sq.Eq{"referral_code": *referralCode}).ToSql()
		if err != nil {
			return nil, err
		}
		var ownerID string
		switch err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&ownerID); {
		case err == nil:
			referredBy = &ownerID
		case errors.Is(err, pgx.ErrNoRows):
			// Unknown code: store nothing, not an error.
		default:
			return nil, fmt.Errorf("repository: lookup referral code: %w", err)
		}
	}

	sqlStr, args, err := p.psql.Insert("users").
		Columns("id", "verified", "referred_by", "created_at", "updated_at").
		Values(id, false, referredBy, now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("repository: insert user: %w", err)
	}

	return &User{ID: id, Verified: false, ReferredBy: referredBy, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*User, error) {
	sqlStr, args, err := p.psql.Select("id", "verified", "referred_by", "created_at", "updated_at").
		From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	u := &User{}
	err = p.pool.QueryRow(ctx, sqlStr, args...).Scan(&u.ID, &u.Verified, &u.ReferredBy, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) VerifyUser(ctx context.Context, id string) error {
	sqlStr, args, err := p.psql.Update("users").
		Set("verified", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("repository: verify user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (p *Postgres) InsertPix(ctx context.Context, transactionID, eulenID, address string, amountInCents int64, expiresAt *time.Time) (*PixDeposit, error) {
	id := uuid.NewString()
	sqlStr, args, err := p.psql.Insert("pix_transactions").
		Columns("id", "transaction_id", "eulen_id", "address", "amount_in_cents", "status", "expires_at").
		Values(id, transactionID, eulenID, address, amountInCents, "pending", expiresAt).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("repository: insert pix: %w", err)
	}
	return &PixDeposit{ID: id, TransactionID: transactionID, EulenID: eulenID, Address: address, AmountInCents: amountInCents, Status: "pending", ExpiresAt: expiresAt}, nil
}

func (p *Postgres) UpdatePixStatus(ctx context.Context, eulenID, status string) (string, error) {
	sqlStr, args, err := p.psql.Update("pix_transactions").
		Set("status", status).
		Where(sq.Eq{"eulen_id": eulenID}).
		Suffix("RETURNING transaction_id").
		ToSql()
	if err != nil {
		return "", err
	}
	var transactionID string
	if err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&transactionID); err != nil {
		return "", fmt.Errorf("repository: update pix status: %w", err)
	}
	return transactionID, nil
}

// InsertTransaction enforces the tier/daily caps inside the same
// transaction that inserts the row, so concurrent deposits from the same
// user can't both slip past the cap.
func (p *Postgres) InsertTransaction(ctx context.Context, userID, address, feeAddress string, amountInCents int64, asset assetid.Asset, network string) (*Transaction, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	count, err := p.transactionCountTx(ctx, tx, userID, StatusEulenDepixSent)
	if err != nil {
		return nil, err
	}
	if cap := tierCapCents(count); amountInCents > cap {
		return nil, &CapError{Code: "ExceededAllowedTransactionAmount"}
	}

	daily, err := p.dailySpendingTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if daily+amountInCents > dailyCapCents {
		return nil, &CapError{Code: "ExceededDailyAmount"}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	hexTag, err := assetid.Hex(asset)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := p.psql.Insert("transactions").
		Columns("id", "user_id", "address", "fee_address", "amount_in_cents", "asset", "network", "status", "created_at", "updated_at").
		Values(id, userID, address, feeAddress, amountInCents, hexTag, network, string(StatusPending), now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("repository: insert transaction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: commit insert transaction: %w", err)
	}

	return &Transaction{
		ID: id, UserID: userID, Address: address, FeeAddress: feeAddress,
		AmountInCents: amountInCents, Asset: asset, Network: network,
		Status: StatusPending, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (p *Postgres) transactionCountTx(ctx context.Context, tx pgx.Tx, userID string, status TxStatus) (int64, error) {
	sqlStr, args, err := p.psql.Select("count(*)").From("transactions").
		Where(sq.Eq{"user_id": userID, "status": string(status)}).ToSql()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: count transactions: %w", err)
	}
	return count, nil
}

func (p *Postgres) dailySpendingTx(ctx context.Context, tx pgx.Tx, userID string) (int64, error) {
	sqlStr, args, err := p.psql.Select("coalesce(sum(amount_in_cents), 0)").From("transactions").
		Where(sq.Eq{"user_id": userID, "status": string(StatusEulenDepixSent)}).
		Where("created_at >= date_trunc('day', now())").
		ToSql()
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("repository: daily spending: %w", err)
	}
	return sum, nil
}

func (p *Postgres) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	sqlStr, args, err := p.psql.Select("id", "user_id", "address", "fee_address", "amount_in_cents",
		"asset", "network", "status", "fee_collected", "created_at", "updated_at").
		From("transactions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	t := &Transaction{}
	var hexTag string
	err = p.pool.QueryRow(ctx, sqlStr, args...).Scan(&t.ID, &t.UserID, &t.Address, &t.FeeAddress,
		&t.AmountInCents, &hexTag, &t.Network, &t.Status, &t.FeeCollected, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get transaction: %w", err)
	}
	asset, err := assetid.FromHex(hexTag)
	if err != nil {
		return nil, err
	}
	t.Asset = asset
	return t, nil
}

func (p *Postgres) UpdateTransactionStatus(ctx context.Context, id string, status TxStatus) error {
	sqlStr, args, err := p.psql.Update("transactions").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": []string{string(StatusFinished), string(StatusFailed)}}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("repository: update transaction status: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateFeeCollected(ctx context.Context, id string, feeCollected uint64) error {
	sqlStr, args, err := p.psql.Update("transactions").
		Set("fee_collected", feeCollected).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("repository: update fee collected: %w", err)
	}
	return nil
}

func (p *Postgres) GetTransactionCount(ctx context.Context, userID string, statusFilter TxStatus) (int64, error) {
	sqlStr, args, err := p.psql.Select("count(*)").From("transactions").
		Where(sq.Eq{"user_id": userID, "status": string(statusFilter)}).ToSql()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: count transactions: %w", err)
	}
	return count, nil
}

func (p *Postgres) GetDailySpending(ctx context.Context, userID string) (int64, error) {
	sqlStr, args, err := p.psql.Select("coalesce(sum(amount_in_cents), 0)").From("transactions").
		Where(sq.Eq{"user_id": userID, "status": string(StatusEulenDepixSent)}).
		Where("created_at >= date_trunc('day', now())").
		ToSql()
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("repository: daily spending: %w", err)
	}
	return sum, nil
}

func (p *Postgres) GetReferrerAddress(ctx context.Context, userID string) (*string, error) {
	sqlStr, args, err := p.psql.Select("r.payment_address").
		From("users u").
		Join("referrals r ON r.user_id = u.referred_by").
		Where(sq.Eq{"u.id": userID}).ToSql()
	if err != nil {
		return nil, err
	}
	var addr string
	err = p.pool.QueryRow(ctx, sqlStr, args...).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get referrer address: %w", err)
	}
	return &addr, nil
}

func (p *Postgres) InsertSwap(ctx context.Context, quoteSubID int64, sell, receive assetid.Asset, amount uint64) (*Swap, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	sellHex, err := assetid.Hex(sell)
	if err != nil {
		return nil, err
	}
	receiveHex, err := assetid.Hex(receive)
	if err != nil {
		return nil, err
	}
	sqlStr, args, err := p.psql.Insert("swaps").
		Columns("id", "quote_sub_id", "sell_asset", "receive_asset", "amount", "status", "created_at", "updated_at").
		Values(id, quoteSubID, sellHex, receiveHex, amount, string(SwapPending), now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("repository: insert swap: %w", err)
	}
	return &Swap{ID: id, QuoteSubID: quoteSubID, SellAsset: sell, ReceiveAsset: receive, Amount: amount, Status: SwapPending, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Postgres) UpdateSwapStatus(ctx context.Context, quoteSubID int64, status SwapStatus, txid *string) error {
	sqlStr, args, err := p.psql.Update("swaps").
		Set("status", string(status)).
		Set("txid", txid).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"quote_sub_id": quoteSubID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("repository: update swap status: %w", err)
	}
	return nil
}
