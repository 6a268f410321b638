// Package swapclient implements the domain wrapper over rpclink.Link
// specialized to the swap venue's "method=market,
// params={<action>: {...}}" convention.
package swapclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/decred/slog"
	"github.com/moozedealer/dealer/internal/rpclink"
)

var log slog.Logger = slog.Disabled

// UseLogger binds the package-level logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// ProtocolError is returned whenever the venue's reply is missing the
// expected action sub-key or fails to deserialize into the expected shape.
type ProtocolError struct {
	Action string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("swapclient: protocol error in %q: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("swapclient: protocol error in %q: missing result key", e.Action)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Client is a thin, stateless domain wrapper over an rpclink.Link. It owns
// the notification demultiplexer goroutine started by Start.
type Client struct {
	link *rpclink.Link

	notifyOut chan Notification
}

// New wraps an already-dialed link. The caller must call Start once to
// begin demultiplexing notifications.
func New(link *rpclink.Link) *Client {
	return &Client{
		link:      link,
		notifyOut: make(chan Notification, 64),
	}
}

// Start launches the notification demultiplexer goroutine. It is the
// link's single notification consumer: it decodes every "market"
// notification whose params carry a
// "quote" object into a QuoteStatus, forwarding (quote_sub_id, status) on
// Notifications(). Unknown methods are logged and dropped.
func (c *Client) Start(ctx context.Context) {
	notifs := c.link.Notifications()
	go func() {
		for {
			select {
			case raw, ok := <-notifs:
				if !ok {
					close(c.notifyOut)
					return
				}
				c.handleNotification(raw)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Notifications returns the channel of decoded quote-status updates.
func (c *Client) Notifications() <-chan Notification {
	return c.notifyOut
}

func (c *Client) handleNotification(raw json.RawMessage) {
	var env struct {
		Method string `json:"method"`
		Params struct {
			Quote *struct {
				QuoteSubID int64           `json:"quote_sub_id"`
				Success    *quoteSuccess   `json:"Success"`
				LowBalance *quoteLowBal    `json:"LowBalance"`
				Error      *quoteErrorWire `json:"Error"`
			} `json:"quote"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warnf("swapclient: dropping unparseable notification: %v", err)
		return
	}
	if env.Method != "market" || env.Params.Quote == nil {
		log.Debugf("swapclient: dropping unknown notification method %q", env.Method)
		return
	}

	q := env.Params.Quote
	var status QuoteStatus
	switch {
	case q.Success != nil:
		status = QuoteStatus{
			Kind:        QuoteSuccess,
			QuoteID:     q.Success.QuoteID,
			BaseAmount:  q.Success.BaseAmount,
			QuoteAmount: q.Success.QuoteAmount,
			ServerFee:   q.Success.ServerFee,
			FixedFee:    q.Success.FixedFee,
			TTL:         q.Success.TTL,
		}
	case q.LowBalance != nil:
		status = QuoteStatus{
			Kind:        QuoteLowBalance,
			BaseAmount:  q.LowBalance.BaseAmount,
			QuoteAmount: q.LowBalance.QuoteAmount,
			ServerFee:   q.LowBalance.ServerFee,
			FixedFee:    q.LowBalance.FixedFee,
			Available:   q.LowBalance.Available,
		}
	case q.Error != nil:
		status = QuoteStatus{Kind: QuoteError, ErrorMsg: q.Error.ErrorMsg}
	default:
		log.Debugf("swapclient: quote notification with no known variant")
		return
	}

	c.notifyOut <- Notification{QuoteSubID: q.QuoteSubID, Status: status}
}

type quoteSuccess struct {
	QuoteID     string `json:"quote_id"`
	BaseAmount  uint64 `json:"base_amount"`
	QuoteAmount uint64 `json:"quote_amount"`
	ServerFee   uint64 `json:"server_fee"`
	FixedFee    uint64 `json:"fixed_fee"`
	TTL         int64  `json:"ttl"`
}

type quoteLowBal struct {
	BaseAmount  uint64 `json:"base_amount"`
	QuoteAmount uint64 `json:"quote_amount"`
	ServerFee   uint64 `json:"server_fee"`
	FixedFee    uint64 `json:"fixed_fee"`
	Available   uint64 `json:"available"`
}

type quoteErrorWire struct {
	ErrorMsg string `json:"error_msg"`
}

// Login authenticates the connection. Required once per connection before
// any market call.
func (c *Client) Login(ctx context.Context, apiKey string) error {
	_, err := c.link.Call(ctx, "login", map[string]string{"api_key": apiKey})
	return err
}

// callMarket performs the "method=market, params={action: body}" call and
// extracts the action-specific sub-key from the result.
func (c *Client) callMarket(ctx context.Context, action string, body, out interface{}) error {
	result, err := c.link.Call(ctx, "market", map[string]interface{}{action: body})
	if err != nil {
		return err
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(result, &env); err != nil {
		return &ProtocolError{Action: action, Err: err}
	}
	sub, ok := env[action]
	if !ok {
		return &ProtocolError{Action: action}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(sub, out); err != nil {
		return &ProtocolError{Action: action, Err: err}
	}
	return nil
}

// GetMarkets lists every tradable pair the venue supports.
func (c *Client) GetMarkets(ctx context.Context) ([]Market, error) {
	var markets []Market
	if err := c.callMarket(ctx, "get_markets", struct{}{}, &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// StartQuotes opens a quote subscription for the given request.
func (c *Client) StartQuotes(ctx context.Context, req QuoteRequest) (*StartQuotesResult, error) {
	var res StartQuotesResult
	if err := c.callMarket(ctx, "start_quotes", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetQuotePset obtains the unsigned taker PSET for a Success quote. The
// venue names the action "get_quote" on the wire.
func (c *Client) GetQuotePset(ctx context.Context, quoteID string) (*QuotePsetResult, error) {
	var res QuotePsetResult
	body := map[string]string{"quote_id": quoteID}
	if err := c.callMarket(ctx, "get_quote", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TakerSign submits the user-signed PSET; the venue countersigns and
// broadcasts.
func (c *Client) TakerSign(ctx context.Context, quoteID string, signedPset []byte) (*TakerSignResult, error) {
	var res TakerSignResult
	body := map[string]interface{}{
		"quote_id":    quoteID,
		"signed_pset": signedPset,
	}
	if err := c.callMarket(ctx, "taker_sign", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StopQuotes fire-and-forget cancels the active subscription: the call is
// made on a background context in its own goroutine so StopQuotes never
// blocks its caller.
func (c *Client) StopQuotes(quoteSubID int64) {
	go func() {
		body := map[string]int64{"quote_sub_id": quoteSubID}
		if err := c.callMarket(context.Background(), "stop_quotes", body, nil); err != nil {
			log.Warnf("swapclient: stop_quotes(%d) failed: %v", quoteSubID, err)
		}
	}()
}
