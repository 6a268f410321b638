package pspgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/moozedealer/dealer/internal/dealererr"
)

// HTTPGateway is the production Gateway: a plain net/http client against
// the PSP's REST API, matching the price-source clients' own choice not to
// reach for a heavier HTTP library for a handful of JSON endpoints.
type HTTPGateway struct {
	baseURL   string
	authToken string
	client    *http.Client
}

func NewHTTPGateway(baseURL, authToken string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   baseURL,
		authToken: authToken,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type depositRequestWire struct {
	AmountInCents int64  `json:"amountInCents"`
	PixAddress    string `json:"pixAddress"`
}

// depositResponseWire is the PSP's deposit object; the HTTP reply wraps it
// under a top-level "response" key.
type depositResponseWire struct {
	Response struct {
		ID          string `json:"id"`
		QRCopyPaste string `json:"qrCopyPaste"`
		QRImageURL  string `json:"qrImageUrl"`
		Expiration  string `json:"expiration"`
	} `json:"response"`
}

func (g *HTTPGateway) CreateDeposit(ctx context.Context, req DepositRequest) (*Deposit, error) {
	body, err := json.Marshal(depositRequestWire{
		AmountInCents: req.AmountInCents,
		PixAddress:    req.Address,
	})
	if err != nil {
		return nil, dealererr.Wrap(dealererr.ExternalService, "PspMarshalFailed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/deposit", bytes.NewReader(body))
	if err != nil {
		return nil, dealererr.Wrap(dealererr.ExternalService, "PspRequestFailed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.authToken)
	httpReq.Header.Set("X-Nonce", req.Nonce)
	httpReq.Header.Set("X-Async", "true")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, dealererr.Wrap(dealererr.ExternalService, "PspRequestFailed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, dealererr.New(dealererr.ExternalService, "PspNonOKStatus",
			fmt.Sprintf("psp returned status %d", resp.StatusCode))
	}

	var wire depositResponseWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, dealererr.Wrap(dealererr.ExternalService, "PspDecodeFailed", err)
	}

	deposit := &Deposit{
		ID:          wire.Response.ID,
		QRCopyPaste: wire.Response.QRCopyPaste,
		QRImageURL:  wire.Response.QRImageURL,
	}
	if wire.Response.Expiration != "" {
		if t, err := time.Parse(time.RFC3339, wire.Response.Expiration); err == nil {
			deposit.ExpiresAt = &t
		}
	}
	return deposit, nil
}
