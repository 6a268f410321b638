package priceagg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// httpClient is shared across both upstreams; neither one needs anything
// beyond the stdlib default transport plus a conservative timeout.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// coingeckoPrices fetches BRL spot prices for bitcoin and tether from a
// Coingecko-compatible endpoint.
func coingeckoPrices(baseURL string) (btc, usdt float64, err error) {
	url := fmt.Sprintf("%s/api/v3/simple/price?ids=bitcoin,tether&vs_currencies=brl", baseURL)
	resp, err := httpClient.Get(url)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Bitcoin struct {
			BRL float64 `json:"brl"`
		} `json:"bitcoin"`
		Tether struct {
			BRL float64 `json:"brl"`
		} `json:"tether"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("coingecko: decode: %w", err)
	}

	return body.Bitcoin.BRL, body.Tether.BRL, nil
}

// binancePrices fetches BTCBRL/USDTBRL tickers from a Binance-compatible
// endpoint.
func binancePrices(baseURL string) (btc, usdt float64, err error) {
	url := fmt.Sprintf(`%s/api/v3/ticker/price?symbols=["BTCBRL","USDTBRL"]`, baseURL)
	resp, err := httpClient.Get(url)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("binance: unexpected status %d", resp.StatusCode)
	}

	var tickers []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return 0, 0, fmt.Errorf("binance: decode: %w", err)
	}

	for _, t := range tickers {
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		switch t.Symbol {
		case "BTCBRL":
			btc = p
		case "USDTBRL":
			usdt = p
		}
	}
	return btc, usdt, nil
}
