package priceagg

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/moozedealer/dealer/internal/dealererr"
	"github.com/stretchr/testify/require"
)

func TestSpreadAppliedWhenOnlyOneSourceSucceeds(t *testing.T) {
	coingecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"brl":100.0},"tether":{"brl":5.0}}`))
	}))
	defer coingecko.Close()

	binance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer binance.Close()

	agg := New(Endpoints{CoingeckoURL: coingecko.URL, BinanceURL: binance.URL})
	agg.tick()

	price, err := agg.GetAssetPriceWithSpread(assetid.LBTC)
	require.NoError(t, err)
	require.InDelta(t, 102.0, price, 1e-9)
}

func TestDepixIsAlwaysOne(t *testing.T) {
	agg := New(Endpoints{})
	price, err := agg.GetAssetPriceWithSpread(assetid.DEPIX)
	require.NoError(t, err)
	require.Equal(t, 1.0, price)
}

func TestUnavailableBeforeFirstTick(t *testing.T) {
	agg := New(Endpoints{})
	_, err := agg.GetAssetPriceWithSpread(assetid.USDt)
	require.Error(t, err)

	dErr, ok := dealererr.Of(err)
	require.True(t, ok)
	require.Equal(t, dealererr.ExternalService, dErr.Kind)
}

func TestStalePriceKeptWhenBothSourcesFail(t *testing.T) {
	coingecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{"brl":200.0},"tether":{"brl":5.0}}`))
	}))
	defer coingecko.Close()
	binance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer binance.Close()

	agg := New(Endpoints{CoingeckoURL: coingecko.URL, BinanceURL: binance.URL})
	agg.tick()

	price, err := agg.GetAssetPriceWithSpread(assetid.LBTC)
	require.NoError(t, err)
	require.InDelta(t, 204.0, price, 1e-9)

	// Now both sources fail; the cached value must survive untouched.
	coingecko.Close()
	binance.Close()
	agg.tick()

	price2, err := agg.GetAssetPriceWithSpread(assetid.LBTC)
	require.NoError(t, err)
	require.InDelta(t, price, price2, 1e-9)
}
