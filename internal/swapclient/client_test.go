package swapclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/moozedealer/dealer/internal/rpclink"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// venueServer answers get_markets with a one-pair result and then pushes a
// Success quote notification, the way the venue behaves during a swap.
func venueServer(t *testing.T) *httptest.Server {
	var upgrader websocket.Upgrader
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var in wireFrame
		require.NoError(t, json.Unmarshal(data, &in))

		markets := []Market{{BaseAsset: "DEPIX", QuoteAsset: "LBTC", FeeAsset: "LBTC", AssetType: SideBase}}
		resultBody, _ := json.Marshal(map[string]interface{}{"get_markets": markets})
		out, _ := json.Marshal(wireFrame{ID: in.ID, Result: resultBody})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))

		notif, _ := json.Marshal(map[string]interface{}{
			"method": "market",
			"params": map[string]interface{}{
				"quote": map[string]interface{}{
					"quote_sub_id": 42,
					"Success": map[string]interface{}{
						"quote_id":     "q1",
						"base_amount":  5_000_000_000,
						"quote_amount": 100_000,
						"server_fee":   10,
						"fixed_fee":    5,
						"ttl":          30,
					},
				},
			},
		})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, notif))

		time.Sleep(50 * time.Millisecond)
	}))
}

func TestGetMarketsAndSuccessNotification(t *testing.T) {
	srv := venueServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	link, err := rpclink.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer link.Close()

	client := New(link)
	client.Start(context.Background())

	markets, err := client.GetMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.Equal(t, "DEPIX", markets[0].BaseAsset)

	select {
	case n := <-client.Notifications():
		require.Equal(t, int64(42), n.QuoteSubID)
		require.Equal(t, QuoteSuccess, n.Status.Kind)
		require.Equal(t, "q1", n.Status.QuoteID)
		require.Equal(t, uint64(5_000_000_000), n.Status.BaseAmount)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestCallMarketMissingSubKeyIsProtocolError(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var in wireFrame
		require.NoError(t, json.Unmarshal(data, &in))

		resultBody, _ := json.Marshal(map[string]interface{}{"wrong_key": 1})
		out, _ := json.Marshal(wireFrame{ID: in.ID, Result: resultBody})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	link, err := rpclink.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer link.Close()

	client := New(link)
	client.Start(context.Background())

	_, err = client.GetMarkets(context.Background())
	require.Error(t, err)

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, "get_markets", protoErr.Action)
}
