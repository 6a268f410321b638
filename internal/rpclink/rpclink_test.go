package rpclink

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
	"github.com/stretchr/testify/require"
)

// echoServer reads {id, method, params} frames and, once two calls have
// been seen, replies to the second-received call before the first, echoing
// each call's params back as its result.
func echoServer(t *testing.T) *httptest.Server {
	var upgrader websocket.Upgrader

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var order []string
		seen := map[string]json.RawMessage{}
		for len(seen) < 2 {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			order = append(order, f.ID)
			seen[f.ID] = f.Params
		}

		reply := func(id string) {
			out, _ := json.Marshal(frame{ID: id, Result: seen[id]})
			_ = conn.WriteMessage(websocket.TextMessage, out)
		}
		reply(order[1])
		reply(order[0])

		// keep the connection open briefly so the callers can drain
		// their replies before the socket drops.
		time.Sleep(50 * time.Millisecond)
	}))
}

func dialTestServer(t *testing.T, srv *httptest.Server) *Link {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	link, err := Dial(context.Background(), wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = link.Close() })
	return link
}

func TestCallCorrelationUnderReordering(t *testing.T) {
	// The server replies to the second call first; each caller must still
	// receive its own echo, not whichever reply arrives first.
	srv := echoServer(t)
	defer srv.Close()

	link := dialTestServer(t, srv)

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex

	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			res, err := link.Call(context.Background(), "echo", tag)
			require.NoError(t, err)
			var got string
			require.NoError(t, json.Unmarshal(res, &got))
			mu.Lock()
			results[tag] = got
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	require.Equal(t, "a", results["a"])
	require.Equal(t, "b", results["b"])
}

func TestCallFailsAfterClose(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	link := dialTestServer(t, srv)
	require.NoError(t, link.Close())

	_, err := link.Call(context.Background(), "echo", "x")
	require.Error(t, err)

	var linkErr *Error
	require.ErrorAs(t, err, &linkErr)
	require.Equal(t, LinkClosed, linkErr.Kind)
}
