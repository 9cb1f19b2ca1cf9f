package ledger

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	errors "rwa-stream/errors"
	models "rwa-stream/models"
)

// fakeNode answers ledger commands with canned results keyed by command name.
type fakeNode struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(req map[string]any) map[string]any
	commands []string
	sessions []*websocket.Conn
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{t: t, handlers: map[string]func(map[string]any) map[string]any{}}
	upgrader := websocket.Upgrader{}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n.mu.Lock()
		n.sessions = append(n.sessions, conn)
		n.mu.Unlock()

		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			command, _ := req["command"].(string)

			n.mu.Lock()
			n.commands = append(n.commands, command)
			h := n.handlers[command]
			n.mu.Unlock()

			resp := map[string]any{"id": req["id"], "type": "response", "status": "success", "result": map[string]any{}}
			if h != nil {
				for k, v := range h(req) {
					resp[k] = v
				}
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) url() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

func (n *fakeNode) handle(command string, fn func(req map[string]any) map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[command] = fn
}

// dropSessions closes every server-side socket without a close frame.
func (n *fakeNode) dropSessions() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, conn := range n.sessions {
		_ = conn.Close()
	}
}

func (n *fakeNode) sessionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func result(raw string) map[string]any {
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		panic(err)
	}
	return map[string]any{"result": v}
}

func newTestClient(endpoints ...string) *Client {
	return NewClient(Config{
		Endpoints:         endpoints,
		RequestTimeout:    2 * time.Second,
		DialTimeout:       time.Second,
		MaxConnectRetries: 2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
	}, zap.NewNop())
}

func TestConnectAndDisconnectAreIdempotent(t *testing.T) {
	node := newFakeNode(t)
	c := newTestClient(node.url())

	var mu sync.Mutex
	var seen []State
	c.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, node.url(), c.Endpoint())

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	assert.Equal(t, "", c.Endpoint())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, seen)
}

func TestConnectFallsBackToNextEndpoint(t *testing.T) {
	node := newFakeNode(t)
	c := newTestClient("ws://127.0.0.1:1", node.url())

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	assert.Equal(t, node.url(), c.Endpoint())
}

func TestConnectWithRetryExhausted(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:1")

	err := c.ConnectWithRetry(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Unavailable, err))
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StateError, c.State())
	assert.False(t, c.IsConnected())
}

func TestFetchAccountTransactionsNotConnected(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:1")
	txs := c.FetchAccountTransactions(context.Background(), "rISSUER", 10)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

func TestFetchAccountTransactionsV2Shape(t *testing.T) {
	node := newFakeNode(t)
	node.handle("account_tx", func(req map[string]any) map[string]any {
		assert.Equal(t, "rISSUER1", req["account"])
		assert.Equal(t, float64(10), req["limit"])
		assert.Equal(t, float64(-1), req["ledger_index_min"])
		assert.Equal(t, false, req["forward"])
		return result(`{
			"account": "rISSUER1",
			"transactions": [{
				"hash": "H1",
				"validated": true,
				"close_time_iso": "2025-01-02T03:04:05Z",
				"tx_json": {
					"TransactionType": "Payment",
					"Account": "rISSUER1",
					"Destination": "rDEST",
					"DeliverMax": {"currency": "XYZ", "issuer": "rISSUER1", "value": "42.5"}
				},
				"meta": {"TransactionResult": "tesSUCCESS", "delivered_amount": "2500000"}
			}]
		}`)
	})

	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	txs := c.FetchAccountTransactions(context.Background(), "rISSUER1", 10)
	require.Len(t, txs, 1)
	env := txs[0]
	assert.Equal(t, "H1", env.Hash)
	assert.Equal(t, "rISSUER1", env.SourceIssuer)
	assert.True(t, env.Validated)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), env.CloseTime)
	require.NotNil(t, env.Transaction)
	assert.Equal(t, "Payment", env.Transaction.TransactionType)
	assert.Equal(t, models.AmountIssued, env.Transaction.DeliverMax.Kind)
	assert.Equal(t, "42.5", env.Transaction.DeliverMax.Value.String())
	require.NotNil(t, env.Meta)
	assert.Equal(t, "2.5", env.Meta.DeliveredAmount.Value.String())
}

func TestFetchAccountTransactionsV1Shape(t *testing.T) {
	node := newFakeNode(t)
	node.handle("account_tx", func(map[string]any) map[string]any {
		return result(`{
			"transactions": [
				{"tx": {"TransactionType": "Payment", "Account": "rA", "Amount": "1000000", "hash": "H2", "date": 1}, "meta": "201C0000", "validated": true},
				{"meta": {}, "validated": true}
			]
		}`)
	})

	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	txs := c.FetchAccountTransactions(context.Background(), "rA", 5)
	require.Len(t, txs, 2)
	assert.Equal(t, "H2", txs[0].Hash)
	assert.Nil(t, txs[0].Meta)
	assert.Equal(t, time.Unix(rippleEpoch+1, 0).UTC(), txs[0].CloseTime)
	assert.Equal(t, "1", txs[0].Transaction.Amount.Value.String())

	assert.Equal(t, "", txs[1].Hash)
	assert.Nil(t, txs[1].Transaction)
}

func TestFetchAccountTransactionsErrorResponse(t *testing.T) {
	node := newFakeNode(t)
	node.handle("account_tx", func(map[string]any) map[string]any {
		return map[string]any{"status": "error", "error": "actMalformed", "error_message": "bad account"}
	})

	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	txs := c.FetchAccountTransactions(context.Background(), "bogus", 10)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
	assert.True(t, c.IsConnected())
}

func TestAccountInfoNotFound(t *testing.T) {
	node := newFakeNode(t)
	node.handle("account_info", func(map[string]any) map[string]any {
		return map[string]any{"status": "error", "error": "actNotFound"}
	})

	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	_, err := c.AccountInfo(context.Background(), "rMissing")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotFound, err))
}

func TestIssuerSupplySumsNegativeBalances(t *testing.T) {
	node := newFakeNode(t)
	node.handle("account_info", func(map[string]any) map[string]any {
		return result(`{"account_data": {"Account": "rISSUER", "Balance": "25000000"}}`)
	})
	node.handle("account_lines", func(req map[string]any) map[string]any {
		if req["marker"] == nil {
			return result(`{"lines": [
				{"account": "rH1", "balance": "-100.5", "currency": "RLUSD"},
				{"account": "rH2", "balance": "3", "currency": "RLUSD"}
			], "marker": "page2"}`)
		}
		// RLUSD as a 160-bit code
		return result(`{"lines": [
			{"account": "rH3", "balance": "-20", "currency": "524C555344000000000000000000000000000000"},
			{"account": "rH4", "balance": "-7", "currency": "EUR"}
		]}`)
	})

	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	supply, err := c.IssuerSupply(context.Background(), "rISSUER", "RLUSD")
	require.NoError(t, err)
	assert.Equal(t, "120.5", supply.String())
}

func TestReconnectsAfterDroppedSession(t *testing.T) {
	node := newFakeNode(t)
	node.handle("account_tx", func(map[string]any) map[string]any {
		return result(`{"transactions": [{"hash": "H1", "validated": true, "tx_json": {"TransactionType": "Payment"}, "meta": {}}]}`)
	})

	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	require.Len(t, c.FetchAccountTransactions(context.Background(), "rA", 5), 1)

	node.dropSessions()

	require.Eventually(t, func() bool {
		return node.sessionCount() == 2 && c.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond)
	txs := c.FetchAccountTransactions(context.Background(), "rA", 5)
	require.Len(t, txs, 1)
	assert.Equal(t, "H1", txs[0].Hash)
}

func TestReconnectExhaustedReachesError(t *testing.T) {
	node := newFakeNode(t)
	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	node.server.Close()
	node.dropSessions()

	require.Eventually(t, func() bool { return c.State() == StateError }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.IsConnected())
}

func TestDisconnectDoesNotReconnect(t *testing.T) {
	node := newFakeNode(t)
	c := newTestClient(node.url())
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Disconnect())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, node.sessionCount())
}
