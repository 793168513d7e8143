package polymarket_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/autobot/internal/crypto"
	"github.com/alanyoungcy/autobot/internal/domain"
	"github.com/alanyoungcy/autobot/internal/platform/polymarket"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestMidpointRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/midpoint", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token_id"))
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"mid":"0.455"}`))
	}))
	defer srv.Close()

	c := polymarket.NewClobClient(srv.URL, nil, nil, polymarket.WithHTTPClient(srv.Client()))
	mid, err := c.Midpoint(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.455, mid, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMidpointNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no orderbook", http.StatusNotFound)
	}))
	defer srv.Close()

	c := polymarket.NewClobClient(srv.URL, nil, nil)
	_, err := c.Midpoint(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuoteSourceValidatesRange(t *testing.T) {
	tests := []struct {
		mid     string
		want    float64
		wantErr bool
	}{
		{mid: "0.455", want: 0.455},
		{mid: "0", want: 0},
		{mid: "1", want: 1},
		{mid: "1.2", wantErr: true},
		{mid: "-0.1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.mid, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"mid":"` + tt.mid + `"}`))
			}))
			defer srv.Close()

			q := polymarket.NewQuoteSource(polymarket.NewClobClient(srv.URL, nil, nil, polymarket.WithRateLimit(100, 5)), time.Second)
			got, err := q.Price(context.Background(), "tok")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "outside [0, 1]")
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestQuoteSourceHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	q := polymarket.NewQuoteSource(polymarket.NewClobClient(srv.URL, nil, nil), 50*time.Millisecond)
	start := time.Now()
	_, err := q.Price(context.Background(), "tok")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDeriveAPIKeyThenPostOrder(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 137)
	require.NoError(t, err)

	var posted map[string]any
	var l2Key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/derive-api-key":
			assert.Equal(t, signer.Address().Hex(), r.Header.Get("POLY_ADDRESS"))
			assert.True(t, strings.HasPrefix(r.Header.Get("POLY_SIGNATURE"), "0x"))
			w.Write([]byte(`{"apiKey":"key-1","secret":"c2VjcmV0","passphrase":"pp"}`))
		case "/order":
			l2Key = r.Header.Get("POLY_API_KEY")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.Write([]byte(`{"success":true,"orderID":"ord-9","status":"matched"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := polymarket.NewClobClient(srv.URL, signer, nil)
	require.NoError(t, c.DeriveAPIKey(context.Background()))

	res, err := c.PostOrder(context.Background(), domain.Order{
		TokenID:       "123",
		Wallet:        signer.Address().Hex(),
		Side:          domain.OrderSideBuy,
		Type:          domain.OrderTypeFOK,
		MakerAmount:   big.NewInt(2_400_000_000),
		TakerAmount:   big.NewInt(6_000_000_000),
		Salt:          "42",
		SignatureType: 0,
		Signature:     "0xabc",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ord-9", res.OrderID)
	assert.Equal(t, domain.OrderStatusMatched, res.Status)

	assert.Equal(t, "key-1", l2Key)
	assert.Equal(t, "key-1", posted["owner"])
	assert.Equal(t, "FOK", posted["orderType"])
	order := posted["order"].(map[string]any)
	assert.Equal(t, "2400000000", order["makerAmount"])
	assert.Equal(t, "BUY", order["side"])
	assert.EqualValues(t, 42, order["salt"])
}

func TestPostOrderRejectionIsAResult(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 137)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errorMsg":"not enough balance"}`))
	}))
	defer srv.Close()

	c := polymarket.NewClobClient(srv.URL, signer, nil)
	res, err := c.PostOrder(context.Background(), domain.Order{
		Salt: "1", MakerAmount: big.NewInt(1), TakerAmount: big.NewInt(1),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.OrderStatusFailed, res.Status)
	assert.Equal(t, "not enough balance", res.Message)
}

func TestBookToTick(t *testing.T) {
	tick, ok := polymarket.BookToTick(&polymarket.BookMessage{
		AssetID:   "tok",
		Bids:      []polymarket.WSPriceLevel{{Price: "0.40", Size: "10"}, {Price: "0.44", Size: "5"}},
		Asks:      []polymarket.WSPriceLevel{{Price: "0.50", Size: "10"}, {Price: "0.46", Size: "1"}},
		Timestamp: "1772463600000",
	})
	require.True(t, ok)
	assert.InDelta(t, 0.45, tick.Price, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), tick.At)

	_, ok = polymarket.BookToTick(&polymarket.BookMessage{Bids: []polymarket.WSPriceLevel{{Price: "0.4"}}})
	assert.False(t, ok)
}

func TestLastTradeToTickAcceptsZero(t *testing.T) {
	tick, ok := polymarket.LastTradeToTick(&polymarket.PriceMessage{AssetID: "tok", Price: "0"})
	require.True(t, ok)
	assert.Zero(t, tick.Price)

	_, ok = polymarket.LastTradeToTick(&polymarket.PriceMessage{AssetID: "tok", Price: "1.5"})
	assert.False(t, ok)
}

func TestWSClientDecodesTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if !assert.NoError(t, err) {
			return
		}
		assert.JSONEq(t, `{"type":"market","assets_ids":["a","b"]}`, string(sub))

		conn.WriteMessage(websocket.TextMessage, []byte(`[{"event_type":"book","asset_id":"a","bids":[{"price":"0.30","size":"1"}],"asks":[{"price":"0.34","size":"1"}]}]`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"last_trade_price","asset_id":"b","price":"0.71"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"price_change","price_changes":[{"asset_id":"a","best_bid":"0.31","best_ask":"0.35"}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var ticks []polymarket.PriceTick
	c := polymarket.NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	c.OnTick(func(t polymarket.PriceTick) {
		mu.Lock()
		ticks = append(ticks, t)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe([]string{"a", "b"}))

	err := c.Listen(ctx)
	assert.ErrorIs(t, err, domain.ErrWSDisconnect)
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ticks, 3)
	assert.Equal(t, "a", ticks[0].TokenID)
	assert.InDelta(t, 0.32, ticks[0].Price, 1e-9)
	assert.Equal(t, "b", ticks[1].TokenID)
	assert.InDelta(t, 0.71, ticks[1].Price, 1e-9)
	assert.InDelta(t, 0.33, ticks[2].Price, 1e-9)
}
