package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/autobot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TickHandler receives every price tick decoded from the stream.
type TickHandler func(PriceTick)

// WSClient is a client for the Polymarket CLOB market WebSocket. It turns
// book, price_change and last_trade_price events into PriceTicks.
// Reconnection is left to the caller.
type WSClient struct {
	wsURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu sync.RWMutex
	handlers  []TickHandler
}

// NewWSClient creates a client for wsURL, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{wsURL: wsURL}
}

// OnTick registers a handler for decoded ticks.
func (w *WSClient) OnTick(h TickHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Connect dials the WebSocket.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	w.conn = conn
	return nil
}

// Subscribe asks for market events on assetIDs.
func (w *WSClient) Subscribe(assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	data, err := json.Marshal(WSCommand{Type: "market", Assets: assetIDs})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// Listen reads and dispatches messages until the connection fails or ctx is
// cancelled. It always returns a non-nil error.
func (w *WSClient) Listen(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	stop := make(chan struct{})
	defer close(stop)
	go w.pingLoop(conn, stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polymarket/ws: %w: %v", domain.ErrWSDisconnect, err)
		}
		w.handleMessage(message)
	}
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return w.conn.Close()
	}
	return nil
}

func (w *WSClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// wsEvent is the union of the event shapes the market channel sends.
type wsEvent struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Price        string          `json:"price"`
	Timestamp    string          `json:"timestamp"`
	Bids         []WSPriceLevel  `json:"bids"`
	Asks         []WSPriceLevel  `json:"asks"`
	PriceChanges []wsPriceChange `json:"price_changes"`
}

type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// handleMessage decodes one frame, which is either a single event or an
// array of events, and dispatches any resulting ticks.
func (w *WSClient) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	var events []wsEvent
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &events); err != nil {
			return
		}
	} else {
		var evt wsEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return
		}
		events = []wsEvent{evt}
	}

	for i := range events {
		for _, tick := range decodeTicks(&events[i]) {
			w.dispatch(tick)
		}
	}
}

func decodeTicks(e *wsEvent) []PriceTick {
	switch e.EventType {
	case "book":
		if t, ok := BookToTick(&BookMessage{AssetID: e.AssetID, Bids: e.Bids, Asks: e.Asks, Timestamp: e.Timestamp}); ok {
			return []PriceTick{t}
		}
	case "last_trade_price":
		if t, ok := LastTradeToTick(&PriceMessage{AssetID: e.AssetID, Price: e.Price, Timestamp: e.Timestamp}); ok {
			return []PriceTick{t}
		}
	case "price_change":
		at := parseTimestamp(e.Timestamp)
		var out []PriceTick
		for _, pc := range e.PriceChanges {
			bid, errBid := strconv.ParseFloat(pc.BestBid, 64)
			ask, errAsk := strconv.ParseFloat(pc.BestAsk, 64)
			if errBid != nil || errAsk != nil || bid <= 0 || ask <= 0 {
				continue
			}
			out = append(out, PriceTick{TokenID: pc.AssetID, Price: (bid + ask) / 2, At: at})
		}
		return out
	}
	return nil
}

func (w *WSClient) dispatch(t PriceTick) {
	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()
	for _, h := range handlers {
		h(t)
	}
}
