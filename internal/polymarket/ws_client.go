package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hedgebot/internal/types"
)

const (
	PolymarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	reconnectDelay = 5 * time.Second
)

// TokenPrice holds real-time top of book for a token
type TokenPrice struct {
	TokenID   string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	UpdatedAt time.Time
}

// wsBookSnapshot is the order book snapshot sent after subscribing
type wsBookSnapshot struct {
	Market    string `json:"market"`
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Bids      []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// wsPriceChange is a real-time price update
type wsPriceChange struct {
	Market       string `json:"market"`
	EventType    string `json:"event_type"`
	PriceChanges []struct {
		AssetID string `json:"asset_id"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
}

// WSClient keeps a market-channel websocket open and caches best bid/ask
// per subscribed token. It reconnects until its context ends.
type WSClient struct {
	url    string
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]bool // tokenId -> wanted, replayed on reconnect

	pricesMu sync.RWMutex
	prices   map[string]*TokenPrice

	now func() time.Time
}

// NewWSClient creates a websocket client for url (default feed when empty)
func NewWSClient(url string) *WSClient {
	if url == "" {
		url = PolymarketWSURL
	}
	return &WSClient{
		url:        url,
		dialer:     websocket.DefaultDialer,
		subscribed: make(map[string]bool),
		prices:     make(map[string]*TokenPrice),
		now:        time.Now,
	}
}

// Run connects and reads until ctx is cancelled, reconnecting on failure
func (c *WSClient) Run(ctx context.Context) error {
	for {
		if err := c.connect(ctx); err != nil {
			log.Warn().Err(err).Msg("WebSocket connect failed")
		} else {
			c.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case <-time.After(reconnectDelay):
			log.Info().Msg("🔄 Reconnecting market WebSocket...")
		}
	}
}

func (c *WSClient) connect(ctx context.Context) error {
	log.Info().Str("url", c.url).Msg("Connecting to Polymarket WebSocket...")

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("polymarket: websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	// Re-subscribe everything known on the fresh connection
	tokens := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		tokens = append(tokens, id)
	}
	c.mu.Unlock()

	if len(tokens) > 0 {
		if err := c.send(tokens); err != nil {
			c.dropConn(conn)
			return err
		}
	}

	log.Info().Int("tokens", len(tokens)).Msg("✅ Connected to Polymarket WebSocket")
	return nil
}

// Subscribe adds tokens to the feed. Unknown tokens are remembered and
// sent on the next connection when the socket is down.
func (c *WSClient) Subscribe(tokenIDs ...string) {
	fresh := make([]string, 0, len(tokenIDs))
	c.mu.Lock()
	for _, id := range tokenIDs {
		if id == "" || c.subscribed[id] {
			continue
		}
		c.subscribed[id] = true
		fresh = append(fresh, id)
	}
	connected := c.conn != nil
	c.mu.Unlock()

	if len(fresh) == 0 || !connected {
		return
	}
	if err := c.send(fresh); err != nil {
		log.Warn().Err(err).Msg("WebSocket subscribe failed")
		return
	}
	log.Debug().Int("tokens", len(fresh)).Msg("📡 Subscribed to market WebSocket")
}

func (c *WSClient) send(tokenIDs []string) error {
	msg, err := json.Marshal(map[string]interface{}{
		"type":       "market",
		"assets_ids": tokenIDs,
	})
	if err != nil {
		return fmt.Errorf("polymarket: encode subscribe: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("polymarket: websocket not connected")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("polymarket: subscribe: %w", err)
	}
	return nil
}

// Lookup returns the cached ask (side BUY) or bid (side SELL) for a token
// when it is non-zero and no older than maxAge
func (c *WSClient) Lookup(tokenID, side string, maxAge time.Duration) (decimal.Decimal, bool) {
	c.pricesMu.RLock()
	defer c.pricesMu.RUnlock()

	p, ok := c.prices[tokenID]
	if !ok || c.now().Sub(p.UpdatedAt) > maxAge {
		return decimal.Zero, false
	}

	price := p.BestBid
	if side == types.SideBuy {
		price = p.BestAsk
	}
	if price.IsZero() {
		return decimal.Zero, false
	}
	return price, true
}

func (c *WSClient) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("WebSocket read error")
			}
			c.dropConn(conn)
			return
		}
		c.handleMessage(message)
	}
}

func (c *WSClient) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err == nil {
		switch head.EventType {
		case "price_change":
			var change wsPriceChange
			if err := json.Unmarshal(data, &change); err == nil {
				c.handlePriceChange(&change)
			}
		case "book":
			var snap wsBookSnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				c.handleSnapshot(&snap)
			}
		}
		return
	}

	// Initial subscription response is an array of book snapshots
	var snapshots []wsBookSnapshot
	if err := json.Unmarshal(data, &snapshots); err == nil {
		for i := range snapshots {
			c.handleSnapshot(&snapshots[i])
		}
	}
}

func (c *WSClient) handleSnapshot(snap *wsBookSnapshot) {
	if snap.AssetID == "" {
		return
	}

	var bestBid, bestAsk decimal.Decimal
	if len(snap.Bids) > 0 {
		bestBid, _ = decimal.NewFromString(snap.Bids[0].Price)
	}
	if len(snap.Asks) > 0 {
		bestAsk, _ = decimal.NewFromString(snap.Asks[0].Price)
	}

	c.pricesMu.Lock()
	c.prices[snap.AssetID] = &TokenPrice{
		TokenID:   snap.AssetID,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		UpdatedAt: c.now(),
	}
	c.pricesMu.Unlock()
}

func (c *WSClient) handlePriceChange(pc *wsPriceChange) {
	c.pricesMu.Lock()
	defer c.pricesMu.Unlock()

	for _, change := range pc.PriceChanges {
		bestBid, _ := decimal.NewFromString(change.BestBid)
		bestAsk, _ := decimal.NewFromString(change.BestAsk)

		existing, ok := c.prices[change.AssetID]
		if !ok {
			existing = &TokenPrice{TokenID: change.AssetID}
			c.prices[change.AssetID] = existing
		}
		existing.BestBid = bestBid
		existing.BestAsk = bestAsk
		existing.UpdatedAt = c.now()
	}
}

// Close closes the current connection, if any
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// IsConnected returns connection status
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
