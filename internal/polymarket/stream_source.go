package polymarket

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultStreamMaxAge bounds how old a websocket price may be before the
// REST endpoint is asked instead
const DefaultStreamMaxAge = 5 * time.Second

// StreamingSource serves quotes from the websocket cache when fresh and
// falls back to REST otherwise. Metadata, discovery and orders go to REST.
type StreamingSource struct {
	*Client
	ws     *WSClient
	maxAge time.Duration
}

// NewStreamingSource wraps client with a websocket quote cache
func NewStreamingSource(client *Client, ws *WSClient, maxAge time.Duration) *StreamingSource {
	if maxAge <= 0 {
		maxAge = DefaultStreamMaxAge
	}
	return &StreamingSource{Client: client, ws: ws, maxAge: maxAge}
}

// FetchQuote tries the websocket cache first; a miss subscribes the token
// for later ticks and asks REST for this one
func (s *StreamingSource) FetchQuote(ctx context.Context, tokenID, side string) (decimal.Decimal, error) {
	if price, ok := s.ws.Lookup(tokenID, side, s.maxAge); ok {
		return price, nil
	}
	if !s.ws.IsConnected() {
		log.Debug().Str("token", tokenID).Msg("Market WebSocket down, quoting over REST")
	}
	s.ws.Subscribe(tokenID)
	return s.Client.FetchQuote(ctx, tokenID, side)
}
