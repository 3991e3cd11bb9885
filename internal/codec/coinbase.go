package codec

import (
	"net/url"

	"pricestream/internal/domain"
)

const coinbaseURL = "wss://ws-feed.exchange.coinbase.com"

var coinbaseSymbolKeys = append([]string{"product_id"}, SymbolKeys...)

type coinbaseChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type coinbaseRequest struct {
	Type     string            `json:"type"`
	Channels []coinbaseChannel `json:"channels"`
}

// Coinbase is the crypto ticker channel. Previous prices are kept so
// consumers can color moves.
type Coinbase struct{}

func (Coinbase) Name() string        { return "coinbase" }
func (Coinbase) DefaultURL() string  { return coinbaseURL }
func (Coinbase) TrackPrevious() bool { return true }

func (Coinbase) Endpoint(base, token string) (string, error) {
	if base == "" {
		base = coinbaseURL
	}
	// Public channel, the token is ignored.
	return buildEndpoint(base, url.Values{})
}

func (Coinbase) EncodeSubscribe(symbols []string) []Frame {
	return coinbaseFrames("subscribe", symbols)
}

func (Coinbase) EncodeUnsubscribe(symbols []string) []Frame {
	return coinbaseFrames("unsubscribe", symbols)
}

func coinbaseFrames(op string, symbols []string) []Frame {
	if len(symbols) == 0 {
		return nil
	}
	return []Frame{encodeFrame(op, symbols, coinbaseRequest{
		Type:     op,
		Channels: []coinbaseChannel{{Name: "ticker", ProductIDs: symbols}},
	})}
}

func (Coinbase) Decode(messageType int, data []byte) domain.InboundMessage {
	obj, ok := NormalizeFrame(messageType, data)
	if !ok {
		return domain.Unknown()
	}

	switch obj["type"] {
	case "ticker":
		symbol, ok := ResolveSymbol(obj, coinbaseSymbolKeys)
		if !ok || symbol == "" {
			return domain.Unknown()
		}
		price, ok := ResolvePrice(obj, PriceKeys)
		if !ok {
			return domain.Unknown()
		}
		return tradeMessage([]domain.PriceUpdate{{Symbol: symbol, Price: price}})
	case "error":
		msg := stringField(obj, "message", "reason", "msg")
		if msg == "" {
			msg = "Unknown WebSocket error"
		}
		return domain.InboundMessage{Kind: domain.MessageError, Text: msg}
	case "subscriptions":
		return domain.InboundMessage{Kind: domain.MessageConfirmation}
	case "heartbeat":
		return domain.InboundMessage{Kind: domain.MessagePing}
	}

	if items, ok := obj["data"].([]any); ok {
		return tradeMessage(decodeTrades(items, coinbaseSymbolKeys))
	}
	return domain.Unknown()
}
